package incident_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bjaus/gateway/incident"
)

// startPostgres starts a PostgreSQL container and returns its DSN. The test
// is skipped when no container runtime is available.
func startPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()
	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("incidents_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func openPostgres(t *testing.T, dsn string) *incident.Postgres {
	t.Helper()
	store, err := incident.OpenPostgres(context.Background(), incident.PostgresConfig{
		DSN:            dsn,
		MaxConns:       4,
		MigrateOnStart: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgres(t *testing.T) {
	exerciseStore(t, openPostgres(t, startPostgres(t)))
}

func TestPostgres_reopenKeepsData(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	first := openPostgres(t, dsn)
	require.NoError(t, first.Report(ctx, newIncident("kept", time.Now().UTC())))
	require.NoError(t, first.Close())

	// Migrations already recorded in schema_migrations are skipped.
	second, err := incident.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	got, err := second.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.ID)
}

func TestOpenPostgres_badDSN(t *testing.T) {
	t.Parallel()

	_, err := incident.OpenPostgres(context.Background(), incident.PostgresConfig{DSN: "postgres://%zz"})
	require.Error(t, err)
}
