package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bjaus/gateway"
)

// SQLite stores incidents in a SQLite database.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring sqlite: %w", err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS incidents (
			id TEXT PRIMARY KEY,
			occurred_at INTEGER NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			key TEXT NOT NULL,
			status INTEGER NOT NULL,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			stack TEXT NOT NULL,
			headers TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			principal TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON incidents(occurred_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_incidents_key ON incidents(key, occurred_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Report implements gateway.Reporter.
func (s *SQLite) Report(ctx context.Context, inc *gateway.Incident) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (
			id, occurred_at, request_id, name, key, status,
			method, url, stack, headers, payload, principal
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, inc.Time.UnixMilli(), inc.RequestID, inc.Name, inc.Key, inc.Status,
		inc.Method, inc.URL, inc.Stack, inc.Headers, inc.Payload, inc.User,
	)
	if err != nil {
		return fmt.Errorf("inserting incident: %w", err)
	}
	return nil
}

const sqliteColumns = `id, occurred_at, request_id, name, key, status,
	method, url, stack, headers, payload, principal`

// Get returns one incident.
func (s *SQLite) Get(ctx context.Context, id string) (*gateway.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM incidents WHERE id = ?`, id)
	inc, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying incident: %w", err)
	}
	return inc, nil
}

// Recent returns the newest incidents first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]*gateway.Incident, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM incidents ORDER BY occurred_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying incidents: %w", err)
	}
	defer rows.Close()

	var out []*gateway.Incident
	for rows.Next() {
		inc, err := scanSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (*gateway.Incident, error) {
	var (
		inc gateway.Incident
		ms  int64
	)
	err := row.Scan(
		&inc.ID, &ms, &inc.RequestID, &inc.Name, &inc.Key, &inc.Status,
		&inc.Method, &inc.URL, &inc.Stack, &inc.Headers, &inc.Payload, &inc.User,
	)
	if err != nil {
		return nil, err
	}
	inc.Time = time.UnixMilli(ms).UTC()
	return &inc, nil
}
