package incident_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
)

const contract = `
openapi: 3.0.3
info: {title: Incidents, version: "1"}
paths:
  /ping:
    get:
      operationId: ping
`

func mustContract(t *testing.T) *gateway.Contract {
	t.Helper()
	c, err := gateway.ParseContract([]byte(contract))
	require.NoError(t, err)
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
