package gateway_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	gw := newGateway(t)
	gateway.HandleRaw(gw, "ping", func(_ context.Context, r *http.Request) (*gateway.Response, error) {
		seen = gateway.GetRequestID(r)
		return nil, nil
	})

	t.Run("generated", func(t *testing.T) {
		rec := send(t, gw, http.MethodGet, "/ping", "")
		id := rec.Header().Get("X-Request-ID")
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, seen)
	})

	t.Run("propagated", func(t *testing.T) {
		rec := send(t, gw, http.MethodGet, "/ping", "", "X-Request-ID", "upstream-1")
		assert.Equal(t, "upstream-1", rec.Header().Get("X-Request-ID"))
		assert.Equal(t, "upstream-1", seen)
	})

	t.Run("set on error responses", func(t *testing.T) {
		rec := send(t, gw, http.MethodGet, "/nowhere", "", "X-Request-ID", "upstream-2")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "upstream-2", rec.Header().Get("X-Request-ID"))
	})
}

func TestRequestID_customHeader(t *testing.T) {
	t.Parallel()

	gw := newGateway(t, gateway.WithRequestIDHeader("X-Correlation-ID"))
	rec := send(t, gw, http.MethodGet, "/nowhere", "", "X-Correlation-ID", "c-1")
	assert.Equal(t, "c-1", rec.Header().Get("X-Correlation-ID"))
	assert.Empty(t, rec.Header().Get("X-Request-ID"))
}

func TestGetRequestID_outsideGateway(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/", nil)
	assert.Empty(t, gateway.GetRequestID(r))
}
