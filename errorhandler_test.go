package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
)

func TestErrorHandler_scenarios(t *testing.T) {
	t.Parallel()

	t.Run("undeclared route falls back to NotFound", func(t *testing.T) {
		t.Parallel()

		rec := send(t, newGateway(t), http.MethodGet, "/nowhere", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, gateway.Payload{
			Name:    gateway.NameNotFound,
			Message: "Resource not found",
			Status:  http.StatusNotFound,
		}, decodePayload(t, rec))
	})

	t.Run("raised string is unclassified and reported", func(t *testing.T) {
		t.Parallel()

		reporter := &captureReporter{}
		gw := newGateway(t, gateway.WithEnvironment(gateway.Production), gateway.WithReporter(reporter))
		gateway.Handle(gw, "ping", func(context.Context, *gateway.Void) (*gateway.Void, error) {
			panic("boom")
		})

		rec := send(t, gw, http.MethodGet, "/ping", "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, gateway.Payload{
			Name:    gateway.NameInternal,
			Message: "boom",
			Status:  http.StatusInternalServerError,
		}, decodePayload(t, rec))

		incidents := reporter.all()
		require.Len(t, incidents, 1)
		assert.Equal(t, gateway.NameInternal, incidents[0].Name)
		assert.Contains(t, incidents[0].Stack, "goroutine", "recovered panics carry the stack")
	})

	t.Run("local entry while processing", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t)
		gateway.Handle(gw, "createItem", func(context.Context, *createItemReq) (*item, error) {
			return nil, gateway.Fail("QuotaExceeded")
		})

		rec := send(t, gw, http.MethodPost, "/items", `{"name": "a"}`)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, gateway.Payload{
			Name:    "QuotaExceeded",
			Message: "Too many requests",
			Status:  http.StatusTooManyRequests,
			Extra:   map[string]any{"retryAfter": float64(60)},
		}, decodePayload(t, rec))
	})

	t.Run("local name outside processing falls through", func(t *testing.T) {
		t.Parallel()

		gw := newGateway(t, gateway.WithValidator(validatorFunc(func(any) error {
			return gateway.Fail("QuotaExceeded")
		})))
		gateway.Handle(gw, "createItem", func(_ context.Context, req *createItemReq) (*item, error) {
			return &req.Body, nil
		})

		rec := send(t, gw, http.MethodPost, "/items", `{"name": "a"}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		p := decodePayload(t, rec)
		assert.Equal(t, gateway.NameInternal, p.Name)
		assert.Equal(t, http.StatusInternalServerError, p.Status)
	})
}

func TestErrorHandler_localOverridesGlobal(t *testing.T) {
	t.Parallel()

	gw := newGateway(t)
	gateway.Handle(gw, "createItem", func(context.Context, *createItemReq) (*item, error) {
		return nil, gateway.Fail("EmailTaken").WithField("email")
	})
	gateway.Handle(gw, "listItems", func(context.Context, *gateway.Void) (*gateway.Void, error) {
		return nil, gateway.Fail("EmailTaken")
	})

	rec := send(t, gw, http.MethodPost, "/items", `{"name": "a"}`)
	require.Equal(t, http.StatusConflict, rec.Code, "status comes from the global entry")
	p := decodePayload(t, rec)
	assert.Equal(t, "Local email message", p.Message)
	assert.Equal(t, "email", p.Field)

	rec = send(t, gw, http.MethodGet, "/items", "", "X-Tenant", "t")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email taken", decodePayload(t, rec).Message)
}

func TestErrorHandler_reporting(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		env     gateway.Environment
		err     error
		reports int
	}{
		"production unclassified":  {env: gateway.Production, err: errors.New("db down"), reports: 1},
		"production classified":    {env: gateway.Production, err: gateway.Fail(gateway.NameConflict)},
		"production status coder":  {env: gateway.Production, err: gateway.Error(http.StatusForbidden, "no")},
		"test unclassified":        {env: gateway.Test, err: errors.New("db down")},
		"development unclassified": {env: gateway.Development, err: errors.New("db down")},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			reporter := &captureReporter{}
			gw := newGateway(t, gateway.WithEnvironment(tc.env), gateway.WithReporter(reporter))
			gateway.Handle(gw, "ping", func(context.Context, *gateway.Void) (*gateway.Void, error) {
				return nil, tc.err
			})

			send(t, gw, http.MethodGet, "/ping", "")
			assert.Len(t, reporter.all(), tc.reports)
		})
	}
}

func TestErrorHandler_reporterFailureDoesNotMaskResponse(t *testing.T) {
	t.Parallel()

	tests := map[string]gateway.ReporterFunc{
		"error": func(context.Context, *gateway.Incident) error {
			return errors.New("store unavailable")
		},
		"panic": func(context.Context, *gateway.Incident) error {
			panic("reporter crashed")
		},
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			logs, logger := newLogBuffer()
			gw := gateway.New(mustContract(t),
				gateway.WithLogger(logger),
				gateway.WithEnvironment(gateway.Production),
				gateway.WithReporter(fn),
			)
			gateway.Handle(gw, "ping", func(context.Context, *gateway.Void) (*gateway.Void, error) {
				return nil, errors.New("original failure")
			})

			rec := send(t, gw, http.MethodGet, "/ping", "")
			require.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "original failure", decodePayload(t, rec).Message)
			assert.Contains(t, logs.String(), "incident report")
		})
	}
}

func TestErrorHandler_reportOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	var ctxErr error
	gw := newGateway(t,
		gateway.WithEnvironment(gateway.Production),
		gateway.WithReporter(gateway.ReporterFunc(func(ctx context.Context, _ *gateway.Incident) error {
			ctxErr = ctx.Err()
			return nil
		})),
	)
	gateway.HandleRaw(gw, "ping", func(context.Context, *http.Request) (*gateway.Response, error) {
		return nil, errors.New("failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "/ping", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	gw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NoError(t, ctxErr)
}

func TestErrorHandler_customSink(t *testing.T) {
	t.Parallel()

	var got *gateway.Payload
	gw := newGateway(t, gateway.WithErrorSink(func(w http.ResponseWriter, _ *http.Request, p *gateway.Payload) {
		got = p
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(p.Status)
		_, _ = w.Write([]byte(p.Name))
	}))

	rec := send(t, gw, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", rec.Body.String())
	require.NotNil(t, got)
	assert.Equal(t, gateway.NameNotFound, got.Name)
}

func TestDefaultErrorSink_missingStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "/", nil)
	require.NoError(t, err)

	gateway.DefaultErrorSink(rec, req, &gateway.Payload{Name: "Odd", Message: "no status"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"name": "Odd", "message": "no status", "status": 0}`, rec.Body.String())
}

func TestErrorHandler_developmentLogsStack(t *testing.T) {
	t.Parallel()

	logs, logger := newLogBuffer()
	gw := gateway.New(mustContract(t), gateway.WithLogger(logger))
	gateway.Handle(gw, "ping", func(context.Context, *gateway.Void) (*gateway.Void, error) {
		panic(errors.New("exploded"))
	})

	send(t, gw, http.MethodGet, "/ping", "")

	out := logs.String()
	assert.Contains(t, out, `"msg":"ErrorHandler"`)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "exploded")
	assert.Contains(t, out, `"stack":`)
}

func TestErrorHandler_failureAfterSend(t *testing.T) {
	t.Parallel()

	logs, logger := newLogBuffer()
	gw := gateway.New(mustContract(t), gateway.WithLogger(logger))
	gateway.HandleRaw(gw, "ping", func(context.Context, *http.Request) (*gateway.Response, error) {
		return &gateway.Response{Status: http.StatusOK, Body: badJSON{}}, nil
	})

	rec := send(t, gw, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.NotContains(t, logs.String(), "failure after response was sent")
}

// badJSON cannot be marshaled, so the prune stage fails before anything is
// written.
type badJSON struct{}

func (badJSON) MarshalJSON() ([]byte, error) { return nil, errors.New("unencodable") }
