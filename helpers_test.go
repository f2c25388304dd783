package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
)

const testContract = `
openapi: 3.0.3
info:
  title: Items API
  version: 2.1.0
x-errors:
  EmailTaken:
    status: 409
    message: Email taken
components:
  securitySchemes:
    key: {type: apiKey, in: header, name: X-API-Key}
    token: {type: http, scheme: bearer}
  schemas:
    Item:
      type: object
      required: [name]
      properties:
        name: {type: string, minLength: 1}
        qty: {type: integer, minimum: 0}
        tags:
          type: array
          maxItems: 2
          items: {type: string}
paths:
  /ping:
    get:
      operationId: ping
  /items:
    get:
      operationId: listItems
      parameters:
        - {name: limit, in: query, schema: {type: integer, minimum: 1, maximum: 10}}
        - {name: sort, in: query, schema: {type: string, enum: [asc, desc]}}
        - {name: X-Tenant, in: header, required: true, schema: {type: string}}
      responses:
        "200": {description: ok}
    post:
      operationId: createItem
      requestBody:
        required: true
        content:
          application/json:
            schema: {$ref: "#/components/schemas/Item"}
      responses:
        "201": {description: created}
      x-errors:
        QuotaExceeded:
          status: 429
          message: Too many requests
          retryAfter: 60
        EmailTaken:
          message: Local email message
  /items/{id}:
    parameters:
      - {name: id, in: path, required: true, schema: {type: string, pattern: "^[0-9]+$"}}
    get:
      operationId: getItem
      x-timeout: 20ms
      responses:
        "200": {description: ok}
      x-errors:
        ItemMissing:
          status: 404
          message: Item not found
    delete:
      operationId: deleteItem
      security:
        - token: [items:write]
      responses:
        "204": {description: deleted}
  /secure:
    get:
      operationId: secureEither
      security:
        - key: []
        - token: [read]
  /both:
    get:
      operationId: secureBoth
      security:
        - key: []
          token: []
  /misconfigured:
    get:
      operationId: misconfigured
      security:
        - nobody: []
  /bind/{id}:
    post:
      operationId: bind
`

func mustContract(t testing.TB, overlays ...string) *gateway.Contract {
	t.Helper()
	raw := make([][]byte, len(overlays))
	for i, o := range overlays {
		raw[i] = []byte(o)
	}
	c, err := gateway.ParseContract([]byte(testContract), raw...)
	require.NoError(t, err)
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newGateway returns a gateway over the test contract that logs nowhere.
func newGateway(t testing.TB, opts ...gateway.Option) *gateway.Gateway {
	t.Helper()
	opts = append([]gateway.Option{gateway.WithLogger(discardLogger())}, opts...)
	return gateway.New(mustContract(t), opts...)
}

// send serves one request and returns the recorded response. headers are
// key/value pairs.
func send(t testing.TB, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequestWithContext(context.Background(), method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodePayload(t testing.TB, rec *httptest.ResponseRecorder) gateway.Payload {
	t.Helper()
	var p gateway.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func decodeJSON[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// captureReporter records incidents.
type captureReporter struct {
	mu        sync.Mutex
	incidents []*gateway.Incident
}

func (c *captureReporter) Report(_ context.Context, inc *gateway.Incident) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incidents = append(c.incidents, inc)
	return nil
}

func (c *captureReporter) all() []*gateway.Incident {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*gateway.Incident(nil), c.incidents...)
}

// logBuffer is a concurrency-safe buffer for slog output.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLogBuffer() (*logBuffer, *slog.Logger) {
	b := &logBuffer{}
	return b, slog.New(slog.NewJSONHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// apiKeyVerifier accepts X-API-Key: k.
var apiKeyVerifier = gateway.VerifierFunc(func(_ context.Context, r *http.Request, _ []string) (*gateway.Principal, error) {
	if r.Header.Get("X-API-Key") != "k" {
		return nil, gateway.Unauthorized("missing api key")
	}
	return &gateway.Principal{Subject: "key-user"}, nil
})

// tokenVerifier accepts "Bearer good" with scopes read and items:write, and
// "Bearer weak" with no scopes.
var tokenVerifier = gateway.VerifierFunc(func(_ context.Context, r *http.Request, scopes []string) (*gateway.Principal, error) {
	granted := map[string][]string{
		"Bearer good": {"read", "items:write"},
		"Bearer weak": nil,
	}
	have, ok := granted[r.Header.Get("Authorization")]
	if !ok {
		return nil, gateway.Unauthorized("bad token")
	}
	for _, want := range scopes {
		found := false
		for _, h := range have {
			if h == want {
				found = true
			}
		}
		if !found {
			return nil, gateway.Forbidden("missing scope " + want)
		}
	}
	return &gateway.Principal{Subject: "token-user", Scopes: have}, nil
})
