package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
)

func resolution(t *testing.T, raised any) gateway.Resolution {
	t.Helper()
	return gateway.NewResolver(gateway.NewCatalog(nil)).Resolve(raised, nil)
}

func TestNewIncident_headersAreRedacted(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/items?limit=5&tag=a&tag=b", nil)
	r.Header.Set("Authorization", "Bearer secret")
	r.Header.Set("Cookie", "session=secret")
	r.Header.Set("Proxy-Authorization", "Basic secret")
	r.Header.Set("X-Tenant", "acme")

	inc := gateway.NewIncident(r, &gateway.RequestContext{RequestID: "req-1"}, resolution(t, errors.New("db down")))

	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, "req-1", inc.RequestID)
	assert.Equal(t, gateway.NameInternal, inc.Name)
	assert.Equal(t, gateway.NameInternal, inc.Key)
	assert.Equal(t, http.StatusInternalServerError, inc.Status)
	assert.Equal(t, http.MethodGet, inc.Method)
	assert.Equal(t, "/items?limit=5&tag=a&tag=b", inc.URL)
	assert.Equal(t, "db down", inc.Stack)

	assert.NotContains(t, inc.Headers, "secret")
	assert.Contains(t, inc.Headers, `"authorization": "[REDACTED]"`)
	assert.Contains(t, inc.Headers, `"cookie": "[REDACTED]"`)
	assert.Contains(t, inc.Headers, `"proxy-authorization": "[REDACTED]"`)
	assert.Contains(t, inc.Headers, `"x-tenant": "acme"`)

	assert.JSONEq(t, `{"limit": "5", "tag": ["a", "b"]}`, inc.Payload, "read requests record the query")
	assert.Empty(t, inc.User)
}

func TestNewIncident_bodyPayload(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body   string
		expect string
	}{
		"json body": {
			body:   `{"name": "a", "qty": 2}`,
			expect: `{"name": "a", "qty": 2}`,
		},
		"non-json body": {
			body:   "plain",
			expect: `"plain"`,
		},
		"no body": {
			expect: "null",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequestWithContext(context.Background(), http.MethodPost, "/items?ignored=1", nil)
			rc := &gateway.RequestContext{}
			if tc.body != "" {
				rc.SetBody([]byte(tc.body))
			}

			inc := gateway.NewIncident(r, rc, resolution(t, "boom"))
			assert.JSONEq(t, tc.expect, inc.Payload)
		})
	}
}

func TestNewIncident_payloadIsTruncated(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequestWithContext(context.Background(), http.MethodPut, "/items", nil)
	rc := &gateway.RequestContext{}
	rc.SetBody([]byte(`{"text": "` + strings.Repeat("é", 3000) + `"}`))

	inc := gateway.NewIncident(r, rc, resolution(t, "boom"))
	assert.Equal(t, gateway.IncidentPayloadLimit, len([]rune(inc.Payload)))
}

func TestNewIncident_user(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/", nil)
	rc := &gateway.RequestContext{Principal: &gateway.Principal{Subject: "u1", Scheme: "token"}}

	inc := gateway.NewIncident(r, rc, resolution(t, "boom"))
	assert.JSONEq(t, `{"subject": "u1", "scheme": "token"}`, inc.User)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in     string
		n      int
		expect string
	}{
		"short":      {in: "abc", n: 5, expect: "abc"},
		"exact":      {in: "abcde", n: 5, expect: "abcde"},
		"long":       {in: "abcdef", n: 3, expect: "abc"},
		"multi-byte": {in: "ééé", n: 2, expect: "éé"},
		"bytes over": {in: "éé", n: 3, expect: "éé"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expect, gateway.Truncate(tc.in, tc.n))
		})
	}
}

func TestLogReporter(t *testing.T) {
	t.Parallel()

	logs, logger := newLogBuffer()
	err := gateway.LogReporter(logger).Report(context.Background(), &gateway.Incident{
		ID:   "inc-1",
		Name: gateway.NameInternal,
		Key:  gateway.NameInternal,
		URL:  "/ping",
	})
	require.NoError(t, err)

	out := logs.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"msg":"InternalServerError"`)
	assert.Contains(t, out, `"incident_id":"inc-1"`)
	assert.Contains(t, out, `"url":"/ping"`)
}
