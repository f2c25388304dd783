package bearer_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/gateway"
	"github.com/bjaus/gateway/bearer"
)

var secret = []byte("test-secret")

func sign(t *testing.T, method jwtlib.SigningMethod, key any, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func request(token string) *http.Request {
	return requestTo("/", token)
}

func requestTo(target, token string) *http.Request {
	r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := bearer.New(bearer.Config{})
	require.ErrorIs(t, err, bearer.ErrNoKey)

	_, err = bearer.New(bearer.Config{Secret: secret})
	require.NoError(t, err)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	v, err := bearer.New(bearer.Config{Secret: secret, Issuer: "gw", Audience: "api"})
	require.NoError(t, err)

	valid := func(extra jwtlib.MapClaims) jwtlib.MapClaims {
		c := jwtlib.MapClaims{
			"sub": "user-1",
			"iss": "gw",
			"aud": "api",
			"exp": time.Now().Add(time.Hour).Unix(),
		}
		for k, val := range extra {
			c[k] = val
		}
		return c
	}

	tests := map[string]struct {
		token   string
		scopes  []string
		name    string
		message string
		subject string
		granted []string
	}{
		"valid": {
			token:   sign(t, jwtlib.SigningMethodHS256, secret, valid(nil)),
			subject: "user-1",
		},
		"string scopes": {
			token:   sign(t, jwtlib.SigningMethodHS384, secret, valid(jwtlib.MapClaims{"scope": "read write"})),
			scopes:  []string{"write"},
			subject: "user-1",
			granted: []string{"read", "write"},
		},
		"array scopes": {
			token:   sign(t, jwtlib.SigningMethodHS512, secret, valid(jwtlib.MapClaims{"scope": []string{"read", "admin"}})),
			scopes:  []string{"admin"},
			subject: "user-1",
			granted: []string{"read", "admin"},
		},
		"missing scope": {
			token:   sign(t, jwtlib.SigningMethodHS256, secret, valid(jwtlib.MapClaims{"scope": "read"})),
			scopes:  []string{"write"},
			name:    gateway.NameForbidden,
			message: "missing scope write",
		},
		"no token": {
			name:    gateway.NameUnauthorized,
			message: "missing bearer token",
		},
		"wrong secret": {
			token:   sign(t, jwtlib.SigningMethodHS256, []byte("other"), valid(nil)),
			name:    gateway.NameUnauthorized,
			message: "invalid bearer token",
		},
		"expired": {
			token:   sign(t, jwtlib.SigningMethodHS256, secret, valid(jwtlib.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()})),
			name:    gateway.NameUnauthorized,
			message: "invalid bearer token",
		},
		"wrong issuer": {
			token:   sign(t, jwtlib.SigningMethodHS256, secret, valid(jwtlib.MapClaims{"iss": "other"})),
			name:    gateway.NameUnauthorized,
			message: "invalid bearer token",
		},
		"wrong audience": {
			token:   sign(t, jwtlib.SigningMethodHS256, secret, valid(jwtlib.MapClaims{"aud": "other"})),
			name:    gateway.NameUnauthorized,
			message: "invalid bearer token",
		},
		"no subject": {
			token:   sign(t, jwtlib.SigningMethodHS256, secret, valid(jwtlib.MapClaims{"sub": ""})),
			name:    gateway.NameUnauthorized,
			message: `token missing "sub" claim`,
		},
		"garbage": {
			token:   "not.a.jwt",
			name:    gateway.NameUnauthorized,
			message: "invalid bearer token",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p, err := v.Verify(context.Background(), request(tc.token), tc.scopes)
			if tc.name != "" {
				var f *gateway.Failure
				require.ErrorAs(t, err, &f)
				assert.Equal(t, tc.name, f.Name)
				assert.Equal(t, tc.message, f.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.subject, p.Subject)
			assert.Equal(t, tc.granted, p.Scopes)
			assert.Equal(t, "user-1", p.Claims["sub"])
		})
	}
}

func TestVerifier_schemeIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	v, err := bearer.New(bearer.Config{Secret: secret})
	require.NoError(t, err)
	token := sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{"sub": "user-1"})

	tests := map[string]struct {
		header string
		ok     bool
	}{
		"canonical":      {header: "Bearer " + token, ok: true},
		"lower case":     {header: "bearer " + token, ok: true},
		"upper case":     {header: "BEARER " + token, ok: true},
		"extra spaces":   {header: "Bearer   " + token, ok: true},
		"other scheme":   {header: "Basic " + token},
		"scheme only":    {header: "Bearer"},
		"empty token":    {header: "bearer   "},
		"scheme as word": {header: "Bearertoken"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/", nil)
			r.Header.Set("Authorization", tc.header)
			p, err := v.Verify(context.Background(), r, nil)
			if !tc.ok {
				var f *gateway.Failure
				require.ErrorAs(t, err, &f)
				assert.Equal(t, "missing bearer token", f.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", p.Subject)
		})
	}
}

func TestVerifier_RSA(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v, err := bearer.New(bearer.Config{PublicKey: &key.PublicKey, SubjectClaim: "uid", ScopesClaim: "perms"})
	require.NoError(t, err)

	token := sign(t, jwtlib.SigningMethodRS256, key, jwtlib.MapClaims{"uid": "svc", "perms": "deploy"})
	p, err := v.Verify(context.Background(), request(token), []string{"deploy"})
	require.NoError(t, err)
	assert.Equal(t, "svc", p.Subject)
	assert.Equal(t, []string{"deploy"}, p.Scopes)

	// An HMAC token signed with anything is rejected by an RSA verifier.
	hmac := sign(t, jwtlib.SigningMethodHS256, []byte("guess"), jwtlib.MapClaims{"uid": "svc"})
	_, err = v.Verify(context.Background(), request(hmac), nil)
	require.Error(t, err)
}

func TestVerifier_inGateway(t *testing.T) {
	t.Parallel()

	c, err := gateway.ParseContract([]byte(`
openapi: 3.0.3
info: {title: t, version: "1"}
components:
  securitySchemes:
    jwt: {type: http, scheme: bearer}
security:
  - jwt: [admin]
paths:
  /admin:
    get:
      operationId: admin
`))
	require.NoError(t, err)

	v, err := bearer.New(bearer.Config{Secret: secret})
	require.NoError(t, err)

	gw := gateway.New(c,
		gateway.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		gateway.WithSecurity("jwt", v),
	)
	gateway.Handle(gw, "admin", func(ctx context.Context, _ *gateway.Void) (*gateway.Principal, error) {
		p, _ := gateway.CurrentPrincipal(ctx)
		return p, nil
	})

	admin := sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{"sub": "root", "scope": "admin"})
	user := sign(t, jwtlib.SigningMethodHS256, secret, jwtlib.MapClaims{"sub": "bob"})

	tests := map[string]struct {
		token  string
		status int
	}{
		"admin":     {token: admin, status: http.StatusOK},
		"non-admin": {token: user, status: http.StatusForbidden},
		"anonymous": {status: http.StatusUnauthorized},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			gw.ServeHTTP(rec, requestTo("/admin", tc.token))
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}
