// Package bearer verifies JWT bearer tokens for gateway security schemes.
//
// It supports HMAC- and RSA-signed tokens with optional issuer and audience
// checks, and enforces the scopes an operation's security requirement asks
// for.
package bearer

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/bjaus/gateway"
)

// Config holds the verifier configuration. Exactly one of Secret or
// PublicKey must be set.
type Config struct {
	// Secret verifies HS256/HS384/HS512 tokens.
	Secret []byte

	// PublicKey verifies RS256/RS384/RS512 tokens.
	PublicKey *rsa.PublicKey

	// Issuer is the expected iss claim. Not checked when empty.
	Issuer string

	// Audience is the expected aud claim. Not checked when empty.
	Audience string

	// SubjectClaim names the claim used as the principal subject. Default: "sub".
	SubjectClaim string

	// ScopesClaim names the scopes claim. Default: "scope". The value may be
	// a space-separated string or an array.
	ScopesClaim string
}

func (c *Config) applyDefaults() {
	if c.SubjectClaim == "" {
		c.SubjectClaim = "sub"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
}

// Verifier validates bearer tokens. It implements gateway.Verifier.
type Verifier struct {
	config Config
	opts   []jwtlib.ParserOption
}

var _ gateway.Verifier = (*Verifier)(nil)

// ErrNoKey is returned by New when neither a secret nor a public key is set.
var ErrNoKey = errors.New("bearer: a secret or a public key is required")

// New creates a Verifier.
func New(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 && cfg.PublicKey == nil {
		return nil, ErrNoKey
	}
	cfg.applyDefaults()

	methods := []string{"HS256", "HS384", "HS512"}
	if cfg.PublicKey != nil {
		methods = []string{"RS256", "RS384", "RS512"}
	}
	opts := []jwtlib.ParserOption{jwtlib.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(cfg.Audience))
	}

	return &Verifier{config: cfg, opts: opts}, nil
}

// Verify checks the Authorization header. A missing or invalid token is
// Unauthorized; a valid token lacking a required scope is Forbidden.
func (v *Verifier) Verify(_ context.Context, r *http.Request, scopes []string) (*gateway.Principal, error) {
	token, ok := tokenFrom(r.Header.Get("Authorization"))
	if !ok {
		return nil, gateway.Unauthorized("missing bearer token")
	}

	parsed, err := jwtlib.Parse(token, v.key, v.opts...)
	if err != nil {
		return nil, gateway.Unauthorized("invalid bearer token").Wrap(err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return nil, gateway.Unauthorized("invalid bearer token")
	}

	subject, _ := claims[v.config.SubjectClaim].(string)
	if subject == "" {
		return nil, gateway.Unauthorized(fmt.Sprintf("token missing %q claim", v.config.SubjectClaim))
	}

	granted := extractScopes(claims, v.config.ScopesClaim)
	for _, want := range scopes {
		if !slices.Contains(granted, want) {
			return nil, gateway.Forbidden("missing scope " + want).WithExtra("scope", want)
		}
	}

	return &gateway.Principal{
		Subject: subject,
		Scopes:  granted,
		Claims:  claims,
	}, nil
}

func (v *Verifier) key(token *jwtlib.Token) (any, error) {
	switch token.Method.(type) {
	case *jwtlib.SigningMethodHMAC:
		if len(v.config.Secret) == 0 {
			break
		}
		return v.config.Secret, nil
	case *jwtlib.SigningMethodRSA:
		if v.config.PublicKey == nil {
			break
		}
		return v.config.PublicKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// tokenFrom returns the credentials of a Bearer authorization header. The
// scheme is case-insensitive.
func tokenFrom(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// extractScopes reads a space-separated string or an array of strings.
func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case string:
		return strings.Fields(val)
	case []any:
		var scopes []string
		for _, item := range val {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	default:
		return nil
	}
}
