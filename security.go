package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// Principal is an authenticated caller.
type Principal struct {
	Subject string         `json:"subject"`
	Scheme  string         `json:"scheme,omitempty"`
	Scopes  []string       `json:"scopes,omitempty"`
	Claims  map[string]any `json:"claims,omitempty"`
}

// Verifier checks the credentials of one security scheme. scopes are the
// scopes the operation requires from that scheme. A verifier returns a
// *Failure (typically Unauthorized or Forbidden) to reject; other errors are
// treated as Unauthorized.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request, scopes []string) (*Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, r *http.Request, scopes []string) (*Principal, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, r *http.Request, scopes []string) (*Principal, error) {
	return f(ctx, r, scopes)
}

// securityCheck enforces the matched operation's security requirements:
// any one requirement may pass (OR), and every scheme within it must pass
// (AND).
type securityCheck struct {
	global    []SecurityRequirement
	verifiers map[string]Verifier
	limiter   *rateLimiter
	metrics   *Metrics
}

func (s *securityCheck) handle(w *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())
	if rc == nil || rc.Operation == nil {
		return nil
	}

	reqs := rc.Operation.EffectiveSecurity(s.global)
	if len(reqs) > 0 {
		var firstErr error
		passed := false
		for _, req := range reqs {
			p, err := s.satisfy(r, req)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			rc.Principal = p
			passed = true
			break
		}
		if !passed {
			return firstErr
		}
	}

	return s.limit(w, r, rc)
}

func (s *securityCheck) satisfy(r *http.Request, req SecurityRequirement) (*Principal, error) {
	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	slices.Sort(names)

	var principal *Principal
	for _, name := range names {
		v, ok := s.verifiers[name]
		if !ok {
			// A declared scheme nobody can verify is a deployment fault, not
			// a client error.
			return nil, fmt.Errorf("security scheme %q has no verifier", name)
		}
		p, err := v.Verify(r.Context(), r, req[name])
		if err != nil {
			return nil, asSecurityFailure(err)
		}
		if principal == nil && p != nil {
			if p.Scheme == "" {
				p.Scheme = name
			}
			principal = p
		}
	}
	return principal, nil
}

func asSecurityFailure(err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return Unauthorized("").Wrap(err)
}

func (s *securityCheck) limit(w *ResponseWriter, r *http.Request, rc *RequestContext) error {
	if s.limiter == nil {
		return nil
	}
	if s.limiter.allow(s.limiter.key(r, rc.Principal)) {
		return nil
	}
	s.metrics.observeRateLimited()
	w.Header().Set("Retry-After", s.limiter.retryAfter())
	return Fail(NameTooManyRequests)
}
