package gateway

import (
	"context"
	"net/http"
)

type contextKey[T any] struct{}

// SetValue stores a typed value in the request context. For use in middleware.
func SetValue[T any](r *http.Request, val T) *http.Request {
	ctx := context.WithValue(r.Context(), contextKey[T]{}, val)
	return r.WithContext(ctx)
}

// GetValue retrieves a typed value from the request context. For use in handlers.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(contextKey[T]{}).(T)
	return val, ok
}

// Phase is the part of the request lifecycle a request is in.
type Phase int

const (
	PhaseRouting  Phase = iota // matching the request to an operation
	PhaseInbound               // running inbound stages
	PhaseOutbound              // running outbound stages on a response
	PhaseError                 // inside the terminal error stage
	PhaseDone                  // response written
)

func (p Phase) String() string {
	switch p {
	case PhaseRouting:
		return "routing"
	case PhaseInbound:
		return "inbound"
	case PhaseOutbound:
		return "outbound"
	case PhaseError:
		return "error"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// RequestContext is the per-request state shared by pipeline stages. It is
// created once per inbound request, mutated only by stages of that request,
// and discarded when the response is sent.
type RequestContext struct {
	// APIVersion is the contract's info.version.
	APIVersion string

	// Operation is the matched operation, or nil when nothing matched.
	Operation *Operation

	// Params holds path template values of the matched operation.
	Params map[string]string

	// Processing is true only while the matched operation's own handler is
	// running. Failures raised then resolve against the operation's x-errors.
	Processing bool

	Phase     Phase
	Stage     string
	RequestID string

	// Principal is the authenticated caller, set by the security stage.
	Principal *Principal

	body    []byte
	handler *boundHandler
}

// Body returns the buffered request body, if the validation stage read it.
func (rc *RequestContext) Body() []byte { return rc.body }

type requestContextKey struct{}

func withRequestContext(r *http.Request, rc *RequestContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestContextKey{}, rc))
}

// RequestContextFrom returns the RequestContext bound to ctx, or nil.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc
}

// CurrentOperation returns the operation being served. For use in handlers.
func CurrentOperation(ctx context.Context) (*Operation, bool) {
	rc := RequestContextFrom(ctx)
	if rc == nil || rc.Operation == nil {
		return nil, false
	}
	return rc.Operation, true
}

// CurrentPrincipal returns the authenticated caller. For use in handlers.
func CurrentPrincipal(ctx context.Context) (*Principal, bool) {
	rc := RequestContextFrom(ctx)
	if rc == nil || rc.Principal == nil {
		return nil, false
	}
	return rc.Principal, true
}
