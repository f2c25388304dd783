package gateway

import (
	"context"
	"net/http"
)

// Void is used as a type parameter when a request has no parameters/body
// or a response has no body (results in 204 No Content).
type Void struct{}

// Handler is the core typed handler signature. The gateway owns binding and
// serialization; handlers never see http.ResponseWriter.
type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)

// RawHandler is an untyped operation handler. It reads the request directly
// and returns the response to send, or nil for 204 No Content.
type RawHandler func(ctx context.Context, r *http.Request) (*Response, error)

// boundHandler is an operation handler registered on a Gateway.
type boundHandler struct {
	operationID string
	invoke      func(r *http.Request, rc *RequestContext) (*Response, error)
}

// process runs fn with the processing flag set. The flag stays set when fn
// fails so the failure resolves against the operation's own error table.
func process(rc *RequestContext, fn func() (*Response, error)) (*Response, error) {
	rc.Processing = true
	resp, err := fn()
	if err != nil {
		return nil, err
	}
	rc.Processing = false
	return resp, nil
}
