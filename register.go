package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
)

// Handle binds a typed handler to the contract operation identified by ref
// (an operationId, or "METHOD /template"). It panics if the operation is not
// declared or already has a handler; both are wiring mistakes.
//
// The request is bound from path, query, header, and cookie tags and a JSON
// Body field, then checked by SelfValidator and the gateway's Validator.
// Binding and validation failures are infrastructure failures; only errors
// returned by h resolve against the operation's x-errors.
func Handle[Req, Resp any](g *Gateway, ref string, h Handler[Req, Resp]) {
	op := g.mustOperation(ref)

	status := op.SuccessStatus()
	if reflect.TypeFor[Resp]() == reflect.TypeFor[Void]() && status == http.StatusOK {
		status = http.StatusNoContent
	}

	g.register(op, func(r *http.Request, rc *RequestContext) (*Response, error) {
		req, err := decodeRequest[Req](r, rc.body)
		if err != nil {
			return nil, Fail(NameBadRequest).Wrap(err)
		}
		if err := g.validateRequest(req); err != nil {
			return nil, err
		}

		return process(rc, func() (*Response, error) {
			resp, err := h(r.Context(), req)
			if err != nil {
				return nil, err
			}
			return buildResponse(resp, status), nil
		})
	})
}

// HandleRaw binds an untyped handler to the operation identified by ref.
// A nil response is sent as 204 No Content.
func HandleRaw(g *Gateway, ref string, h RawHandler) {
	op := g.mustOperation(ref)

	g.register(op, func(r *http.Request, rc *RequestContext) (*Response, error) {
		return process(rc, func() (*Response, error) {
			resp, err := h(r.Context(), r)
			if err != nil {
				return nil, err
			}
			if resp == nil {
				return &Response{Status: http.StatusNoContent, Header: make(http.Header)}, nil
			}
			if resp.Header == nil {
				resp.Header = make(http.Header)
			}
			return resp, nil
		})
	})
}

func (g *Gateway) mustOperation(ref string) *Operation {
	op, ok := g.contract.Operation(ref)
	if !ok {
		panic(fmt.Sprintf("gateway: operation %q is not declared in the contract", ref))
	}
	return op
}

func (g *Gateway) register(op *Operation, invoke func(*http.Request, *RequestContext) (*Response, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := op.Key()
	if _, dup := g.handlers[key]; dup {
		panic(fmt.Sprintf("gateway: operation %s already has a handler", key))
	}
	g.handlers[key] = &boundHandler{operationID: op.OperationID, invoke: invoke}
}

// validateRequest runs SelfValidator and then the gateway Validator. Plain
// errors are classified as validation failures.
func (g *Gateway) validateRequest(req any) error {
	if sv, ok := req.(SelfValidator); ok {
		if err := sv.Validate(); err != nil {
			return asValidation(err)
		}
	}
	if g.validator != nil {
		if err := g.validator.Validate(req); err != nil {
			return asValidation(err)
		}
	}
	return nil
}

func asValidation(err error) error {
	var f *Failure
	if errors.As(err, &f) {
		return err
	}
	return Fail(NameValidation).Wrap(err)
}

// buildResponse wraps a handler result. Void and nil results have no body;
// a result implementing StatusCoder overrides status.
func buildResponse[Resp any](resp *Resp, status int) *Response {
	out := &Response{Status: status, Header: make(http.Header)}

	if resp == nil {
		if status == http.StatusOK {
			out.Status = http.StatusNoContent
		}
		return out
	}
	if _, void := any(resp).(*Void); void {
		return out
	}

	if sc, ok := any(resp).(StatusCoder); ok {
		if code := sc.StatusCode(); code != 0 {
			out.Status = code
		}
	}
	applyResponseSetters(out, resp)
	out.Body = resp
	return out
}
