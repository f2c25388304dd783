package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// selectHandler picks the handler registered for the matched operation.
func (g *Gateway) selectHandler(_ *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())
	if rc.Operation == nil {
		return nil
	}
	g.mu.Lock()
	rc.handler = g.handlers[rc.Operation.Key()]
	g.mu.Unlock()
	return nil
}

// dispatch runs the operation handler and sends its response.
func (g *Gateway) dispatch(w *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())
	if rc.handler == nil {
		return nil
	}
	resp, err := rc.handler.invoke(r, rc)
	if err != nil {
		return err
	}
	// A result that arrives after the deadline is dropped.
	if late := expired(r.Context()); late != nil {
		return late
	}
	return w.Send(resp)
}

// notFound ends every request nothing else answered.
func notFound(_ *ResponseWriter, _ *http.Request) error {
	return NotFound()
}

func (g *Gateway) debugRequest(_ *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", rc.RequestID,
	}
	if rc.Operation != nil {
		attrs = append(attrs, "operation", rc.Operation.OperationID)
	}
	g.logger.DebugContext(r.Context(), "request", attrs...)
	return nil
}

func (g *Gateway) debugPreHandler(_ *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())
	attrs := []any{
		"request_id", rc.RequestID,
		"handled", rc.handler != nil,
	}
	if rc.Operation != nil {
		attrs = append(attrs, "operation", rc.Operation.Key())
	}
	if rc.Principal != nil {
		attrs = append(attrs, "subject", rc.Principal.Subject)
	}
	g.logger.DebugContext(r.Context(), "pre-handler", attrs...)
	return nil
}

func (g *Gateway) debugPostHandler(r *http.Request, resp *Response) error {
	rc := RequestContextFrom(r.Context())
	g.logger.DebugContext(r.Context(), "post-handler",
		"request_id", rc.RequestID,
		"status", resp.Status,
		"processing", rc.Processing,
	)
	return nil
}

func (g *Gateway) debugResponse(r *http.Request, resp *Response) error {
	rc := RequestContextFrom(r.Context())
	g.logger.DebugContext(r.Context(), "response",
		"request_id", rc.RequestID,
		"status", resp.Status,
		"phase", rc.Phase.String(),
	)
	return nil
}

// pruneResponse removes null-valued object fields from the body and warns
// when the status is not one the operation declares. Error payloads are
// left untouched.
func (g *Gateway) pruneResponse(r *http.Request, resp *Response) error {
	if _, isErr := resp.Body.(*Payload); isErr || resp.Body == nil {
		return nil
	}

	rc := RequestContextFrom(r.Context())
	if rc.Operation != nil && !rc.Operation.DeclaresStatus(resp.Status) {
		g.logger.WarnContext(r.Context(), "response status not declared by operation",
			"operation", rc.Operation.Key(),
			"status", resp.Status,
		)
	}

	b, err := json.Marshal(resp.Body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return err
	}
	resp.Body = pruneNulls(generic)
	return nil
}

// pruneNumber converts n to the narrowest Go type that holds it exactly.
// Integer literals too wide for uint64 stay as json.Number.
func pruneNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	if !strings.ContainsAny(n.String(), ".eE") {
		return n
	}
	f, _ := n.Float64()
	return f
}

func pruneNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if child == nil {
				delete(val, k)
				continue
			}
			val[k] = pruneNulls(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = pruneNulls(child)
		}
		return val
	case json.Number:
		return pruneNumber(val)
	default:
		return v
	}
}
