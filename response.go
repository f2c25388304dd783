package gateway

import (
	"errors"
	"fmt"
	"maps"
	"net/http"
)

// ErrAlreadySent is returned by ResponseWriter.Send when the request already
// has a response.
var ErrAlreadySent = errors.New("response already sent")

// CookieSetter is optionally implemented by response types to set cookies.
type CookieSetter interface {
	Cookies() []*http.Cookie
}

// HeaderSetter is optionally implemented by response types to set response headers.
type HeaderSetter interface {
	SetHeaders(h http.Header)
}

// Response is a response value on its way out. Outbound stages may change
// any field before it is encoded.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

// ResponseWriter wraps http.ResponseWriter for one request. It runs the
// outbound chain on Send and guarantees at most one response per request:
// a second Send returns ErrAlreadySent, and any direct write marks the
// response as sent.
type ResponseWriter struct {
	http.ResponseWriter

	req      *http.Request
	outbound []OutboundStage
	codecs   *codecRegistry

	sent   bool
	status int
	size   int
}

func newResponseWriter(w http.ResponseWriter, r *http.Request, outbound []OutboundStage, codecs *codecRegistry) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, req: r, outbound: outbound, codecs: codecs}
}

// WriteHeader records the status and marks the response as sent.
func (w *ResponseWriter) WriteHeader(code int) {
	if !w.sent {
		w.sent = true
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

// Write marks the response as sent and delegates.
func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.sent {
		w.sent = true
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter (supports http.ResponseController).
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Sent reports whether a response has been written.
func (w *ResponseWriter) Sent() bool { return w.sent }

// Status returns the written status code, or 0 before anything was sent.
func (w *ResponseWriter) Status() int { return w.status }

// Size returns the number of body bytes written.
func (w *ResponseWriter) Size() int { return w.size }

// Send runs the outbound chain on resp and writes it.
func (w *ResponseWriter) Send(resp *Response) error {
	if w.sent {
		return ErrAlreadySent
	}

	rc := RequestContextFrom(w.req.Context())
	if rc != nil {
		rc.Phase = PhaseOutbound
	}
	for _, s := range w.outbound {
		if err := s.Handle(w.req, resp); err != nil {
			return fmt.Errorf("outbound %s: %w", s.Name, err)
		}
	}

	w.write(resp)
	if rc != nil {
		rc.Phase = PhaseDone
	}
	return nil
}

// write encodes resp without running the outbound chain.
func (w *ResponseWriter) write(resp *Response) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	maps.Copy(w.Header(), resp.Header)

	if resp.Body == nil {
		w.WriteHeader(status)
		return
	}

	enc := w.codecs.negotiate(w.req.Header.Get("Accept"))
	w.Header().Set("Content-Type", enc.ContentType())
	w.WriteHeader(status)
	//nolint:errcheck,gosec // best-effort after WriteHeader
	enc.Encode(w, resp.Body)
}

// Respond writes resp through w's outbound chain when w is a pipeline
// ResponseWriter, and encodes it as JSON otherwise. Custom error sinks use it
// to keep the default encoding behavior.
func Respond(w http.ResponseWriter, r *http.Request, resp *Response) error {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw.Send(resp)
	}
	rw := newResponseWriter(w, r, nil, newCodecRegistry(nil))
	rw.write(resp)
	return nil
}

// applyResponseSetters copies cookies and headers declared by a handler's
// response value into resp.
func applyResponseSetters(resp *Response, v any) {
	if cs, ok := v.(CookieSetter); ok {
		for _, c := range cs.Cookies() {
			if s := c.String(); s != "" {
				resp.Header.Add("Set-Cookie", s)
			}
		}
	}
	if hs, ok := v.(HeaderSetter); ok {
		hs.SetHeaders(resp.Header)
	}
}
