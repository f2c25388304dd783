package gateway

import (
	"net/http"

	"github.com/google/uuid"
)

// bind fills the per-request identity of the RequestContext. The request ID
// is taken from the request header when present, generated otherwise, and
// echoed on the response.
func (g *Gateway) bind(w *ResponseWriter, r *http.Request) error {
	rc := RequestContextFrom(r.Context())

	id := r.Header.Get(g.idHeader)
	if id == "" {
		id = uuid.NewString()
	}
	rc.RequestID = id
	w.Header().Set(g.idHeader, id)
	return nil
}

// GetRequestID returns the request ID assigned to r, or "".
func GetRequestID(r *http.Request) string {
	if rc := RequestContextFrom(r.Context()); rc != nil {
		return rc.RequestID
	}
	return ""
}
