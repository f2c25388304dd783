package gateway

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Middleware is the standard middleware signature compatible with the entire
// Go middleware ecosystem.
type Middleware func(next http.Handler) http.Handler

// Recovery returns middleware that recovers panics escaping the pipeline,
// such as those raised by other middleware, and responds with a generic
// error payload.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						"panic", rec,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
					)
					//nolint:errcheck // nothing left to report to
					Respond(w, r, &Response{
						Status: http.StatusInternalServerError,
						Body: &Payload{
							Name:    NameInternal,
							Message: DefaultMessage,
							Status:  http.StatusInternalServerError,
						},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
