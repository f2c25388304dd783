package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Timeout returns middleware that bounds each request by a deadline. An
// operation's x-timeout wins over d. A handler that is still running when
// the deadline passes fails with the Timeout classification (504), even if
// it later returns a result.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := d
			if rc := RequestContextFrom(r.Context()); rc != nil && rc.Operation != nil && rc.Operation.Timeout > 0 {
				limit = rc.Operation.Timeout
			}
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// expired returns a Timeout failure once ctx's deadline has passed.
func expired(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Fail(NameTimeout).Wrap(context.DeadlineExceeded)
	}
	return nil
}
