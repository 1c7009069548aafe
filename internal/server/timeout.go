package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// TimeoutMiddleware caps how long a request may run, streams included. A
// request cut short by the cap is logged with timed_out=true. A non-positive
// timeout leaves requests unbounded.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				AddLogField(r.Context(), "timed_out", "true")
			}
		})
	}
}
