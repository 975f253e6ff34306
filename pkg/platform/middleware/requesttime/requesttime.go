// Package requesttime pins a single "now" for the lifetime of a request so
// that state transitions and audit events within one batch share a clock.
package requesttime

import (
	"net/http"
	"time"

	"alloggiati/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
