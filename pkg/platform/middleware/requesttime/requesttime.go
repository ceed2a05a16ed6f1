// Package requesttime pins one "now" per HTTP request so OTP expiry checks,
// access-request timestamps and attestation times agree within a request.
package requesttime

import (
	"net/http"
	"time"

	"custody/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
