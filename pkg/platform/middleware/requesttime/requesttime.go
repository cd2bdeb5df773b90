// Package requesttime pins a single "now" per HTTP request. Deadline and
// timelock checks, audit timestamps and the daily-cap rollover all read the
// same instant, so a request can never straddle a boundary mid-flight.
package requesttime

import (
	"net/http"
	"time"

	"github.com/agirails/actp-kernel-sub001/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
