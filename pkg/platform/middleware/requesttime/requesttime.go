// Package requesttime pins a single "now" per request so consent timestamps
// and audit events written while handling it agree.
package requesttime

import (
	"net/http"
	"time"

	"obconsent/pkg/requestcontext"
)

// Middleware stamps each request with the wall clock, in UTC.
var Middleware = New(time.Now)

// New returns middleware that reads the request time from clock once.
func New(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
