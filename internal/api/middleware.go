// Package api implements the plansync REST API using chi.
package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// Throttle returns middleware that rejects requests beyond the limiter's
// rate with 429. A nil limiter lets everything through.
func Throttle(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l != nil && !l.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorBody("too many manual sync requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
