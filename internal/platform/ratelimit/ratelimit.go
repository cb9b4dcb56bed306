package ratelimit

import (
	"net/http"

	"golang.org/x/time/rate"
)

// New returns a token-bucket limiter allowing rps requests per second with
// the given burst. A non-positive rps disables limiting.
func New(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Middleware returns chi-compatible middleware that rejects requests with
// 429 once limiter has no tokens left.
func Middleware(limiter *rate.Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
