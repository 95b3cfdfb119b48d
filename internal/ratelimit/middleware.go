package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/kuitang/tagnotes/internal/errs"
	"github.com/kuitang/tagnotes/internal/obs"
)

// DefaultRetryAfterSeconds is the default value for the Retry-After header
// when a rate limit is exceeded.
const DefaultRetryAfterSeconds = 1

// ClientKey identifies the client by the host part of RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates HTTP middleware that enforces per-client rate limits.
// keyFn defaults to ClientKey; an empty key skips limiting.
//
// The middleware returns 429 Too Many Requests when the rate limit is exceeded,
// including:
//   - Retry-After header with the recommended wait time in seconds
//   - X-RateLimit-Remaining header with the approximate remaining requests
func RateLimitMiddleware(limiter *RateLimiter, keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			rateLimiter := limiter.GetLimiter(key)
			if !rateLimiter.Allow() {
				obs.From(r.Context()).Warn("rate limit exceeded", "client", key, "path", r.URL.Path)
				writeLimited(w, limiter.RetryAfter())
				return
			}

			remaining := int(rateLimiter.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}

func writeLimited(w http.ResponseWriter, retryAfter int) {
	err := errs.New(errs.RateLimited, "too many requests")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errs.HTTPStatus(errs.CodeOf(err)))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": errs.MessageOf(err),
		"code":  string(errs.CodeOf(err)),
	})
}
