package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByIP limits requests per client IP to requestsPerMinute using a
// sliding window. Zero disables the limiter.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return passthrough
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

// RateLimitByAPIKey limits requests per authenticated API key. It must run
// after RequireAPIKey. Zero disables the limiter.
func RateLimitByAPIKey(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return passthrough
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p := GetAPIKey(r.Context()); p != nil {
				return "key:" + strconv.FormatInt(p.KeyID, 10), nil
			}
			return "anonymous", nil
		}),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusTooManyRequests, "Rate limit exceeded, slow down")
}

func passthrough(next http.Handler) http.Handler { return next }
