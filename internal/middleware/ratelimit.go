package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// RateLimit creates rate limiting middleware keyed by client IP.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			ip, err := httprate.KeyByIP(r)
			return "ip:" + ip, err
		}),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

// SessionRateLimit limits requests per session. It must be mounted below a
// route that binds {sessionID}; other requests fall back to the client IP.
func SessionRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if sessionID := chi.URLParam(r, "sessionID"); sessionID != "" {
				return "session:" + sessionID, nil
			}
			ip, err := httprate.KeyByIP(r)
			return "ip:" + ip, err
		}),
		httprate.WithLimitHandler(limitExceeded(windowLength)),
	)
}

func limitExceeded(window time.Duration) http.HandlerFunc {
	retryAfter := strconv.Itoa(int(window.Seconds()))
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retryAfter)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded","retry_after":` + retryAfter + `}`))
	}
}
