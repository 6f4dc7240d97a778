package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SecurityHeaders sets conservative browser security headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// ValidIDParams rejects requests whose named URL params are not UUIDs.
func ValidIDParams(params ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range params {
				if v := chi.URLParam(r, p); v != "" {
					if err := ValidateID(v); err != nil {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusBadRequest)
						w.Write([]byte(`{"error":"invalid ` + p + `"}`))
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
