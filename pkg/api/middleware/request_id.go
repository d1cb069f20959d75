package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDMiddleware stamps every request with a unique X-Request-ID header,
// generating one when the caller didn't supply one.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r)
		})
	}
}
