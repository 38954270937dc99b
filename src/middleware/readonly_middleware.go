package middleware

import (
	"net/http"

	"expense-tracker-server/src/util"
)

// ReadOnlyMiddleware rejects writes while the server runs in read-only mode,
// e.g. during a database maintenance window. Authentication stays available
// so clients can keep reading.
func ReadOnlyMiddleware(readOnly bool) func(http.Handler) http.Handler {
	allowedPosts := map[string]bool{
		"/api/auth/login":   true,
		"/api/auth/refresh": true,
		"/api/auth/logout":  true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !readOnly {
				next.ServeHTTP(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			case http.MethodPost:
				if allowedPosts[r.URL.Path] {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Retry-After", "300")
			util.Error(w, http.StatusServiceUnavailable, "READ_ONLY", "server is in read-only mode")
		})
	}
}
