package middlewares

import "net/http"

// WithNoStore sets Cache-Control: no-store. Applied to endpoints whose
// responses carry credential material or per-user data.
func WithNoStore() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
