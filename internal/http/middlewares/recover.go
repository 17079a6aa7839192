package middlewares

import (
	"net/http"

	httperrors "github.com/afp-labs/mailgrant/internal/http/errors"
	"github.com/afp-labs/mailgrant/internal/observability/logger"
)

// WithRecover turns panics into 500 responses instead of crashing the server.
func WithRecover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.From(r.Context()).Error("panic recovered",
						logger.Op("recover"),
						logger.Any("panic", rec),
					)
					httperrors.WriteError(w, httperrors.ErrInternalServerError.WithDetail("panic recovered"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
