package middlewares

import (
	"net/http"
	"strings"

	httperrors "github.com/afp-labs/mailgrant/internal/http/errors"
	jwtx "github.com/afp-labs/mailgrant/internal/jwt"
)

// RequireAuth validates Authorization: Bearer <JWT> and puts the user id and
// email in the context. Missing or invalid tokens get a 401.
func RequireAuth(issuer *jwtx.Issuer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := strings.TrimSpace(r.Header.Get("Authorization"))
			if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="missing bearer token"`)
				httperrors.WriteError(w, httperrors.ErrTokenMissing)
				return
			}
			raw := strings.TrimSpace(ah[len("Bearer "):])

			claims, err := issuer.Parse(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token"`)
				httperrors.WriteError(w, httperrors.ErrTokenInvalid)
				return
			}

			ctx := WithUserID(r.Context(), claims.Subject)
			if claims.Email != "" {
				ctx = WithUserEmail(ctx, claims.Email)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
