package middleware

import (
	"net/http"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

// RequireRole runs domain.Authorize against the session set by Auth.
func RequireRole(required domain.Role, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())
			if err := domain.Authorize(sess, required); err != nil {
				writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
