package middleware

import (
	"context"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/infrastructure/security"
	appCtx "github.com/baechuer/real-time-ressys/services/user-service/internal/pkg/context"
)

// Authenticator resolves a raw session token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Session, error)
}

type WriteErrFunc func(http.ResponseWriter, *http.Request, error)

// Auth reads the session token from the "token" cookie or a Bearer header,
// resolves it and attaches the session to the request context.
func Auth(authn Authenticator, writeErr WriteErrFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.ReadSessionToken(r)
			if raw == "" {
				writeErr(w, r, domain.ErrTokenMissing())
				return
			}

			sess, err := authn.Authenticate(r.Context(), raw)
			if err != nil {
				writeErr(w, r, err)
				return
			}

			ctx := appCtx.WithActorID(WithSession(r.Context(), sess), sess.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
