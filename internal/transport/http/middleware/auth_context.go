package middleware

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type ctxKey string

const ctxSession ctxKey = "session"

func WithSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

// SessionFromContext returns the caller attached by Auth. ok is false for
// anonymous requests.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(ctxSession).(domain.Session)
	return s, ok && s.UserID != ""
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	return s.UserID, ok
}
