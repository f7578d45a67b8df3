package auth

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

// Logout revokes the presented token when it is still valid. Nothing here can
// fail the request: the cookie is cleared by the caller regardless.
func (s *Service) Logout(ctx context.Context, token string) {
	if token == "" || s.revoker == nil {
		return
	}
	claims, err := s.signer.Verify(token)
	if err != nil || claims.TokenID == "" {
		return
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.revoker.Revoke(ctx, claims.TokenID, ttl); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("user_id", claims.UserID).Msg("session revoke failed")
	}
}
