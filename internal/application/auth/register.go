package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates a user with the default role and avatar, then logs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return AuthResult{}, domain.ErrInvalidField("name/email/password", "empty")
	}
	if err := domain.CheckName(name); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AuthResult{}, hashFailure(err)
	}

	created, err := s.users.Create(ctx, domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Avatar:       domain.DefaultAvatar(),
		Role:         domain.RoleUser,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return AuthResult{}, err
	}

	return s.issueSession(created)
}
