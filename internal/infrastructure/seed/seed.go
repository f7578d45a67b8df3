package seed

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

type Hasher interface {
	Hash(password string) (string, error)
}

type Repo interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
}

// Users creates the local development accounts. Safe to call on every start:
// existing emails are skipped.
func Users(ctx context.Context, repo Repo, hasher Hasher) int {
	seeds := []struct {
		Name  string
		Email string
		Role  domain.Role
		Pass  string
	}{
		{Name: "Dev Admin", Email: "admin@example.com", Role: domain.RoleAdmin, Pass: "AdminPassword123!"},
		{Name: "Dev User", Email: "user@example.com", Role: domain.RoleUser, Pass: "UserPassword123!"},
	}

	created := 0
	for _, s := range seeds {
		hash, err := hasher.Hash(s.Pass)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("email", s.Email).Msg("seed hash failed")
			continue
		}

		_, err = repo.Create(ctx, domain.User{
			ID:           uuid.NewString(),
			Name:         s.Name,
			Email:        s.Email,
			PasswordHash: hash,
			Avatar:       domain.DefaultAvatar(),
			Role:         s.Role,
			CreatedAt:    time.Now().UTC(),
		})
		if err != nil {
			if !domain.Is(err, "email_already_exists") {
				logger.Logger.Warn().Err(err).Str("email", s.Email).Msg("seed create failed")
			}
			continue
		}
		created++
	}

	logger.Logger.Info().Int("created", created).Msg("dev users seeded")
	return created
}
