package postgres

import (
	"database/sql"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

const userColumns = `id, name, email, password_hash, avatar_public_id, avatar_url, role, reset_token_hash, reset_token_expires_at, created_at, token_version`

type userRow struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   string
	AvatarPublicID string
	AvatarURL      string
	Role           string
	ResetTokenHash sql.NullString
	ResetExpiresAt sql.NullTime
	CreatedAt      time.Time
	TokenVersion   int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (userRow, error) {
	var ur userRow
	err := s.Scan(
		&ur.ID,
		&ur.Name,
		&ur.Email,
		&ur.PasswordHash,
		&ur.AvatarPublicID,
		&ur.AvatarURL,
		&ur.Role,
		&ur.ResetTokenHash,
		&ur.ResetExpiresAt,
		&ur.CreatedAt,
		&ur.TokenVersion,
	)
	return ur, err
}

func (ur userRow) toDomain() domain.User {
	u := domain.User{
		ID:           ur.ID,
		Name:         ur.Name,
		Email:        ur.Email,
		PasswordHash: ur.PasswordHash,
		Avatar:       domain.Avatar{PublicID: ur.AvatarPublicID, URL: ur.AvatarURL},
		Role:         domain.Role(ur.Role),
		TokenVersion: ur.TokenVersion,
		CreatedAt:    ur.CreatedAt,
	}
	if ur.ResetTokenHash.Valid {
		u.ResetTokenHash = ur.ResetTokenHash.String
	}
	if ur.ResetExpiresAt.Valid {
		exp := ur.ResetExpiresAt.Time
		u.ResetTokenExpiry = &exp
	}
	return u
}
