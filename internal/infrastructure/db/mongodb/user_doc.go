package mongodb

import (
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type avatarDoc struct {
	PublicID string `bson:"public_id"`
	URL      string `bson:"url"`
}

type userDoc struct {
	ID               string     `bson:"_id"`
	Name             string     `bson:"name"`
	Email            string     `bson:"email"`
	PasswordHash     string     `bson:"password_hash"`
	Avatar           avatarDoc  `bson:"avatar"`
	Role             string     `bson:"role"`
	ResetTokenHash   string     `bson:"reset_token_hash,omitempty"`
	ResetTokenExpiry *time.Time `bson:"reset_token_expires_at,omitempty"`
	TokenVersion     int        `bson:"token_version"`
	CreatedAt        time.Time  `bson:"created_at"`
}

func fromDomain(u domain.User) userDoc {
	return userDoc{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		PasswordHash:     u.PasswordHash,
		Avatar:           avatarDoc{PublicID: u.Avatar.PublicID, URL: u.Avatar.URL},
		Role:             string(u.Role),
		ResetTokenHash:   u.ResetTokenHash,
		ResetTokenExpiry: u.ResetTokenExpiry,
		TokenVersion:     u.TokenVersion,
		CreatedAt:        u.CreatedAt,
	}
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:               d.ID,
		Name:             d.Name,
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		Avatar:           domain.Avatar{PublicID: d.Avatar.PublicID, URL: d.Avatar.URL},
		Role:             domain.Role(d.Role),
		ResetTokenHash:   d.ResetTokenHash,
		ResetTokenExpiry: d.ResetTokenExpiry,
		TokenVersion:     d.TokenVersion,
		CreatedAt:        d.CreatedAt,
	}
}
