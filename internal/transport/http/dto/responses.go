package dto

import (
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type AvatarResponse struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// UserResponse is the client view of a user. Password and reset fields are
// never part of it.
type UserResponse struct {
	ID        string         `json:"_id"`
	Name      string         `json:"name"`
	Email     string         `json:"email"`
	Avatar    AvatarResponse `json:"avatar"`
	Role      string         `json:"role"`
	CreatedAt time.Time      `json:"createdAt"`
}

func User(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    AvatarResponse{PublicID: u.Avatar.PublicID, URL: u.Avatar.URL},
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func Users(us []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(us))
	for _, u := range us {
		out = append(out, User(u))
	}
	return out
}

type AvatarUploadResponse struct {
	UploadURL string         `json:"upload_url"`
	Avatar    AvatarResponse `json:"avatar"`
	ExpiresIn int64          `json:"expires_in"`
}
