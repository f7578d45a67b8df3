package auth

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

/*
UserRepo
--------
Persistence port for user records. Implementations return domain errors:
ErrUserNotFound for a missing id/email, ErrEmailAlreadyExists on a unique
email violation and ErrDBUnavailable for anything else. UpdateProfile (when
it demotes an admin) and Delete must refuse atomically with
ErrLastAdminProtected when the target is the only admin left.
*/
type UserRepo interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	CountByRole(ctx context.Context, role domain.Role) (int, error)

	UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateAvatar(ctx context.Context, id string, avatar domain.Avatar) error
	Delete(ctx context.Context, id string) error

	// Reset token lifecycle.
	SetResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error)
	// ConsumeResetToken sets the password and clears the token fields in one
	// write, only while tokenHash is still current and unexpired.
	// It and UpdatePasswordHash increment the user's TokenVersion.
	ConsumeResetToken(ctx context.Context, id, tokenHash, newHash string, now time.Time) error
}

/*
PasswordHasher
--------------
Abstracts bcrypt.
*/
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) error // nil if match
}

/*
SessionSigner
-------------
Issues and verifies session tokens (JWT). Used by the service and, through
Service.Authenticate, by the auth middleware. Version carries the user's
TokenVersion at signing time.
*/
type SessionClaims struct {
	UserID    string
	Role      domain.Role
	Version   int
	TokenID   string
	ExpiresAt time.Time
}

type SessionSigner interface {
	Sign(userID string, role domain.Role, version int, ttl time.Duration) (token string, claims SessionClaims, err error)
	Verify(token string) (SessionClaims, error)
}

// SessionRevoker keeps logged out token ids until the token would expire anyway.
type SessionRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ResetTokens generates reset tokens and the keyed hash that gets stored.
type ResetTokens interface {
	Generate() (plain string, hash string, err error)
	Hash(plain string) string
}

/*
Mailer
------
Delivers a message directly (SMTP, log) or hands it to a queue (RabbitMQ).
A nil error means the message was accepted.
*/
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`

	// ResetUserID is set on reset mails so a queue worker that gives up on
	// the job can clear that user's reset token.
	ResetUserID string `json:"reset_user_id,omitempty"`
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// AvatarStorage hands out direct upload URLs for profile pictures.
type AvatarStorage interface {
	PresignUpload(ctx context.Context, key, contentType string) (url string, err error)
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
}
