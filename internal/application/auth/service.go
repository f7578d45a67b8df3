package auth

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type Service struct {
	users   UserRepo
	hasher  PasswordHasher
	signer  SessionSigner
	resets  ResetTokens
	mailer  Mailer
	revoker SessionRevoker // optional
	avatars AvatarStorage  // optional

	sessionTTL           time.Duration
	passwordResetTTL     time.Duration
	passwordResetBaseURL string // e.g. https://shop.example.com/api/v1
	avatarPresignTTL     time.Duration

	audit func(action string, fields map[string]string)
	now   func() time.Time
}

type Config struct {
	SessionTTL           time.Duration
	PasswordResetTTL     time.Duration
	PasswordResetBaseURL string
	AvatarPresignTTL     time.Duration
}

func NewService(
	users UserRepo,
	hasher PasswordHasher,
	signer SessionSigner,
	resets ResetTokens,
	mailer Mailer,
	cfg Config,
) *Service {
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 5 * 24 * time.Hour
	}
	resetTTL := cfg.PasswordResetTTL
	if resetTTL <= 0 {
		resetTTL = 15 * time.Minute
	}
	presignTTL := cfg.AvatarPresignTTL
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &Service{
		users:  users,
		hasher: hasher,
		signer: signer,
		resets: resets,
		mailer: mailer,

		sessionTTL:           sessionTTL,
		passwordResetTTL:     resetTTL,
		passwordResetBaseURL: cfg.PasswordResetBaseURL,
		avatarPresignTTL:     presignTTL,

		audit: func(string, map[string]string) {},
		now:   time.Now,
	}
}

func (s *Service) WithAudit(fn func(action string, fields map[string]string)) *Service {
	if fn != nil {
		s.audit = fn
	}
	return s
}

func (s *Service) WithRevoker(r SessionRevoker) *Service {
	s.revoker = r
	return s
}

func (s *Service) WithAvatarStorage(a AvatarStorage) *Service {
	s.avatars = a
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) AvatarUploadsEnabled() bool { return s.avatars != nil }

func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }

// IssuedSession is a freshly signed session handed back to the client.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
}

// AuthResult is returned by every operation that logs the caller in.
type AuthResult struct {
	User    domain.User
	Session IssuedSession
}

func (s *Service) issueSession(u domain.User) (AuthResult, error) {
	token, claims, err := s.signer.Sign(u.ID, u.Role, u.TokenVersion, s.sessionTTL)
	if err != nil {
		return AuthResult{}, domain.ErrTokenSignFailed(err)
	}
	return AuthResult{
		User:    u,
		Session: IssuedSession{Token: token, ExpiresAt: claims.ExpiresAt},
	}, nil
}

// Authenticate resolves a session token to its caller. The role is read from
// the store so role changes and deletions apply to already issued tokens, and
// a password change invalidates every session signed before it.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, domain.ErrTokenMissing()
	}
	claims, err := s.signer.Verify(token)
	if err != nil {
		return domain.Session{}, err
	}

	if s.revoker != nil && claims.TokenID != "" {
		revoked, err := s.revoker.IsRevoked(ctx, claims.TokenID)
		// fail open
		if err == nil && revoked {
			return domain.Session{}, domain.ErrTokenRevoked()
		}
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			return domain.Session{}, domain.ErrTokenInvalid()
		}
		return domain.Session{}, err
	}
	if claims.Version != u.TokenVersion {
		return domain.Session{}, domain.ErrTokenRevoked()
	}
	return domain.Session{UserID: u.ID, Role: u.Role}, nil
}

// hashFailure keeps input errors the hasher reports, such as an over-long
// password, and treats anything else as internal.
func hashFailure(err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.ErrHashFailed(err)
}
