package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/user-service/internal/logger"
)

const resetEmailSubject = "Password recovery"

// ForgotPassword stores a fresh reset token for email and mails the reset
// link. requestBaseURL is used when no base URL is configured. The returned
// address is the one the link was sent to.
func (s *Service) ForgotPassword(ctx context.Context, email, requestBaseURL string) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return "", domain.ErrInvalidField("email", "empty")
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	plain, hash, err := s.resets.Generate()
	if err != nil {
		return "", domain.ErrRandomFailed(err)
	}
	if err := s.users.SetResetToken(ctx, u.ID, hash, s.now().Add(s.passwordResetTTL)); err != nil {
		return "", err
	}

	link := s.resetLink(requestBaseURL, plain)
	msg := Email{
		To:      u.Email,
		Subject: resetEmailSubject,
		Body: fmt.Sprintf(
			"Your password reset link is:\n\n%s\n\nThe link expires in %s. If you did not request this email, ignore it.",
			link, s.passwordResetTTL,
		),
		ResetUserID: u.ID,
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		if clearErr := s.users.ClearResetToken(context.WithoutCancel(ctx), u.ID); clearErr != nil {
			logger.WithCtx(ctx).Error().Err(clearErr).Str("user_id", u.ID).Msg("reset token cleanup failed")
		}
		return "", domain.ErrEmailSendFailed(err)
	}

	return u.Email, nil
}

func (s *Service) resetLink(requestBaseURL, token string) string {
	base := s.passwordResetBaseURL
	if base == "" {
		base = requestBaseURL
	}
	return strings.TrimRight(base, "/") + "/password/reset/" + token
}

// ResetPassword exchanges a valid reset token for a new password and logs the
// user in. The token is single use; sessions issued before the reset stop
// authenticating.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) (AuthResult, error) {
	if token == "" {
		return AuthResult{}, domain.ErrResetTokenInvalid()
	}
	hash := s.resets.Hash(token)
	now := s.now()

	u, err := s.users.GetByResetToken(ctx, hash, now)
	if err != nil {
		if domain.Is(err, "user_not_found") {
			return AuthResult{}, domain.ErrResetTokenInvalid()
		}
		return AuthResult{}, err
	}

	if password != confirm {
		return AuthResult{}, domain.ErrPasswordMismatch()
	}
	if len(password) < domain.PasswordMinLen {
		return AuthResult{}, domain.ErrInvalidField("password", "must be at least 8 characters")
	}

	newHash, err := s.hasher.Hash(password)
	if err != nil {
		return AuthResult{}, hashFailure(err)
	}

	if err := s.users.ConsumeResetToken(ctx, u.ID, hash, newHash, now); err != nil {
		// lost a race with another reset using the same token
		if domain.Is(err, "user_not_found") {
			return AuthResult{}, domain.ErrResetTokenInvalid()
		}
		return AuthResult{}, err
	}
	u.PasswordHash = newHash
	u.TokenVersion++
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil

	s.auditFor("user.password_reset", map[string]string{"user_id": u.ID}).record(nil, nil)
	return s.issueSession(u)
}

// UpdatePassword changes the caller's password after checking the old one.
func (s *Service) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword, confirm string) (AuthResult, error) {
	if userID == "" {
		return AuthResult{}, domain.ErrTokenMissing()
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.hasher.Compare(u.PasswordHash, oldPassword); err != nil {
		return AuthResult{}, domain.ErrOldPasswordIncorrect()
	}
	if newPassword != confirm {
		return AuthResult{}, domain.ErrPasswordMismatch()
	}
	if len(newPassword) < domain.PasswordMinLen {
		return AuthResult{}, domain.ErrInvalidField("newPassword", "must be at least 8 characters")
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return AuthResult{}, hashFailure(err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		return AuthResult{}, err
	}
	u.PasswordHash = newHash
	u.TokenVersion++

	s.auditFor("user.password_update", map[string]string{"user_id": userID}).record(nil, nil)
	return s.issueSession(u)
}
