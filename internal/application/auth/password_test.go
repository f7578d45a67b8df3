package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

func TestForgotPassword_UnknownEmail_NotFoundAndNoMail(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.svc.ForgotPassword(context.Background(), "ghost@example.com", "http://api.test/api/v1")
	requireErrCode(t, err, "user_not_found")
	if len(env.mailer.sent) != 0 {
		t.Fatalf("no email expected")
	}
}

func TestForgotPassword_StoresHashAndMailsPlainToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)

	to, err := env.svc.ForgotPassword(context.Background(), "A@b.com", "http://api.test/api/v1/")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if to != "a@b.com" {
		t.Fatalf("unexpected recipient %q", to)
	}

	u := env.users.get("u1")
	if u.ResetTokenHash != env.resets.Hash("plain-token") {
		t.Fatalf("expected stored hash, got %q", u.ResetTokenHash)
	}
	if u.ResetTokenHash == "plain-token" {
		t.Fatalf("plaintext token must not be stored")
	}
	if u.ResetTokenExpiry == nil || !u.ResetTokenExpiry.Equal(env.now.Add(15*time.Minute)) {
		t.Fatalf("unexpected expiry %v", u.ResetTokenExpiry)
	}

	if len(env.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(env.mailer.sent))
	}
	msg := env.mailer.sent[0]
	if msg.To != "a@b.com" {
		t.Fatalf("unexpected to %q", msg.To)
	}
	if !strings.Contains(msg.Body, "http://api.test/api/v1/password/reset/plain-token") {
		t.Fatalf("reset link missing from body: %q", msg.Body)
	}
}

func TestForgotPassword_ConfiguredBaseURLWins(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.svc.passwordResetBaseURL = "https://shop.example.com/api/v1"
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)

	if _, err := env.svc.ForgotPassword(context.Background(), "a@b.com", "http://internal:8080/api/v1"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if !strings.Contains(env.mailer.sent[0].Body, "https://shop.example.com/api/v1/password/reset/plain-token") {
		t.Fatalf("unexpected body: %q", env.mailer.sent[0].Body)
	}
}

func TestForgotPassword_MailFailure_ClearsToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	env.mailer.err = errors.New("smtp down")

	_, err := env.svc.ForgotPassword(context.Background(), "a@b.com", "http://api.test/api/v1")
	requireErrCode(t, err, "email_send_failed")
	if strings.Contains(err.(*domain.Error).Message, "smtp") {
		t.Fatalf("client message leaks transport detail")
	}

	u := env.users.get("u1")
	if u.ResetTokenHash != "" || u.ResetTokenExpiry != nil {
		t.Fatalf("reset fields must be cleared, got %+v", u)
	}
}

func TestForgotPassword_RandomFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	env.resets.err = errors.New("entropy")

	_, err := env.svc.ForgotPassword(context.Background(), "a@b.com", "http://x")
	requireErrCode(t, err, "random_failed")
}

func forgot(t *testing.T, env *testEnv) {
	t.Helper()
	env.seed("u1", "a@b.com", "oldpassword", domain.RoleUser)
	if _, err := env.svc.ForgotPassword(context.Background(), "a@b.com", "http://x"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
}

func TestResetPassword_Success_SingleUse(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)

	res, err := env.svc.ResetPassword(context.Background(), "plain-token", "newpassword", "newpassword")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if res.Session.Token == "" {
		t.Fatalf("expected session")
	}

	u := env.users.get("u1")
	if u.PasswordHash != "hash:newpassword" {
		t.Fatalf("password not replaced")
	}
	if u.ResetTokenHash != "" || u.ResetTokenExpiry != nil {
		t.Fatalf("token fields not cleared")
	}
	if _, err := env.svc.Login(context.Background(), "a@b.com", "newpassword"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	_, err = env.svc.ResetPassword(context.Background(), "plain-token", "another1", "another1")
	requireErrCode(t, err, "reset_token_invalid")
}

func TestResetPassword_Expired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)
	env.now = env.now.Add(15*time.Minute + time.Second)

	_, err := env.svc.ResetPassword(context.Background(), "plain-token", "newpassword", "newpassword")
	requireErrCode(t, err, "reset_token_invalid")
	if env.users.get("u1").PasswordHash != "hash:oldpassword" {
		t.Fatalf("password must be unchanged")
	}
}

func TestResetPassword_TokenCheckedBeforeMismatch(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)

	_, err := env.svc.ResetPassword(context.Background(), "wrong-token", "aaaaaaaa", "bbbbbbbb")
	requireErrCode(t, err, "reset_token_invalid")

	_, err = env.svc.ResetPassword(context.Background(), "plain-token", "aaaaaaaa", "bbbbbbbb")
	requireErrCode(t, err, "password_mismatch")

	if env.users.get("u1").ResetTokenHash == "" {
		t.Fatalf("mismatch must not consume the token")
	}
}

func TestResetPassword_LostRace(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)
	env.users.consumeResetErr = domain.ErrUserNotFound()

	_, err := env.svc.ResetPassword(context.Background(), "plain-token", "newpassword", "newpassword")
	requireErrCode(t, err, "reset_token_invalid")
}

func TestUpdatePassword(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "oldpassword", domain.RoleUser)
	ctx := context.Background()

	_, err := env.svc.UpdatePassword(ctx, "u1", "wrong", "newpassword", "newpassword")
	requireErrCode(t, err, "old_password_incorrect")
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("wrong old password is a 400, got %s", domain.KindOf(err))
	}

	_, err = env.svc.UpdatePassword(ctx, "u1", "oldpassword", "newpassword", "different")
	requireErrCode(t, err, "password_mismatch")

	res, err := env.svc.UpdatePassword(ctx, "u1", "oldpassword", "newpassword", "newpassword")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if res.Session.Token == "" {
		t.Fatalf("expected fresh session")
	}
	if env.users.get("u1").PasswordHash != "hash:newpassword" {
		t.Fatalf("hash not updated")
	}
	if a := env.lastAudit(t); a.action != "user.password_update" || a.fields["result"] != "success" {
		t.Fatalf("unexpected audit %+v", a)
	}

	_, err = env.svc.UpdatePassword(ctx, "", "x", "y", "y")
	requireErrCode(t, err, "token_missing")
}

func TestResetPassword_OldSessionsStopAuthenticating(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)
	ctx := context.Background()

	old, err := env.svc.Login(ctx, "a@b.com", "oldpassword")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	res, err := env.svc.ResetPassword(ctx, "plain-token", "newpassword", "newpassword")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	_, err = env.svc.Authenticate(ctx, old.Session.Token)
	requireErrCode(t, err, "token_revoked")

	if _, err := env.svc.Authenticate(ctx, res.Session.Token); err != nil {
		t.Fatalf("session issued by the reset must work: %v", err)
	}
}

func TestUpdatePassword_OtherSessionsStopAuthenticating(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "oldpassword", domain.RoleUser)
	ctx := context.Background()

	other, _ := env.svc.Login(ctx, "a@b.com", "oldpassword")

	res, err := env.svc.UpdatePassword(ctx, "u1", "oldpassword", "newpassword", "newpassword")
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err = env.svc.Authenticate(ctx, other.Session.Token)
	requireErrCode(t, err, "token_revoked")

	sess, err := env.svc.Authenticate(ctx, res.Session.Token)
	if err != nil || sess.UserID != "u1" {
		t.Fatalf("fresh session: %+v, %v", sess, err)
	}
}

func TestForgotPassword_MailCarriesResetUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)

	if len(env.mailer.sent) != 1 || env.mailer.sent[0].ResetUserID != "u1" {
		t.Fatalf("unexpected mail %+v", env.mailer.sent)
	}
}

func TestResetPassword_ShortPasswordKeepsToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	forgot(t, env)

	_, err := env.svc.ResetPassword(context.Background(), "plain-token", "short", "short")
	requireErrCode(t, err, "invalid_field")
	if env.users.get("u1").ResetTokenHash == "" {
		t.Fatalf("rejected password must not consume the token")
	}
}
