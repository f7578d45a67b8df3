package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

func TestMe(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)

	u, err := env.svc.Me(context.Background(), "u1")
	if err != nil || u.Email != "a@b.com" {
		t.Fatalf("unexpected %+v %v", u, err)
	}

	_, err = env.svc.Me(context.Background(), "missing")
	requireErrCode(t, err, "user_not_found")
}

func TestUpdateProfile_NameAndEmailOnly(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	env.seed("u2", "c@d.com", "pw", domain.RoleUser)
	ctx := context.Background()

	u, err := env.svc.UpdateProfile(ctx, "u1", "Renamed User", "New@B.com")
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if u.Name != "Renamed User" || u.Email != "new@b.com" || u.Role != domain.RoleUser {
		t.Fatalf("unexpected user %+v", u)
	}

	_, err = env.svc.UpdateProfile(ctx, "u1", "", "c@d.com")
	requireErrCode(t, err, "email_already_exists")
}

func TestUpdateProfile_PaddedShortNameRejected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("a1", "admin@b.com", "pw", domain.RoleAdmin)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	ctx := context.Background()

	_, err := env.svc.UpdateProfile(ctx, "u1", "  ab  ", "")
	requireErrCode(t, err, "invalid_field")

	_, err = env.svc.AdminUpdateUser(ctx, "a1", "u1", AdminUpdateInput{Name: "  ab  "})
	requireErrCode(t, err, "invalid_field")

	if got := env.users.get("u1").Name; got != "User u1" {
		t.Fatalf("name must be unchanged, got %q", got)
	}
}

func TestAdminUpdateUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("a1", "admin@b.com", "pw", domain.RoleAdmin)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	ctx := context.Background()

	u, err := env.svc.AdminUpdateUser(ctx, "a1", "u1", AdminUpdateInput{Role: "admin"})
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if u.Role != domain.RoleAdmin {
		t.Fatalf("expected admin, got %q", u.Role)
	}
	a := env.lastAudit(t)
	if a.action != "admin.update_user" || a.fields["actor_id"] != "a1" || a.fields["target_id"] != "u1" {
		t.Fatalf("unexpected audit %+v", a)
	}

	_, err = env.svc.AdminUpdateUser(ctx, "a1", "u1", AdminUpdateInput{Role: "root"})
	requireErrCode(t, err, "invalid_role")

	_, err = env.svc.AdminUpdateUser(ctx, "a1", "nope", AdminUpdateInput{Name: "Someone"})
	requireErrCode(t, err, "user_not_found")
	if a := env.lastAudit(t); a.fields["result"] != "error" || a.fields["error_code"] != "user_not_found" {
		t.Fatalf("unexpected audit %+v", a)
	}
}

func TestAdminUpdateUser_LastAdminProtected(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("a1", "admin@b.com", "pw", domain.RoleAdmin)
	ctx := context.Background()

	_, err := env.svc.AdminUpdateUser(ctx, "a1", "a1", AdminUpdateInput{Role: "user"})
	requireErrCode(t, err, "last_admin_protected")

	env.seed("a2", "admin2@b.com", "pw", domain.RoleAdmin)
	if _, err := env.svc.AdminUpdateUser(ctx, "a1", "a2", AdminUpdateInput{Role: "user"}); err != nil {
		t.Fatalf("demotion with another admin left: %v", err)
	}

	env.users.countByRoleErr = domain.ErrDBUnavailable(errors.New("down"))
	_, err = env.svc.AdminUpdateUser(ctx, "a1", "a1", AdminUpdateInput{Role: "user"})
	requireErrCode(t, err, "db_unavailable")
}

func TestLastAdmin_StaleCountStillRefusedByStore(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("a1", "admin@b.com", "pw", domain.RoleAdmin)
	ctx := context.Background()

	// the count saw a second admin that has since been demoted
	env.users.staleAdminCount = 2

	_, err := env.svc.AdminUpdateUser(ctx, "a1", "a1", AdminUpdateInput{Role: "user"})
	requireErrCode(t, err, "last_admin_protected")
	if a := env.lastAudit(t); a.fields["error_code"] != "last_admin_protected" {
		t.Fatalf("unexpected audit %+v", a)
	}

	requireErrCode(t, env.svc.DeleteUser(ctx, "a1", "a1"), "last_admin_protected")

	if env.users.get("a1").Role != domain.RoleAdmin {
		t.Fatalf("last admin must keep the role")
	}
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("a1", "admin@b.com", "pw", domain.RoleAdmin)
	u := env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	u.Avatar = domain.Avatar{PublicID: "avatars/u1/x.png", URL: "https://cdn.test/avatars/u1/x.png"}
	env.users.put(u)
	ctx := context.Background()

	if err := env.svc.DeleteUser(ctx, "a1", "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.GetUser(ctx, "u1"); !domain.Is(err, "user_not_found") {
		t.Fatalf("expected user gone, got %v", err)
	}
	if len(env.avatars.deleted) != 1 || env.avatars.deleted[0] != "avatars/u1/x.png" {
		t.Fatalf("expected avatar object removed, got %v", env.avatars.deleted)
	}

	requireErrCode(t, env.svc.DeleteUser(ctx, "a1", "u1"), "user_not_found")
	requireErrCode(t, env.svc.DeleteUser(ctx, "a1", "a1"), "last_admin_protected")
}

func TestListUsers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	env.seed("u2", "c@d.com", "pw", domain.RoleAdmin)

	users, err := env.svc.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
}

func TestRequestAvatarUpload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed("u1", "a@b.com", "pw", domain.RoleUser)
	ctx := context.Background()

	_, err := env.svc.RequestAvatarUpload(ctx, "u1", "application/pdf")
	requireErrCode(t, err, "invalid_field")

	first, err := env.svc.RequestAvatarUpload(ctx, "u1", "image/png")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if first.UploadURL == "" || first.Avatar.URL != "https://cdn.test/"+first.Avatar.PublicID {
		t.Fatalf("unexpected upload %+v", first)
	}
	if env.users.get("u1").Avatar != first.Avatar {
		t.Fatalf("avatar not stored")
	}
	if len(env.avatars.deleted) != 0 {
		t.Fatalf("placeholder avatar must not be deleted")
	}

	second, err := env.svc.RequestAvatarUpload(ctx, "u1", "image/jpeg")
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if second.Avatar.PublicID == first.Avatar.PublicID {
		t.Fatalf("expected a new key")
	}
	if len(env.avatars.deleted) != 1 || env.avatars.deleted[0] != first.Avatar.PublicID {
		t.Fatalf("expected previous object removed, got %v", env.avatars.deleted)
	}

	env.avatars.presignErr = errors.New("s3 down")
	_, err = env.svc.RequestAvatarUpload(ctx, "u1", "image/png")
	requireErrCode(t, err, "storage_unavailable")
}

func TestRequestAvatarUpload_NotConfigured(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.svc.avatars = nil

	_, err := env.svc.RequestAvatarUpload(context.Background(), "u1", "image/png")
	requireErrCode(t, err, "storage_unavailable")
}

func TestDomainCode(t *testing.T) {
	if domainCode(nil) != "" {
		t.Fatalf("nil should map to empty code")
	}
	if domainCode(domain.ErrUserNotFound()) != "user_not_found" {
		t.Fatalf("unexpected code")
	}
	if domainCode(errors.New("x")) != "non_domain_error" {
		t.Fatalf("unexpected code for plain error")
	}
}
