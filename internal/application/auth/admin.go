package auth

import (
	"context"
	"strings"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

// Callers of the admin operations have already passed domain.Authorize.

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.users.List(ctx)
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return s.users.GetByID(ctx, id)
}

type AdminUpdateInput struct {
	Name  string
	Email string
	Role  string
}

// AdminUpdateUser edits name, email and role of any user. Demoting the last
// admin is refused.
func (s *Service) AdminUpdateUser(ctx context.Context, actorID, targetID string, in AdminUpdateInput) (domain.User, error) {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("admin.update_user", map[string]string{
		"actor_id":  actorID,
		"target_id": targetID,
	})

	patch, err := buildPatch(in.Name, in.Email, in.Role)
	if err != nil {
		audit.record(err, nil)
		return domain.User{}, err
	}

	target, err := s.GetUser(ctx, targetID)
	if err != nil {
		audit.record(err, nil)
		return domain.User{}, err
	}

	if target.Role == domain.RoleAdmin && patch.Role != nil && *patch.Role != domain.RoleAdmin {
		if err := s.ensureNotLastAdmin(ctx); err != nil {
			audit.record(err, nil)
			return domain.User{}, err
		}
	}

	updated, err := s.users.UpdateProfile(ctx, targetID, patch)
	if err != nil {
		audit.record(err, nil)
		return domain.User{}, err
	}

	audit.record(nil, map[string]string{"role": string(updated.Role)})
	return updated, nil
}

// DeleteUser removes a user record and its uploaded avatar.
func (s *Service) DeleteUser(ctx context.Context, actorID, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	audit := s.auditFor("admin.delete_user", map[string]string{
		"actor_id":  actorID,
		"target_id": targetID,
	})

	target, err := s.GetUser(ctx, targetID)
	if err != nil {
		audit.record(err, nil)
		return err
	}

	if target.Role == domain.RoleAdmin {
		if err := s.ensureNotLastAdmin(ctx); err != nil {
			audit.record(err, nil)
			return err
		}
	}

	if err := s.users.Delete(ctx, targetID); err != nil {
		audit.record(err, nil)
		return err
	}

	s.removeAvatarObject(ctx, target.Avatar)
	audit.record(nil, nil)
	return nil
}

func (s *Service) ensureNotLastAdmin(ctx context.Context) error {
	n, err := s.users.CountByRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return domain.ErrLastAdminProtected()
	}
	return nil
}
