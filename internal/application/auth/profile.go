package auth

import (
	"context"
	"strings"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

func (s *Service) Me(ctx context.Context, userID string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.ErrTokenMissing()
	}
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile changes the caller's own name and email. Role is never
// touched here.
func (s *Service) UpdateProfile(ctx context.Context, userID, name, email string) (domain.User, error) {
	if userID == "" {
		return domain.User{}, domain.ErrTokenMissing()
	}
	patch, err := buildPatch(name, email, "")
	if err != nil {
		return domain.User{}, err
	}
	return s.users.UpdateProfile(ctx, userID, patch)
}

func buildPatch(name, email, role string) (domain.ProfilePatch, error) {
	var p domain.ProfilePatch
	if n := strings.TrimSpace(name); n != "" {
		if err := domain.CheckName(n); err != nil {
			return domain.ProfilePatch{}, err
		}
		p.Name = &n
	}
	if e := domain.NormalizeEmail(email); e != "" {
		p.Email = &e
	}
	if r := strings.TrimSpace(role); r != "" {
		if !domain.IsValidRole(r) {
			return domain.ProfilePatch{}, domain.ErrInvalidRole(r)
		}
		rr := domain.Role(r)
		p.Role = &rr
	}
	return p, nil
}
