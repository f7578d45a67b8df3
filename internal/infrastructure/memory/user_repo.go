package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

// UserRepo is the dev/test store; every method holds the lock for the whole
// read-modify-write so it offers the same single record atomicity as the databases.
type UserRepo struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string // email -> userID
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.ID == "" {
		return domain.User{}, domain.ErrInternal(nil)
	}
	u.Email = domain.NormalizeEmail(u.Email)
	if _, exists := r.byEmail[u.Email]; exists {
		return domain.User{}, domain.ErrEmailAlreadyExists()
	}

	r.byID[u.ID] = u
	r.byEmail[u.Email] = u.ID
	return u, nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.byID[id], nil
}

// List returns users oldest first.
func (r *UserRepo) List(_ context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0, len(r.byID))
	for _, u := range r.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *UserRepo) CountByRole(_ context.Context, role domain.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countLocked(role), nil
}

func (r *UserRepo) countLocked(role domain.Role) int {
	n := 0
	for _, u := range r.byID {
		if u.Role == role {
			n++
		}
	}
	return n
}

// lastAdminLocked reports whether u is the only admin. Callers hold mu.
func (r *UserRepo) lastAdminLocked(u domain.User) bool {
	return u.Role == domain.RoleAdmin && r.countLocked(domain.RoleAdmin) <= 1
}

func (r *UserRepo) UpdateProfile(_ context.Context, id string, p domain.ProfilePatch) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	if p.Role != nil && *p.Role != domain.RoleAdmin && r.lastAdminLocked(u) {
		return domain.User{}, domain.ErrLastAdminProtected()
	}

	if p.Email != nil {
		email := domain.NormalizeEmail(*p.Email)
		if owner, taken := r.byEmail[email]; taken && owner != id {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		delete(r.byEmail, u.Email)
		u.Email = email
		r.byEmail[email] = id
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Role != nil {
		u.Role = *p.Role
	}

	r.byID[id] = u
	return u, nil
}

func (r *UserRepo) update(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	fn(&u)
	r.byID[id] = u
	return nil
}

func (r *UserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *domain.User) {
		u.PasswordHash = hash
		u.TokenVersion++
	})
}

func (r *UserRepo) UpdateAvatar(_ context.Context, id string, a domain.Avatar) error {
	return r.update(id, func(u *domain.User) { u.Avatar = a })
}

func (r *UserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	if r.lastAdminLocked(u) {
		return domain.ErrLastAdminProtected()
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	return nil
}

func (r *UserRepo) SetResetToken(_ context.Context, id, hash string, expiry time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.ResetTokenHash = hash
		u.ResetTokenExpiry = &expiry
	})
}

func (r *UserRepo) ClearResetToken(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		u.ResetTokenHash = ""
		u.ResetTokenExpiry = nil
	})
}

func (r *UserRepo) GetByResetToken(_ context.Context, hash string, now time.Time) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.ResetTokenValid(hash, now) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound()
}

func (r *UserRepo) ConsumeResetToken(_ context.Context, id, hash, newHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok || !u.ResetTokenValid(hash, now) {
		return domain.ErrUserNotFound()
	}
	u.PasswordHash = newHash
	u.TokenVersion++
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	r.byID[id] = u
	return nil
}

func (r *UserRepo) Ping(context.Context) error { return nil }
