package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

type auditEntry struct {
	action string
	fields map[string]string
}

/*
Fakes for ports
*/

type fakeUserRepo struct {
	mu sync.Mutex

	byID map[string]domain.User

	// injected errors (if set, method returns error)
	getByEmailErr   error
	getByIDErr      error
	countByRoleErr  error
	consumeResetErr error
	deleteErr       error

	// staleAdminCount, when set, is what CountByRole reports, standing in for
	// a concurrent writer that changed the admins after the count.
	staleAdminCount int

	clearedReset []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]domain.User{}}
}

func (f *fakeUserRepo) put(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[u.ID] = u
}

func (f *fakeUserRepo) get(id string) domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

func (f *fakeUserRepo) emailTaken(email, exceptID string) bool {
	for id, u := range f.byID {
		if id != exceptID && u.Email == email {
			return true
		}
	}
	return false
}

func (f *fakeUserRepo) Create(_ context.Context, u domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emailTaken(u.Email, "") {
		return domain.User{}, domain.ErrEmailAlreadyExists()
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByIDErr != nil {
		return domain.User{}, f.getByIDErr
	}
	u, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return u, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getByEmailErr != nil {
		return domain.User{}, f.getByEmailErr
	}
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound()
}

func (f *fakeUserRepo) List(_ context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.byID))
	for _, u := range f.byID {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeUserRepo) CountByRole(_ context.Context, role domain.Role) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countByRoleErr != nil {
		return 0, f.countByRoleErr
	}
	if role == domain.RoleAdmin && f.staleAdminCount > 0 {
		return f.staleAdminCount, nil
	}
	return f.countLocked(role), nil
}

func (f *fakeUserRepo) countLocked(role domain.Role) int {
	n := 0
	for _, u := range f.byID {
		if u.Role == role {
			n++
		}
	}
	return n
}

func (f *fakeUserRepo) lastAdminLocked(u domain.User) bool {
	return u.Role == domain.RoleAdmin && f.countLocked(domain.RoleAdmin) <= 1
}

func (f *fakeUserRepo) UpdateProfile(_ context.Context, id string, p domain.ProfilePatch) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound()
	}
	if p.Role != nil && *p.Role != domain.RoleAdmin && f.lastAdminLocked(u) {
		return domain.User{}, domain.ErrLastAdminProtected()
	}
	if p.Email != nil && f.emailTaken(*p.Email, id) {
		return domain.User{}, domain.ErrEmailAlreadyExists()
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	f.byID[id] = u
	return u, nil
}

func (f *fakeUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	u.PasswordHash = hash
	u.TokenVersion++
	f.byID[id] = u
	return nil
}

func (f *fakeUserRepo) UpdateAvatar(_ context.Context, id string, a domain.Avatar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	u.Avatar = a
	f.byID[id] = u
	return nil
}

func (f *fakeUserRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	u, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	if f.lastAdminLocked(u) {
		return domain.ErrLastAdminProtected()
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUserRepo) SetResetToken(_ context.Context, id, hash string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	u.ResetTokenHash = hash
	u.ResetTokenExpiry = &expiry
	f.byID[id] = u
	return nil
}

func (f *fakeUserRepo) ClearResetToken(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return domain.ErrUserNotFound()
	}
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	f.byID[id] = u
	f.clearedReset = append(f.clearedReset, id)
	return nil
}

func (f *fakeUserRepo) GetByResetToken(_ context.Context, hash string, now time.Time) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.ResetTokenValid(hash, now) {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound()
}

func (f *fakeUserRepo) ConsumeResetToken(_ context.Context, id, hash, newHash string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeResetErr != nil {
		return f.consumeResetErr
	}
	u, ok := f.byID[id]
	if !ok || !u.ResetTokenValid(hash, now) {
		return domain.ErrUserNotFound()
	}
	u.PasswordHash = newHash
	u.TokenVersion++
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	f.byID[id] = u
	return nil
}

// fakeHasher "hashes" by prefixing.
type fakeHasher struct {
	hashFn func(string) (string, error)
}

func (h *fakeHasher) Hash(pw string) (string, error) {
	if h.hashFn != nil {
		return h.hashFn(pw)
	}
	return "hash:" + pw, nil
}

func (h *fakeHasher) Compare(hash, pw string) error {
	if hash != "hash:"+pw {
		return errors.New("mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu      sync.Mutex
	n       int
	signErr error
	now     time.Time
	issued  map[string]SessionClaims
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{issued: map[string]SessionClaims{}}
}

func (f *fakeSigner) Sign(userID string, role domain.Role, version int, ttl time.Duration) (string, SessionClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signErr != nil {
		return "", SessionClaims{}, f.signErr
	}
	f.n++
	tok := "tok-" + userID + "-" + strings.Repeat("x", f.n)
	c := SessionClaims{UserID: userID, Role: role, Version: version, TokenID: "jti-" + tok, ExpiresAt: f.now.Add(ttl)}
	f.issued[tok] = c
	return tok, c, nil
}

func (f *fakeSigner) Verify(tok string) (SessionClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.issued[tok]
	if !ok {
		return SessionClaims{}, domain.ErrTokenInvalid()
	}
	return c, nil
}

type fakeResetTokens struct {
	next string
	err  error
}

func (f *fakeResetTokens) Generate() (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.next, f.Hash(f.next), nil
}

func (f *fakeResetTokens) Hash(plain string) string { return "h(" + plain + ")" }

type fakeMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
	getErr  error
}

func newFakeRevoker() *fakeRevoker {
	return &fakeRevoker{revoked: map[string]time.Duration{}}
}

func (f *fakeRevoker) Revoke(_ context.Context, id string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[id] = ttl
	return nil
}

func (f *fakeRevoker) IsRevoked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return false, f.getErr
	}
	_, ok := f.revoked[id]
	return ok, nil
}

type fakeAvatars struct {
	mu         sync.Mutex
	presignErr error
	deleted    []string
}

func (f *fakeAvatars) PresignUpload(_ context.Context, key, _ string) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	return "https://s3.test/upload/" + key, nil
}

func (f *fakeAvatars) PublicURL(key string) string { return "https://cdn.test/" + key }

func (f *fakeAvatars) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

/*
Test harness
*/

type testEnv struct {
	svc     *Service
	users   *fakeUserRepo
	hasher  *fakeHasher
	signer  *fakeSigner
	resets  *fakeResetTokens
	mailer  *fakeMailer
	revoker *fakeRevoker
	avatars *fakeAvatars
	now     time.Time

	auditMu sync.Mutex
	audits  []auditEntry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users:   newFakeUserRepo(),
		hasher:  &fakeHasher{},
		signer:  newFakeSigner(),
		resets:  &fakeResetTokens{next: "plain-token"},
		mailer:  &fakeMailer{},
		revoker: newFakeRevoker(),
		avatars: &fakeAvatars{},
		now:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	env.signer.now = env.now
	env.svc = NewService(env.users, env.hasher, env.signer, env.resets, env.mailer, Config{
		SessionTTL:       time.Hour,
		PasswordResetTTL: 15 * time.Minute,
	}).
		WithRevoker(env.revoker).
		WithAvatarStorage(env.avatars).
		WithClock(func() time.Time { return env.now }).
		WithAudit(func(action string, fields map[string]string) {
			env.auditMu.Lock()
			defer env.auditMu.Unlock()
			env.audits = append(env.audits, auditEntry{action: action, fields: fields})
		})
	return env
}

func (e *testEnv) seed(id, email, password string, role domain.Role) domain.User {
	u := domain.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash:" + password,
		Avatar:       domain.DefaultAvatar(),
		Role:         role,
		CreatedAt:    e.now,
	}
	e.users.put(u)
	return u
}

func (e *testEnv) lastAudit(t *testing.T) auditEntry {
	t.Helper()
	e.auditMu.Lock()
	defer e.auditMu.Unlock()
	if len(e.audits) == 0 {
		t.Fatalf("expected an audit entry")
	}
	return e.audits[len(e.audits)-1]
}
