package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/baechuer/real-time-ressys/services/user-service/internal/domain"
)

const pgUniqueViolation = "23505"

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *UserRepo) getOne(ctx context.Context, where string, args ...any) (domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + where + ` LIMIT 1;`
	ur, err := scanUser(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exec runs a single row write and reports a missing row as ErrUserNotFound.
func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	return execOne(ctx, r.db, q, args...)
}

func execOne(ctx context.Context, db queryer, q string, args ...any) error {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	if n == 0 {
		return domain.ErrUserNotFound()
	}
	return nil
}

func (r *UserRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}

// guardLastAdmin locks every admin row and refuses when id is the only one
// left. Concurrent demotions or deletes queue on the row locks, so the second
// one sees the first one's result.
func guardLastAdmin(ctx context.Context, tx *sql.Tx, id string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM users WHERE role = 'admin' FOR UPDATE;`)
	if err != nil {
		return domain.ErrDBUnavailable(err)
	}
	defer rows.Close()

	admins, target := 0, false
	for rows.Next() {
		var aid string
		if err := rows.Scan(&aid); err != nil {
			return domain.ErrDBUnavailable(err)
		}
		admins++
		if aid == id {
			target = true
		}
	}
	if err := rows.Err(); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	if target && admins <= 1 {
		return domain.ErrLastAdminProtected()
	}
	return nil
}

// ---------- auth.UserRepo ----------

func (r *UserRepo) Create(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = domain.NormalizeEmail(u.Email)
	if u.ID == "" || u.Email == "" || u.PasswordHash == "" {
		return domain.User{}, domain.ErrInternal(fmt.Errorf("create user: id, email and password hash are required"))
	}
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO users (id, name, email, password_hash, avatar_public_id, avatar_url, role, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING ` + userColumns + `;
`
	ur, err := scanUser(r.db.QueryRowContext(ctx, q,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar.PublicID, u.Avatar.URL, string(u.Role), u.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.getOne(ctx, `id = $1`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.getOne(ctx, `lower(email) = $1`, email)
}

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	defer rows.Close()

	out := make([]domain.User, 0)
	for rows.Next() {
		ur, err := scanUser(rows)
		if err != nil {
			return nil, domain.ErrDBUnavailable(err)
		}
		out = append(out, ur.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrDBUnavailable(err)
	}
	return out, nil
}

func (r *UserRepo) CountByRole(ctx context.Context, role domain.Role) (int, error) {
	const q = `SELECT COUNT(*) FROM users WHERE role = $1;`
	var n int
	if err := r.db.QueryRowContext(ctx, q, string(role)).Scan(&n); err != nil {
		return 0, domain.ErrDBUnavailable(err)
	}
	return n, nil
}

// UpdateProfile applies only the non-nil fields of the patch. A patch that
// sets a non-admin role runs under the last admin guard.
func (r *UserRepo) UpdateProfile(ctx context.Context, id string, p domain.ProfilePatch) (domain.User, error) {
	if p.Role == nil || *p.Role == domain.RoleAdmin {
		return updateProfile(ctx, r.db, id, p)
	}

	var out domain.User
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := guardLastAdmin(ctx, tx, id); err != nil {
			return err
		}
		u, err := updateProfile(ctx, tx, id, p)
		out = u
		return err
	})
	return out, err
}

func updateProfile(ctx context.Context, db queryer, id string, p domain.ProfilePatch) (domain.User, error) {
	var name, email, role any
	if p.Name != nil {
		name = *p.Name
	}
	if p.Email != nil {
		email = domain.NormalizeEmail(*p.Email)
	}
	if p.Role != nil {
		role = string(*p.Role)
	}

	const q = `
UPDATE users
SET name  = COALESCE($2, name),
    email = COALESCE($3, email),
    role  = COALESCE($4, role)
WHERE id = $1
RETURNING ` + userColumns + `;
`
	ur, err := scanUser(db.QueryRowContext(ctx, q, id, name, email, role))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound()
		}
		if isUniqueViolation(err) {
			return domain.User{}, domain.ErrEmailAlreadyExists()
		}
		return domain.User{}, domain.ErrDBUnavailable(err)
	}
	return ur.toDomain(), nil
}

func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, `UPDATE users SET password_hash = $2, token_version = token_version + 1 WHERE id = $1;`, id, hash)
}

func (r *UserRepo) UpdateAvatar(ctx context.Context, id string, a domain.Avatar) error {
	return r.exec(ctx, `UPDATE users SET avatar_public_id = $2, avatar_url = $3 WHERE id = $1;`, id, a.PublicID, a.URL)
}

// Delete removes the row under the last admin guard.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := guardLastAdmin(ctx, tx, id); err != nil {
			return err
		}
		return execOne(ctx, tx, `DELETE FROM users WHERE id = $1;`, id)
	})
}

func (r *UserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	const q = `
UPDATE users
SET reset_token_hash = $2,
    reset_token_expires_at = $3
WHERE id = $1;
`
	return r.exec(ctx, q, id, tokenHash, expiry)
}

func (r *UserRepo) ClearResetToken(ctx context.Context, id string) error {
	const q = `
UPDATE users
SET reset_token_hash = NULL,
    reset_token_expires_at = NULL
WHERE id = $1;
`
	return r.exec(ctx, q, id)
}

func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	if tokenHash == "" {
		return domain.User{}, domain.ErrUserNotFound()
	}
	return r.getOne(ctx, `reset_token_hash = $1 AND reset_token_expires_at > $2`, tokenHash, now)
}

// ConsumeResetToken is a single conditional UPDATE, so two concurrent resets
// with the same token cannot both succeed. It also bumps token_version.
func (r *UserRepo) ConsumeResetToken(ctx context.Context, id, tokenHash, newHash string, now time.Time) error {
	const q = `
UPDATE users
SET password_hash = $4,
    token_version = token_version + 1,
    reset_token_hash = NULL,
    reset_token_expires_at = NULL
WHERE id = $1
  AND reset_token_hash = $2
  AND reset_token_expires_at > $3;
`
	return r.exec(ctx, q, id, tokenHash, now, newHash)
}

func (r *UserRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return domain.ErrDBUnavailable(err)
	}
	return nil
}
