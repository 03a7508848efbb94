package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/address-book/internal/model"
	"github.com/iliyamo/address-book/internal/utils"
)

// UserRepo persists users. Every password write goes through
// utils.EnsureHashed so that pre-hashed values are never hashed twice.
type UserRepo struct {
	DB   *sql.DB
	Cost int // bcrypt cost
}

func NewUserRepo(db *sql.DB, cost int) *UserRepo {
	if cost <= 0 {
		cost = utils.DefaultBcryptCost
	}
	return &UserRepo{DB: db, Cost: cost}
}

// NormalizeUsername trims and lowercases a username.
func NormalizeUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

const userPublicColumns = "id,username,role,must_change_password,created_at,updated_at"

func scanPublicUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &role, &u.MustChangePassword, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	u.Role = model.Role(role)
	return u, nil
}

// Create inserts user and returns its ID. New users always start with
// must_change_password set.
func (r *UserRepo) Create(ctx context.Context, username, password string, role model.Role) (uint64, error) {
	hash, err := utils.EnsureHashed(password, r.Cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, must_change_password) VALUES (?,?,?,1)",
		NormalizeUsername(username), hash, string(role))
	if err != nil {
		return 0, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by normalized username, including the
// password hash. It is the only read that selects the hash.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	var role string
	var hash sql.NullString
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,username,password_hash,role,must_change_password,created_at,updated_at FROM users WHERE username=? LIMIT 1",
		NormalizeUsername(username)).Scan(&u.ID, &u.Username, &hash, &role, &u.MustChangePassword, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.PasswordHash = hash.String
	u.Role = model.Role(role)
	return u, nil
}

// GetByID fetches a user by id without the password hash.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := scanPublicUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userPublicColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// List returns every user ordered by username, without hashes.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userPublicColumns+" FROM users ORDER BY username")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanPublicUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ChangeOwnPassword stores a new password chosen by the user and clears
// must_change_password.
func (r *UserRepo) ChangeOwnPassword(ctx context.Context, id uint64, password string) error {
	return r.setPassword(ctx, id, password, false)
}

// SetPasswordByAdmin stores a password set through an administrative path
// and forces must_change_password back on.
func (r *UserRepo) SetPasswordByAdmin(ctx context.Context, id uint64, password string) error {
	return r.setPassword(ctx, id, password, true)
}

func (r *UserRepo) setPassword(ctx context.Context, id uint64, password string, mustChange bool) error {
	hash, err := utils.EnsureHashed(password, r.Cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, must_change_password=?, updated_at=CURRENT_TIMESTAMP(3) WHERE id=?",
		hash, mustChange, id)
	return affectedOrNotFound(res, err)
}

// UpdateRole changes a user's role.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, role model.Role) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=?, updated_at=CURRENT_TIMESTAMP(3) WHERE id=?", string(role), id)
	return affectedOrNotFound(res, err)
}

// ForcePasswordReset flags the user to change password on next login.
func (r *UserRepo) ForcePasswordReset(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET must_change_password=1, updated_at=CURRENT_TIMESTAMP(3) WHERE id=?", id)
	return affectedOrNotFound(res, err)
}

// Delete removes a user. Users who still own entries cannot be deleted and
// yield ErrConflict.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return classify(err)
	}
	return affectedOrNotFound(res, nil)
}

// affectedOrNotFound turns a zero-row statement into ErrNotFound. It relies
// on the connection reporting matched rows (clientFoundRows, set by
// config.Config.DSN); otherwise an UPDATE that rewrites identical values
// would look like a missing row.
func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
