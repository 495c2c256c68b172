package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/luli-tech/task-manager/internal/model"
	"github.com/luli-tech/task-manager/internal/utils"
)

// UserRepo provides data access to the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create inserts a password-authenticated user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role) VALUES (?,?,?)",
		email, hash, role)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

const userColumns = "id,email,password_hash,google_id,role,is_active,created_at,updated_at"

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u        model.User
		passHash sql.NullString
		googleID sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &passHash, &googleID, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if passHash.Valid {
		u.PasswordHash = &passHash.String
	}
	if googleID.Valid {
		u.GoogleID = &googleID.String
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetRole returns the role of an active user. Missing or deactivated
// accounts yield ErrUserInactive so that token rotation fails closed
// for them.
func (r *UserRepo) GetRole(ctx context.Context, userID uint64) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx,
		"SELECT role FROM users WHERE id=? AND is_active=1 LIMIT 1", userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrUserInactive
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// UpdateProfile changes a user's own email and/or password hash. Nil
// fields are left untouched; callers pass at least one. A duplicate
// email maps to ErrEmailExists like Create.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, email, passwordHash *string) error {
	set := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if email != nil {
		set = append(set, "email=?")
		args = append(args, strings.ToLower(strings.TrimSpace(*email)))
	}
	if passwordHash != nil {
		set = append(set, "password_hash=?")
		args = append(args, *passwordHash)
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(set, ", ")+" WHERE id=?", args...)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrEmailExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Zero changed rows is also the no-op update of an existing row.
		var exists int
		if qErr := r.DB.QueryRowContext(ctx,
			"SELECT 1 FROM users WHERE id=? LIMIT 1", id).Scan(&exists); qErr == sql.ErrNoRows {
			return sql.ErrNoRows
		} else if qErr != nil {
			return qErr
		}
	}
	return nil
}

// List returns all users ordered by id. Admin-only surface; the
// password hash stays in the struct but handlers never serialize it.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var (
			u        model.User
			passHash sql.NullString
			googleID sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Email, &passHash, &googleID, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		if passHash.Valid {
			u.PasswordHash = &passHash.String
		}
		if googleID.Valid {
			u.GoogleID = &googleID.String
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SetActive toggles the account active flag. Deactivated users keep
// their rows; only authentication is refused.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=? WHERE id=?", active, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetRole updates a user's role (admin flag toggling).
func (r *UserRepo) SetRole(ctx context.Context, id uint64, role string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET role=? WHERE id=?", role, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
