package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sofragment/fragment/internal/model"
)

const userColumns = `id, username, email, password_hash, role, created_at, updated_at`

// CreateUser inserts a new user. ID (when empty), CreatedAt and UpdatedAt
// are populated. A duplicate username or email yields *ConflictError.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.Must(uuid.NewV7()).String()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	ts := now()
	u.CreatedAt = ts
	u.UpdatedAt = ts

	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :username, :email, :password_hash, :role, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, u); err != nil {
		return translate("insert user", err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, op, where string, arg interface{}) (*model.User, error) {
	var u model.User
	q := s.db.Rebind(`SELECT ` + userColumns + ` FROM users WHERE ` + where)
	if err := s.db.GetContext(ctx, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "get user", "id = ?", id)
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "get user by email", "email = ?", email)
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.getUser(ctx, "get user by username", "username = ?", username)
}

// ListUsers returns all users ordered by creation time.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// UpdateUserProfile writes the username and email of u and refreshes
// UpdatedAt. The password hash and role are left untouched.
func (s *Store) UpdateUserProfile(ctx context.Context, u *model.User) error {
	u.UpdatedAt = now()
	const q = `UPDATE users SET username = :username, email = :email, updated_at = :updated_at WHERE id = :id`
	return s.execUserUpdate(ctx, "update user", q, u)
}

// UpdateUserPassword stores a new password hash for the user.
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	u := &model.User{ID: id, PasswordHash: passwordHash, UpdatedAt: now()}
	const q = `UPDATE users SET password_hash = :password_hash, updated_at = :updated_at WHERE id = :id`
	return s.execUserUpdate(ctx, "update user password", q, u)
}

// UpdateUserRole changes the user's role.
func (s *Store) UpdateUserRole(ctx context.Context, id string, role model.Role) error {
	u := &model.User{ID: id, Role: role, UpdatedAt: now()}
	const q = `UPDATE users SET role = :role, updated_at = :updated_at WHERE id = :id`
	return s.execUserUpdate(ctx, "update user role", q, u)
}

func (s *Store) execUserUpdate(ctx context.Context, op, q string, u *model.User) error {
	result, err := s.db.NamedExecContext(ctx, q, u)
	if err != nil {
		return translate(op, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user by ID. Their API keys are cascade deleted by the
// foreign key constraint.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
