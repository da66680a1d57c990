package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/secrets"
	"github.com/sofragment/fragment/internal/store"
)

var (
	errEmailTaken    = apperr.Validation("Email already registered").WithDetails(map[string]string{"field": "email"})
	errUsernameTaken = apperr.Validation("Username already taken").WithDetails(map[string]string{"field": "username"})
	errBadLogin      = apperr.Authentication("Invalid email or password")
	errUserNotFound  = apperr.NotFound("User")
)

// UserService manages accounts: registration, login and profile changes.
type UserService struct {
	store  *store.Store
	hasher *secrets.PasswordHasher
	auth   *AuthService

	// decoy is verified against when the email is unknown so both login
	// failures cost one Argon2 pass.
	decoyOnce sync.Once
	decoy     string
}

func NewUserService(st *store.Store, hasher *secrets.PasswordHasher, auth *AuthService) *UserService {
	return &UserService{store: st, hasher: hasher, auth: auth}
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser registers a new account and returns it with a session token.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (*model.AuthResponse, error) {
	return s.createUser(ctx, username, email, password, model.RoleUser)
}

// CreateUserWithRole registers an account with an explicit role. Used by the
// operator CLI to bootstrap administrators.
func (s *UserService) CreateUserWithRole(ctx context.Context, username, email, password string, role model.Role) (*model.AuthResponse, error) {
	if !role.Valid() {
		return nil, apperr.Validation("Invalid role")
	}
	return s.createUser(ctx, username, email, password, role)
}

func (s *UserService) createUser(ctx context.Context, username, email, password string, role model.Role) (*model.AuthResponse, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	if err := s.checkAvailable(ctx, "", username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal("Failed to hash password", err)
	}

	u := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, liftStoreError(err, "Failed to create user")
	}
	return s.session(u)
}

// checkAvailable reports a ValidationError when email or username belongs to
// an account other than selfID. Email is checked first.
func (s *UserService) checkAvailable(ctx context.Context, selfID, username, email string) error {
	if email != "" {
		existing, err := s.store.GetUserByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != selfID:
			return errEmailTaken
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return apperr.Database("", err)
		}
	}
	if username != "" {
		existing, err := s.store.GetUserByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != selfID:
			return errUsernameTaken
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return apperr.Database("", err)
		}
	}
	return nil
}

// AuthenticateUser checks credentials. Unknown email and wrong password fail
// with the same error.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	u, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = s.hasher.Verify(s.decoyHash(), password)
			return nil, errBadLogin
		}
		return nil, apperr.Database("", err)
	}
	if err := s.hasher.Verify(u.PasswordHash, password); err != nil {
		return nil, errBadLogin
	}
	return s.session(u)
}

func (s *UserService) session(u *model.User) (*model.AuthResponse, error) {
	token, err := s.auth.IssueToken(u)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{User: u, Token: token}, nil
}

// GetUserByID returns the account with the given ID.
func (s *UserService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, liftStoreError(err, "")
	}
	return u, nil
}

// ListUsers returns every account.
func (s *UserService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Database("", err)
	}
	return users, nil
}

// UpdateUser applies a profile change. Only username and email can change
// here; the password has its own operation.
func (s *UserService) UpdateUser(ctx context.Context, id string, upd model.UserUpdate) (*model.User, error) {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, liftStoreError(err, "")
	}
	if upd.Empty() {
		return u, nil
	}

	var username, email string
	if upd.Username != nil {
		username = strings.TrimSpace(*upd.Username)
		u.Username = username
	}
	if upd.Email != nil {
		email = NormalizeEmail(*upd.Email)
		u.Email = email
	}
	if err := s.checkAvailable(ctx, u.ID, username, email); err != nil {
		return nil, err
	}

	if err := s.store.UpdateUserProfile(ctx, u); err != nil {
		return nil, liftStoreError(err, "Failed to update user")
	}
	return u, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return liftStoreError(err, "")
	}
	if err := s.hasher.Verify(u.PasswordHash, current); err != nil {
		return apperr.Authentication("Current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Internal("Failed to hash password", err)
	}
	if err := s.store.UpdateUserPassword(ctx, id, hash); err != nil {
		return liftStoreError(err, "Failed to update password")
	}
	return nil
}

// DeleteUser removes the account and all of its API keys.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return liftStoreError(err, "Failed to delete user")
	}
	return nil
}

// SetRole changes an account's role.
func (s *UserService) SetRole(ctx context.Context, id string, role model.Role) error {
	if !role.Valid() {
		return apperr.Validation("Invalid role")
	}
	if err := s.store.UpdateUserRole(ctx, id, role); err != nil {
		return liftStoreError(err, "Failed to update role")
	}
	return nil
}

// liftStoreError converts store sentinels into API errors. ErrNotFound from a
// user query means "User not found"; conflicts name the offending field.
func liftStoreError(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return errUserNotFound
	}
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		switch conflict.Field {
		case "email":
			return errEmailTaken
		case "username":
			return errUsernameTaken
		default:
			return apperr.Validation("Username or email already exists")
		}
	}
	return apperr.Database(msg, err)
}

func (s *UserService) decoyHash() string {
	s.decoyOnce.Do(func() {
		s.decoy, _ = s.hasher.Hash("decoy-password-0")
	})
	return s.decoy
}
