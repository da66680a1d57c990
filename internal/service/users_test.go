package service

import (
	"context"
	"testing"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
)

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	resp, err := env.users.CreateUser(ctx, "alice", " Alice@Example.com ", "password1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", resp.User.Email)
	}
	if resp.User.Role != model.RoleUser {
		t.Errorf("got role %q, want USER", resp.User.Role)
	}
	if resp.User.PasswordHash == "password1" || resp.User.PasswordHash == "" {
		t.Errorf("password stored in clear or missing: %q", resp.User.PasswordHash)
	}

	claims, err := env.auth.ValidateToken(resp.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID() != resp.User.ID || claims.Email != resp.User.Email || claims.Role != resp.User.Role {
		t.Errorf("claims %+v do not match user %+v", claims, resp.User)
	}
}

func TestCreateUserDuplicates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.users.CreateUser(ctx, "alice", "alice@example.com", "password1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	_, err := env.users.CreateUser(ctx, "bob", "ALICE@example.com", "password1")
	assertType(t, err, apperr.TypeValidation, "Email already registered")
	if e, _ := apperr.As(err); e.Details.(map[string]string)["field"] != "email" {
		t.Errorf("details: got %v", e.Details)
	}

	_, err = env.users.CreateUser(ctx, "alice", "bob@example.com", "password1")
	assertType(t, err, apperr.TypeValidation, "Username already taken")
	if e, _ := apperr.As(err); e.Details.(map[string]string)["field"] != "username" {
		t.Errorf("details: got %v", e.Details)
	}
}

func TestAuthenticateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, err := env.users.CreateUser(ctx, "alice", "alice@example.com", "password1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	resp, err := env.users.AuthenticateUser(ctx, "Alice@example.com", "password1")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if resp.User.ID != created.User.ID {
		t.Errorf("got user %q, want %q", resp.User.ID, created.User.ID)
	}

	_, errWrong := env.users.AuthenticateUser(ctx, "alice@example.com", "wrongpass1")
	_, errUnknown := env.users.AuthenticateUser(ctx, "nobody@example.com", "password1")
	assertType(t, errWrong, apperr.TypeAuthentication, "Invalid email or password")
	assertType(t, errUnknown, apperr.TypeAuthentication, "Invalid email or password")
	if errWrong.Error() != errUnknown.Error() {
		t.Errorf("login failures differ: %q vs %q", errWrong, errUnknown)
	}
}

func TestUpdateUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.users.CreateUser(ctx, "alice", "alice@example.com", "password1")
	if _, err := env.users.CreateUser(ctx, "bob", "bob@example.com", "password1"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	name := "alicia"
	u, err := env.users.UpdateUser(ctx, alice.User.ID, model.UserUpdate{Username: &name})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if u.Username != "alicia" || u.Email != "alice@example.com" {
		t.Errorf("got %+v", u)
	}

	// Keeping one's own email is not a conflict.
	same := "alice@example.com"
	if _, err := env.users.UpdateUser(ctx, alice.User.ID, model.UserUpdate{Email: &same}); err != nil {
		t.Errorf("UpdateUser own email: %v", err)
	}

	taken := "bob@example.com"
	_, err = env.users.UpdateUser(ctx, alice.User.ID, model.UserUpdate{Email: &taken})
	assertType(t, err, apperr.TypeValidation, "Email already registered")

	takenName := "bob"
	_, err = env.users.UpdateUser(ctx, alice.User.ID, model.UserUpdate{Username: &takenName})
	assertType(t, err, apperr.TypeValidation, "Username already taken")

	_, err = env.users.UpdateUser(ctx, "missing", model.UserUpdate{Username: &name})
	assertType(t, err, apperr.TypeNotFound, "User not found")

	// Password is untouched by profile updates.
	if _, err := env.users.AuthenticateUser(ctx, "alice@example.com", "password1"); err != nil {
		t.Errorf("login after update: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.users.CreateUser(ctx, "alice", "alice@example.com", "password1")

	err := env.users.ChangePassword(ctx, alice.User.ID, "wrongpass1", "password2")
	assertType(t, err, apperr.TypeAuthentication, "")

	if err := env.users.ChangePassword(ctx, alice.User.ID, "password1", "password2"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := env.users.AuthenticateUser(ctx, "alice@example.com", "password1"); err == nil {
		t.Error("old password still accepted")
	}
	if _, err := env.users.AuthenticateUser(ctx, "alice@example.com", "password2"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
}

func TestDeleteUserAndSetRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice, _ := env.users.CreateUser(ctx, "alice", "alice@example.com", "password1")

	if err := env.users.SetRole(ctx, alice.User.ID, model.RoleAdmin); err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	u, err := env.users.GetUserByID(ctx, alice.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if !u.IsAdmin() {
		t.Error("expected ADMIN role")
	}
	assertType(t, env.users.SetRole(ctx, alice.User.ID, "ROOT"), apperr.TypeValidation, "")

	if err := env.users.DeleteUser(ctx, alice.User.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	_, err = env.users.GetUserByID(ctx, alice.User.ID)
	assertType(t, err, apperr.TypeNotFound, "User not found")
	assertType(t, env.users.DeleteUser(ctx, alice.User.ID), apperr.TypeNotFound, "User not found")
}
