package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sofragment/fragment/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), SQLite, "") // in-memory
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, username, email string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Email: email, PasswordHash: "hash"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createTestUser(t, s, "alice", "alice@example.com")
	if u.ID == "" {
		t.Fatal("expected ID after create")
	}
	if u.Role != model.RoleUser {
		t.Errorf("got role %q, want %q", u.Role, model.RoleUser)
	}

	got, err := s.GetUserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.Username != "alice" || got.Email != "alice@example.com" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("created_at round trip: got %v, want %v", got.CreatedAt, u.CreatedAt)
	}

	if _, err := s.GetUserByEmail(ctx, "alice@example.com"); err != nil {
		t.Errorf("GetUserByEmail: %v", err)
	}
	if _, err := s.GetUserByUsername(ctx, "alice"); err != nil {
		t.Errorf("GetUserByUsername: %v", err)
	}

	got.Username = "alice2"
	if err := s.UpdateUserProfile(ctx, got); err != nil {
		t.Fatalf("UpdateUserProfile: %v", err)
	}
	if err := s.UpdateUserPassword(ctx, u.ID, "newhash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}
	if err := s.UpdateUserRole(ctx, u.ID, model.RoleAdmin); err != nil {
		t.Fatalf("UpdateUserRole: %v", err)
	}

	got, _ = s.GetUserByID(ctx, u.ID)
	if got.Username != "alice2" {
		t.Errorf("got username %q, want alice2", got.Username)
	}
	if got.PasswordHash != "newhash" {
		t.Errorf("got hash %q, want newhash", got.PasswordHash)
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("got role %q, want ADMIN", got.Role)
	}

	n, err := s.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d users, want 1", n)
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetUserByID(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestUpdateMissingUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateUserPassword(ctx, "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateUserPassword: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateUserRole(ctx, "nope", model.RoleAdmin); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateUserRole: expected ErrNotFound, got %v", err)
	}
}

func TestUserUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestUser(t, s, "alice", "alice@example.com")

	err := s.CreateUser(ctx, &model.User{Username: "bob", Email: "alice@example.com", PasswordHash: "h"})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "email" {
		t.Errorf("got field %q, want email", conflict.Field)
	}

	err = s.CreateUser(ctx, &model.User{Username: "alice", Email: "other@example.com", PasswordHash: "h"})
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "username" {
		t.Errorf("got field %q, want username", conflict.Field)
	}

	bob := createTestUser(t, s, "bob", "bob@example.com")
	bob.Email = "alice@example.com"
	if err := s.UpdateUserProfile(ctx, bob); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError on profile update, got %v", err)
	}
}

func newTestKey(userID, hash string) *model.APIKey {
	return &model.APIKey{
		UserID:        userID,
		KeyHash:       hash,
		KeyCiphertext: "sealed-" + hash,
		KeyPrefix:     "frgmt-0123456789",
		Name:          "key " + hash,
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "alice", "alice@example.com")

	exp := time.Now().Add(time.Hour)
	key := newTestKey(u.ID, "h1")
	key.ExpiresAt = &exp
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if key.ID == "" {
		t.Fatal("expected ID after create")
	}

	got, err := s.GetAPIKeyByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("GetAPIKeyByHash: %v", err)
	}
	if got.ID != key.ID || got.UserID != u.ID {
		t.Errorf("got %+v", got)
	}
	if got.IsAdmin || got.IsRevoked {
		t.Errorf("unexpected flags: admin=%v revoked=%v", got.IsAdmin, got.IsRevoked)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*key.ExpiresAt) {
		t.Errorf("expires_at round trip: got %v, want %v", got.ExpiresAt, key.ExpiresAt)
	}
	if got.LastUsed != nil {
		t.Errorf("expected nil last_used, got %v", got.LastUsed)
	}

	used := time.Now()
	if err := s.TouchAPIKey(ctx, key.ID, used); err != nil {
		t.Fatalf("TouchAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, key.ID)
	if got.LastUsed == nil {
		t.Fatal("expected last_used to be set")
	}

	if err := s.RevokeAPIKey(ctx, key.ID, u.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}
	got, _ = s.GetAPIKey(ctx, key.ID)
	if !got.IsRevoked {
		t.Error("expected key to be revoked")
	}
	if err := s.RevokeAPIKey(ctx, key.ID, u.ID); err != nil {
		t.Errorf("revoking twice: %v", err)
	}

	if _, err := s.GetAPIKeyByHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.TouchAPIKey(ctx, "missing", used); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound touching missing key, got %v", err)
	}
}

func TestRevokeRequiresOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createTestUser(t, s, "alice", "alice@example.com")
	bob := createTestUser(t, s, "bob", "bob@example.com")

	key := newTestKey(alice.ID, "h1")
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}

	if err := s.RevokeAPIKey(ctx, key.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign key, got %v", err)
	}
	got, _ := s.GetAPIKey(ctx, key.ID)
	if got.IsRevoked {
		t.Error("key revoked by non-owner")
	}
}

func TestListActiveAPIKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "alice", "alice@example.com")
	other := createTestUser(t, s, "bob", "bob@example.com")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	active := newTestKey(u.ID, "active")
	active.ExpiresAt = &future
	noExpiry := newTestKey(u.ID, "noexpiry")
	expired := newTestKey(u.ID, "expired")
	expired.ExpiresAt = &past
	revoked := newTestKey(u.ID, "revoked")
	foreign := newTestKey(other.ID, "foreign")

	for _, k := range []*model.APIKey{active, noExpiry, expired, revoked, foreign} {
		if err := s.CreateAPIKey(ctx, k); err != nil {
			t.Fatalf("CreateAPIKey(%s): %v", k.KeyHash, err)
		}
	}
	if err := s.RevokeAPIKey(ctx, revoked.ID, u.ID); err != nil {
		t.Fatalf("RevokeAPIKey: %v", err)
	}

	keys, err := s.ListActiveAPIKeys(ctx, u.ID, time.Now())
	if err != nil {
		t.Fatalf("ListActiveAPIKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2: %+v", len(keys), keys)
	}
	// Newest first.
	if keys[0].ID != noExpiry.ID || keys[1].ID != active.ID {
		t.Errorf("unexpected order: %s, %s", keys[0].KeyHash, keys[1].KeyHash)
	}

	all, err := s.ListAPIKeys(ctx, u.ID)
	if err != nil {
		t.Fatalf("ListAPIKeys: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("got %d keys, want 4", len(all))
	}
	everyone, _ := s.ListAPIKeys(ctx, "")
	if len(everyone) != 5 {
		t.Errorf("got %d keys across users, want 5", len(everyone))
	}
}

func TestAPIKeyHashUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "alice", "alice@example.com")

	if err := s.CreateAPIKey(ctx, newTestKey(u.ID, "dup")); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	err := s.CreateAPIKey(ctx, newTestKey(u.ID, "dup"))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Field != "key_hash" {
		t.Errorf("got field %q, want key_hash", conflict.Field)
	}
}

func TestDeleteUserCascadesKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, s, "alice", "alice@example.com")

	key := newTestKey(u.ID, "h1")
	if err := s.CreateAPIKey(ctx, key); err != nil {
		t.Fatalf("CreateAPIKey: %v", err)
	}
	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetAPIKey(ctx, key.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected key to be deleted with its owner, got %v", err)
	}
}

func TestCreateAPIKeyUnknownUser(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateAPIKey(context.Background(), newTestKey("ghost", "h1")); err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	if _, err := Open(context.Background(), Dialect("oracle"), "x"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
	if _, err := Open(context.Background(), Postgres, ""); err == nil {
		t.Fatal("expected error for empty postgres dsn")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrationsRerunnable(t *testing.T) {
	for _, d := range []Dialect{SQLite, Postgres, MySQL} {
		for _, m := range (&Store{dialect: d}).migrations() {
			if !strings.HasPrefix(m, "CREATE ") || !strings.Contains(m, " IF NOT EXISTS ") {
				t.Errorf("%s migration is not rerunnable: %.60s", d, m)
			}
		}
	}
}
