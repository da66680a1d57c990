package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sofragment/fragment/internal/model"
)

const apiKeyColumns = `id, user_id, key_hash, key_ciphertext, key_prefix, name,
	is_admin, is_revoked, expires_at, last_used, created_at`

// CreateAPIKey inserts a new API key record. KeyHash and KeyCiphertext must
// already be set. ID (when empty) and CreatedAt are populated.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == "" {
		key.ID = uuid.Must(uuid.NewV7()).String()
	}
	key.CreatedAt = now()
	if key.ExpiresAt != nil {
		exp := key.ExpiresAt.UTC().Truncate(time.Microsecond)
		key.ExpiresAt = &exp
	}

	const q = `INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES (:id, :user_id, :key_hash, :key_ciphertext, :key_prefix, :name,
		:is_admin, :is_revoked, :expires_at, :last_used, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		return translate("insert api key", err)
	}
	return nil
}

func (s *Store) getAPIKey(ctx context.Context, op, where string, args ...interface{}) (*model.APIKey, error) {
	var key model.APIKey
	q := s.db.Rebind(`SELECT ` + apiKeyColumns + ` FROM api_keys WHERE ` + where)
	if err := s.db.GetContext(ctx, &key, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &key, nil
}

// GetAPIKeyByHash looks up an API key by its keyed hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	return s.getAPIKey(ctx, "get api key by hash", "key_hash = ?", hash)
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	return s.getAPIKey(ctx, "get api key", "id = ?", id)
}

// ListAPIKeys returns every key owned by userID, newest first, including
// revoked and expired ones. An empty userID lists all keys.
func (s *Store) ListAPIKeys(ctx context.Context, userID string) ([]model.APIKey, error) {
	var keys []model.APIKey
	var err error
	if userID == "" {
		err = s.db.SelectContext(ctx, &keys, `SELECT `+apiKeyColumns+` FROM api_keys ORDER BY created_at DESC, id DESC`)
	} else {
		q := s.db.Rebind(`SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = ? ORDER BY created_at DESC, id DESC`)
		err = s.db.SelectContext(ctx, &keys, q, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ListActiveAPIKeys returns the keys of userID that are neither revoked nor
// expired at t, newest first. Expiry is evaluated in Go so the comparison
// does not depend on how each backend stores timestamps.
func (s *Store) ListActiveAPIKeys(ctx context.Context, userID string, t time.Time) ([]model.APIKey, error) {
	var keys []model.APIKey
	q := s.db.Rebind(`SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE user_id = ? AND is_revoked = ? ORDER BY created_at DESC, id DESC`)
	if err := s.db.SelectContext(ctx, &keys, q, userID, false); err != nil {
		return nil, fmt.Errorf("list active api keys: %w", err)
	}

	active := keys[:0]
	for _, k := range keys {
		if k.Usable(t) {
			active = append(active, k)
		}
	}
	return active, nil
}

// RevokeAPIKey marks the key as revoked. It returns ErrNotFound unless the
// key exists and belongs to userID. Revoking twice is not an error.
func (s *Store) RevokeAPIKey(ctx context.Context, id, userID string) error {
	if _, err := s.getAPIKey(ctx, "get api key", "id = ? AND user_id = ?", id, userID); err != nil {
		return err
	}
	q := s.db.Rebind("UPDATE api_keys SET is_revoked = ? WHERE id = ? AND user_id = ?")
	if _, err := s.db.ExecContext(ctx, q, true, id, userID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

// TouchAPIKey sets the last_used timestamp for an API key. Some drivers
// report zero affected rows when last_used already holds at, so a zero
// count is confirmed with a lookup before returning ErrNotFound.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, q, at.UTC().Truncate(time.Microsecond), id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var one int
	err = s.db.GetContext(ctx, &one, s.db.Rebind("SELECT 1 FROM api_keys WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check api key exists: %w", err)
	}
	return nil
}
