package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sofragment/fragment/internal/apperr"
	"github.com/sofragment/fragment/internal/model"
	"github.com/sofragment/fragment/internal/secrets"
	"github.com/sofragment/fragment/internal/store"
)

// KeyTTL is the lifetime of a newly issued API key.
const KeyTTL = 365 * 24 * time.Hour

var (
	ErrKeyFormat     = apperr.Validation("Invalid API key format")
	ErrKeyInvalid    = apperr.Authentication("Invalid API key")
	ErrKeyRevoked    = apperr.Authentication("API key has been revoked")
	ErrKeyExpired    = apperr.Authentication("API key has expired")
	errKeyNotFound   = apperr.NotFound("API key")
	errKeyNameLength = apperr.Validation("Name must be between 1 and 100 characters")
)

// KeyService issues, validates and revokes API keys. The plaintext key is
// never persisted: lookups go through the keyed hash and the sealed copy is
// only opened by RevealAPIKey.
type KeyService struct {
	store  *store.Store
	cipher *secrets.KeyCipher
	now    func() time.Time
}

func NewKeyService(st *store.Store, cipher *secrets.KeyCipher) *KeyService {
	return &KeyService{store: st, cipher: cipher, now: time.Now}
}

// GenerateAPIKey issues a key for ownerID. The returned record carries the
// plaintext in Key; it is not retrievable through the API afterwards.
func (s *KeyService) GenerateAPIKey(ctx context.Context, ownerID, name string, isAdmin bool) (*model.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 100 {
		return nil, errKeyNameLength
	}

	if _, err := s.store.GetUserByID(ctx, ownerID); err != nil {
		return nil, liftStoreError(err, "")
	}

	raw, err := secrets.GenerateAPIKey(isAdmin)
	if err != nil {
		return nil, apperr.Internal("Failed to generate API key", err)
	}
	sealed, err := s.cipher.Seal(raw)
	if err != nil {
		return nil, apperr.Internal("Failed to generate API key", err)
	}

	expires := s.now().Add(KeyTTL)
	key := &model.APIKey{
		UserID:        ownerID,
		KeyHash:       s.cipher.Hash(raw),
		KeyCiphertext: sealed,
		KeyPrefix:     secrets.DisplayPrefix(raw),
		Name:          name,
		IsAdmin:       isAdmin,
		ExpiresAt:     &expires,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, apperr.Database("Failed to create API key", err)
	}

	key.Key = raw
	return key, nil
}

// ValidateAPIKey authenticates a presented key and records its use.
func (s *KeyService) ValidateAPIKey(ctx context.Context, raw string) (*model.APIKey, error) {
	if !secrets.ValidKeyFormat(raw) {
		return nil, ErrKeyFormat
	}

	key, err := s.store.GetAPIKeyByHash(ctx, s.cipher.Hash(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrKeyInvalid
		}
		return nil, apperr.Database("", err)
	}

	now := s.now()
	if key.IsRevoked {
		return nil, ErrKeyRevoked
	}
	if key.Expired(now) {
		return nil, ErrKeyExpired
	}

	if err := s.store.TouchAPIKey(ctx, key.ID, now); err != nil {
		return nil, apperr.Database("", err)
	}
	used := now.UTC().Truncate(time.Microsecond)
	key.LastUsed = &used
	key.Key = raw
	return key, nil
}

// RevokeAPIKey revokes keyID when it belongs to ownerID.
func (s *KeyService) RevokeAPIKey(ctx context.Context, keyID, ownerID string) error {
	if err := s.store.RevokeAPIKey(ctx, keyID, ownerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errKeyNotFound
		}
		return apperr.Database("Failed to revoke API key", err)
	}
	return nil
}

// ListAPIKeys returns ownerID's usable keys, newest first. Keys are shown by
// prefix only.
func (s *KeyService) ListAPIKeys(ctx context.Context, ownerID string) ([]model.APIKey, error) {
	keys, err := s.store.ListActiveAPIKeys(ctx, ownerID, s.now())
	if err != nil {
		return nil, apperr.Database("", err)
	}
	if keys == nil {
		keys = []model.APIKey{}
	}
	return keys, nil
}

// ListAllAPIKeys returns every key of ownerID (or of all users when ownerID
// is empty), including revoked and expired ones.
func (s *KeyService) ListAllAPIKeys(ctx context.Context, ownerID string) ([]model.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return nil, apperr.Database("", err)
	}
	return keys, nil
}

// RevealAPIKey decrypts the stored copy of keyID. It is reachable from the
// operator CLI only.
func (s *KeyService) RevealAPIKey(ctx context.Context, keyID string) (string, error) {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errKeyNotFound
		}
		return "", apperr.Database("", err)
	}
	raw, err := s.cipher.Open(key.KeyCiphertext)
	if err != nil {
		return "", apperr.Internal("Failed to decrypt API key", err)
	}
	return raw, nil
}
