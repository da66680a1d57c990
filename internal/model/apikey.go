package model

import "time"

// APIKey is a long-lived credential owned by a single user. The raw key is
// never stored: KeyHash is a keyed HMAC used as the lookup index and
// KeyCiphertext is the AES-GCM sealed copy kept at rest.
type APIKey struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"userId" db:"user_id"`
	KeyHash       string     `json:"-" db:"key_hash"`
	KeyCiphertext string     `json:"-" db:"key_ciphertext"`
	KeyPrefix     string     `json:"keyPrefix" db:"key_prefix"`
	Name          string     `json:"name" db:"name"`
	IsAdmin       bool       `json:"isAdmin" db:"is_admin"`
	IsRevoked     bool       `json:"isRevoked" db:"is_revoked"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	LastUsed      *time.Time `json:"lastUsed,omitempty" db:"last_used"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`

	// Key holds the plaintext only when the caller already knows it: in the
	// creation response and after a successful validation.
	Key string `json:"key,omitempty" db:"-"`
}

// Expired reports whether the key's expiry lies at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// Usable reports whether the key may authenticate a request at now.
func (k *APIKey) Usable(now time.Time) bool {
	return !k.IsRevoked && !k.Expired(now)
}
