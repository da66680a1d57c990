package secrets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	// KeyPrefix starts every API key.
	KeyPrefix = "frgmt-"
	// AdminKeyPrefix starts every admin API key.
	AdminKeyPrefix = "frgmt-admin-"

	keyRandomBytes = 24
	displayLen     = 16
)

var keyFormat = regexp.MustCompile(`^frgmt-(admin-)?[A-Za-z0-9_-]+$`)

// GenerateAPIKey returns a new key: the prefix followed by 24 random bytes
// hex encoded (48 characters).
func GenerateAPIKey(admin bool) (string, error) {
	b := make([]byte, keyRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	prefix := KeyPrefix
	if admin {
		prefix = AdminKeyPrefix
	}
	return prefix + hex.EncodeToString(b), nil
}

// ValidKeyFormat reports whether key looks like an API key.
func ValidKeyFormat(key string) bool {
	return keyFormat.MatchString(key)
}

// IsAdminKey reports whether key carries the admin prefix. This is a cheap
// pre-check; the stored admin flag is authoritative.
func IsAdminKey(key string) bool {
	return strings.HasPrefix(key, AdminKeyPrefix)
}

// DisplayPrefix returns the leading characters of key used to identify it in
// listings.
func DisplayPrefix(key string) string {
	if len(key) <= displayLen {
		return key
	}
	return key[:displayLen]
}
