package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrEmptySecret is returned when a cipher is built from an empty secret.
var ErrEmptySecret = errors.New("api key secret must not be empty")

const (
	infoSealKey   = "fragment/api-key/seal"
	infoLookupKey = "fragment/api-key/lookup"
)

// KeyCipher protects API key material at rest. Two independent keys are
// derived from one configured secret with HKDF-SHA256:
//
//   - a lookup key for HMAC-SHA256, producing the deterministic index used to
//     find a presented key without decrypting anything;
//   - a sealing key for AES-256-GCM, producing the randomized ciphertext that
//     is stored and only opened on explicit operator request.
//
// AES-GCM with random nonces is not deterministic, so ciphertexts must never
// be used for equality lookups. Use Hash for that.
type KeyCipher struct {
	lookupKey []byte
	aead      cipher.AEAD
}

// NewKeyCipher derives the lookup and sealing keys from secret.
func NewKeyCipher(secret string) (*KeyCipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	lookupKey, err := deriveKey(secret, infoLookupKey)
	if err != nil {
		return nil, err
	}
	sealKey, err := deriveKey(secret, infoSealKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(sealKey)
	if err != nil {
		return nil, fmt.Errorf("init aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &KeyCipher{lookupKey: lookupKey, aead: aead}, nil
}

func deriveKey(secret, info string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", info, err)
	}
	return key, nil
}

// Hash returns the hex-encoded HMAC-SHA256 of plaintext under the lookup key.
func (c *KeyCipher) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, c.lookupKey)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (c *KeyCipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (c *KeyCipher) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", errors.New("ciphertext too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt api key: %w", err)
	}
	return string(plain), nil
}
