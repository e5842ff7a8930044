// Package auth resolves API keys to caller identities.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrInvalidKey is returned when a presented API key matches no active key.
var ErrInvalidKey = errors.New("invalid API key")

// KeyStore looks up the owner of an API key by its SHA-256 hash. Only key
// validation lives here; issuance and rotation are a separate surface.
type KeyStore interface {
	LookupKey(ctx context.Context, hash string) (ownerID string, err error)
}

// HashKey returns the hex SHA-256 digest of a raw API key. Keys are stored
// hashed, never in the clear.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
