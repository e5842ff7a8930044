package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ron9295/guardz-fetch-service/internal/auth"
)

// KeyStore implements auth.KeyStore on top of Postgres.
type KeyStore struct {
	pool pool
}

// NewKeyStore constructs a store from an existing pool.
func NewKeyStore(pool pool) (*KeyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &KeyStore{pool: pool}, nil
}

// LookupKey resolves an active API key hash to its owner id.
func (s *KeyStore) LookupKey(ctx context.Context, hash string) (string, error) {
	query := `
SELECT user_id
FROM api_keys
WHERE key_hash = $1 AND is_active`
	var ownerID string
	if err := s.pool.QueryRow(ctx, query, hash).Scan(&ownerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", auth.ErrInvalidKey
		}
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return ownerID, nil
}
