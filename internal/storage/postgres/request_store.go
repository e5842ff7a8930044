package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// RequestStore implements scan.RequestStore on top of Postgres.
type RequestStore struct {
	pool pool
}

// NewRequestStore constructs a store from an existing pool.
func NewRequestStore(pool pool) (*RequestStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RequestStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RequestStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts the parent scan request row.
func (s *RequestStore) Create(ctx context.Context, req scan.Request) error {
	if req.ID == "" {
		return fmt.Errorf("request id is required")
	}
	query := `
INSERT INTO scan_requests (id, total, processed, status, owner_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		req.ID,
		req.Total,
		req.Processed,
		string(req.Status),
		req.OwnerID,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan request: %w", err)
	}
	return nil
}

// Get loads a scan request by id, returning scan.ErrNotFound for unknown ids.
func (s *RequestStore) Get(ctx context.Context, id string) (scan.Request, error) {
	query := `
SELECT id, total, processed, status, owner_id, created_at
FROM scan_requests
WHERE id = $1`
	var req scan.Request
	var status string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.Total,
		&req.Processed,
		&status,
		&req.OwnerID,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scan.Request{}, scan.ErrNotFound
		}
		return scan.Request{}, fmt.Errorf("select scan request: %w", err)
	}
	req.Status = scan.RequestStatus(status)
	return req, nil
}

// SetProcessedIfGreater raises the processed counter, never lowering it. The
// guard clause makes concurrent reconcilers race-safe without a lock: a late
// writer carrying a stale, smaller count matches zero rows.
func (s *RequestStore) SetProcessedIfGreater(ctx context.Context, id string, processed int) error {
	query := `
UPDATE scan_requests
SET processed = $2
WHERE id = $1 AND processed < $2`
	if _, err := s.pool.Exec(ctx, query, id, processed); err != nil {
		return fmt.Errorf("update processed counter: %w", err)
	}
	return nil
}

// MarkCompleted flips the request to completed. The predicate keeps the flip
// idempotent and refuses it while rows are still outstanding.
func (s *RequestStore) MarkCompleted(ctx context.Context, id string) error {
	query := `
UPDATE scan_requests
SET status = $2
WHERE id = $1 AND processed >= total`
	if _, err := s.pool.Exec(ctx, query, id, string(scan.RequestStatusCompleted)); err != nil {
		return fmt.Errorf("mark scan completed: %w", err)
	}
	return nil
}

// Delete removes a request row; scan_results rows cascade.
func (s *RequestStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM scan_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete scan request: %w", err)
	}
	return nil
}
