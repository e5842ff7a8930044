package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// ResultStore implements scan.ResultStore on top of Postgres.
type ResultStore struct {
	pool pool
}

// NewResultStore constructs a store from an existing pool.
func NewResultStore(pool pool) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ResultStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertBatch inserts placeholder rows in one statement and returns the
// generated ids in insertion order. One statement keeps the placeholder set
// all-or-nothing without an explicit transaction.
func (s *ResultStore) InsertBatch(ctx context.Context, results []scan.Result) ([]string, error) {
	if len(results) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO scan_results (request_id, original_index, url, status) VALUES `)
	args := make([]any, 0, len(results)*4)
	for i, r := range results {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, r.RequestID, r.OriginalIndex, r.URL, string(r.Status))
	}
	sb.WriteString(" RETURNING id")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("insert result rows: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, len(results))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan generated id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read generated ids: %w", err)
	}
	if len(ids) != len(results) {
		return nil, fmt.Errorf("expected %d generated ids, got %d", len(results), len(ids))
	}
	return ids, nil
}

// UpdateBatch writes terminal outcomes keyed by id as one pipelined batch.
// The updates are last-write-wins, so replaying a chunk is harmless.
func (s *ResultStore) UpdateBatch(ctx context.Context, updates []scan.ResultUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	query := `
UPDATE scan_results
SET status = $2,
	status_code = $3,
	title = $4,
	content_ref = $5,
	error_message = $6,
	fetched_at = $7
WHERE id = $1`

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(query,
			u.ID,
			string(u.Status),
			u.StatusCode,
			u.Title,
			u.ContentRef,
			u.ErrorMessage,
			u.FetchedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range updates {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("update result row: %w", err)
		}
	}
	return nil
}

// CountNotPending returns the number of rows with a terminal status. This is
// the authoritative processed count: recomputing it is idempotent no matter
// how many times a chunk is redelivered.
func (s *ResultStore) CountNotPending(ctx context.Context, requestID string) (int, error) {
	query := `
SELECT COUNT(*)
FROM scan_results
WHERE request_id = $1 AND status <> $2`
	var count int
	err := s.pool.QueryRow(ctx, query, requestID, string(scan.ResultStatusPending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count processed results: %w", err)
	}
	return count, nil
}

// FindRange returns up to limit rows with original_index >= cursor, ordered
// ascending. The (request_id, original_index) index makes this O(page size).
func (s *ResultStore) FindRange(ctx context.Context, requestID string, cursor, limit int) ([]scan.Result, error) {
	query := `
SELECT id, request_id, original_index, url, status, status_code, title, content_ref, error_message, fetched_at
FROM scan_results
WHERE request_id = $1 AND original_index >= $2
ORDER BY original_index ASC
LIMIT $3`
	rows, err := s.pool.Query(ctx, query, requestID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("select result range: %w", err)
	}
	defer rows.Close()

	var out []scan.Result
	for rows.Next() {
		var r scan.Result
		var status string
		if err := rows.Scan(
			&r.ID,
			&r.RequestID,
			&r.OriginalIndex,
			&r.URL,
			&status,
			&r.StatusCode,
			&r.Title,
			&r.ContentRef,
			&r.ErrorMessage,
			&r.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		r.Status = scan.ResultStatus(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read result rows: %w", err)
	}
	return out, nil
}
