package scan

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors surfaced by the read path. Infrastructure errors from the
// stores propagate wrapped; these two are the only ones callers branch on.
var (
	ErrNotFound  = errors.New("scan request not found")
	ErrForbidden = errors.New("caller does not own this scan request")
)

// ErrCacheMiss is returned by Cache.Get when the key is absent. Any other
// error means the cache itself failed and the reader falls through to the
// durable store.
var ErrCacheMiss = errors.New("cache miss")

// RequestStore persists parent scan request rows.
type RequestStore interface {
	Create(ctx context.Context, req Request) error
	Get(ctx context.Context, id string) (Request, error)
	// SetProcessedIfGreater applies the monotonic guarded counter update:
	// the stored value only ever increases under concurrent writers.
	SetProcessedIfGreater(ctx context.Context, id string, processed int) error
	MarkCompleted(ctx context.Context, id string) error
	// Delete removes a request and, via cascade, its result rows. Used only
	// to compensate a failed admission.
	Delete(ctx context.Context, id string) error
}

// ResultStore persists per-URL result rows.
type ResultStore interface {
	// InsertBatch inserts placeholder rows in one atomic statement and
	// returns store-assigned ids in insertion order.
	InsertBatch(ctx context.Context, results []Result) ([]string, error)
	// UpdateBatch writes terminal outcomes keyed by result id. Last write
	// wins; replaying the same updates is harmless.
	UpdateBatch(ctx context.Context, updates []ResultUpdate) error
	// CountNotPending counts rows with a terminal status for a request.
	CountNotPending(ctx context.Context, requestID string) (int, error)
	// FindRange returns rows with original_index >= cursor, ascending,
	// at most limit rows.
	FindRange(ctx context.Context, requestID string, cursor, limit int) ([]Result, error)
}

// BlobStore stores and retrieves raw page content.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Publisher sends one chunk message to the reliable queue.
type Publisher interface {
	PublishChunk(ctx context.Context, msg ChunkMessage) error
}

// Fetcher performs the single-URL fetch-and-store operation. It always
// returns a terminal outcome; transport failures are encoded in the outcome.
type Fetcher interface {
	FetchAndStore(ctx context.Context, requestID, url string) FetchOutcome
}

// Cache is a TTL key/value store used only for completed result pages.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
