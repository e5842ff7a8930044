package scan

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Progress reconciles the parent request's processed counter from durable
// state after each chunk write.
type Progress struct {
	requests RequestStore
	results  ResultStore
	logger   *zap.Logger
}

// NewProgress constructs a Progress tracker.
func NewProgress(requests RequestStore, results ResultStore, logger *zap.Logger) *Progress {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Progress{requests: requests, results: results, logger: logger}
}

// Reconcile recounts terminal result rows and applies the monotonic guarded
// update to the request row, flipping status to completed when the count
// reaches the total.
//
// This is a read-then-two-writes protocol, not one transaction. It is safe
// because the count is recomputed from durable state (never incremented), the
// counter update is guarded so concurrent writers can only raise it, and the
// completion flip is idempotent. A transient undercount self-heals on the
// next chunk's reconciliation.
func (p *Progress) Reconcile(ctx context.Context, requestID string) error {
	count, err := p.results.CountNotPending(ctx, requestID)
	if err != nil {
		return fmt.Errorf("count processed results: %w", err)
	}

	if err := p.requests.SetProcessedIfGreater(ctx, requestID, count); err != nil {
		return fmt.Errorf("update processed counter: %w", err)
	}

	req, err := p.requests.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("reload scan request: %w", err)
	}
	if req.Processed >= req.Total && req.Status != RequestStatusCompleted {
		if err := p.requests.MarkCompleted(ctx, requestID); err != nil {
			return fmt.Errorf("mark scan completed: %w", err)
		}
		p.logger.Info("scan completed",
			zap.String("request_id", requestID),
			zap.Int("processed", req.Processed),
			zap.Int("total", req.Total),
		)
	}
	return nil
}
