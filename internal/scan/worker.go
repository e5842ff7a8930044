package scan

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/metrics"
)

// Worker processes one chunk message at a time: it fetches every URL in the
// chunk concurrently, bulk-writes the outcomes keyed by result id, and then
// reconciles the parent request's progress.
//
// Redelivery of the same chunk is safe: the updates are last-write-wins by
// primary key and Reconcile recounts from durable state instead of
// incrementing.
type Worker struct {
	fetcher  Fetcher
	results  ResultStore
	progress *Progress
	logger   *zap.Logger
}

// NewWorker constructs a Worker.
func NewWorker(fetcher Fetcher, results ResultStore, progress *Progress, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:  fetcher,
		results:  results,
		progress: progress,
		logger:   logger,
	}
}

// ProcessChunk handles one queue message. A returned error means the message
// must be rejected without requeue so the queue routes it to the dead-letter
// destination.
func (w *Worker) ProcessChunk(ctx context.Context, msg ChunkMessage) error {
	if msg.RequestID == "" || len(msg.Inputs) == 0 {
		return fmt.Errorf("invalid chunk message: request id or inputs missing")
	}
	w.logger.Debug("processing chunk",
		zap.String("request_id", msg.RequestID),
		zap.Int("items", len(msg.Inputs)),
	)

	metrics.ObserveWorkerStart()
	defer metrics.ObserveWorkerDone()

	updates := make([]ResultUpdate, len(msg.Inputs))
	var wg sync.WaitGroup
	for i, item := range msg.Inputs {
		wg.Add(1)
		go func(i int, item ChunkItem) {
			defer wg.Done()
			outcome := w.fetcher.FetchAndStore(ctx, msg.RequestID, item.URL)
			updates[i] = ResultUpdate{
				ID:           item.URLID,
				Status:       outcome.Status,
				StatusCode:   outcome.StatusCode,
				Title:        outcome.Title,
				ContentRef:   outcome.ContentRef,
				ErrorMessage: outcome.ErrorMessage,
				FetchedAt:    outcome.FetchedAt,
			}
			metrics.ObserveFetch(string(outcome.Status))
		}(i, item)
	}
	wg.Wait()

	if err := w.results.UpdateBatch(ctx, updates); err != nil {
		return fmt.Errorf("write chunk outcomes: %w", err)
	}
	w.logger.Debug("chunk outcomes written",
		zap.String("request_id", msg.RequestID),
		zap.Int("items", len(updates)),
	)

	if err := w.progress.Reconcile(ctx, msg.RequestID); err != nil {
		return fmt.Errorf("reconcile progress: %w", err)
	}
	return nil
}
