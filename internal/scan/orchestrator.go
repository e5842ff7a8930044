package scan

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/metrics"
)

// DefaultChunkSize bounds the number of URLs carried by one queue message.
const DefaultChunkSize = 50

// OrchestratorConfig controls admission behavior.
type OrchestratorConfig struct {
	ChunkSize int
}

// Orchestrator admits a URL list: it creates the parent request row, inserts
// placeholder result rows, and publishes one queue message per chunk.
type Orchestrator struct {
	requests  RequestStore
	results   ResultStore
	publisher Publisher
	idGen     IDGenerator
	clock     Clock
	cfg       OrchestratorConfig
	logger    *zap.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	requests RequestStore,
	results ResultStore,
	publisher Publisher,
	idGen IDGenerator,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		requests:  requests,
		results:   results,
		publisher: publisher,
		idGen:     idGen,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Submit creates a scan for the given URL list and dispatches its chunks.
// The placeholder rows are inserted in a single atomic statement; on any
// subsequent publish failure the parent row is deleted (results cascade) so
// a failed submission leaves no half-dispatched scan behind. The caller
// retries the whole submission.
func (o *Orchestrator) Submit(ctx context.Context, urls []string, ownerID string) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("at least one URL required")
	}

	requestID, err := o.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}

	req := Request{
		ID:        requestID,
		Total:     len(urls),
		Processed: 0,
		Status:    RequestStatusInProgress,
		OwnerID:   ownerID,
		CreatedAt: o.clock.Now(),
	}
	if err := o.requests.Create(ctx, req); err != nil {
		return "", fmt.Errorf("create scan request: %w", err)
	}
	o.logger.Info("scan request created",
		zap.String("request_id", requestID),
		zap.Int("total", len(urls)),
	)

	placeholders := make([]Result, len(urls))
	for i, url := range urls {
		placeholders[i] = Result{
			RequestID:     requestID,
			OriginalIndex: i,
			URL:           url,
			Status:        ResultStatusPending,
		}
	}
	ids, err := o.results.InsertBatch(ctx, placeholders)
	if err != nil {
		o.cleanup(ctx, requestID)
		return "", fmt.Errorf("insert placeholder rows: %w", err)
	}
	if len(ids) != len(urls) {
		o.cleanup(ctx, requestID)
		return "", fmt.Errorf("insert returned %d ids for %d rows", len(ids), len(urls))
	}

	for offset := 0; offset < len(urls); offset += o.cfg.ChunkSize {
		end := offset + o.cfg.ChunkSize
		if end > len(urls) {
			end = len(urls)
		}
		items := make([]ChunkItem, 0, end-offset)
		for i := offset; i < end; i++ {
			items = append(items, ChunkItem{
				ScanID: requestID,
				URLID:  ids[i],
				URL:    urls[i],
			})
		}
		msg := ChunkMessage{RequestID: requestID, Inputs: items}
		if err := o.publisher.PublishChunk(ctx, msg); err != nil {
			o.cleanup(ctx, requestID)
			return "", fmt.Errorf("publish chunk at offset %d: %w", offset, err)
		}
	}

	metrics.ObserveScanSubmitted(len(urls))
	o.logger.Info("scan request dispatched",
		zap.String("request_id", requestID),
		zap.Int("urls", len(urls)),
		zap.Int("chunks", (len(urls)+o.cfg.ChunkSize-1)/o.cfg.ChunkSize),
	)
	return requestID, nil
}

// cleanup best-effort deletes a half-admitted request. The delete cascades
// to the placeholder rows.
func (o *Orchestrator) cleanup(ctx context.Context, requestID string) {
	if err := o.requests.Delete(ctx, requestID); err != nil {
		o.logger.Error("failed to clean up aborted submission",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}
