package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/metrics"
)

// hydrationFailure is the row-level error marker used when a blob fetch
// fails at read time.
const hydrationFailure = "Failed to retrieve content"

// ReaderConfig controls pagination bounds and cache lifetime.
type ReaderConfig struct {
	DefaultLimit int
	MaxLimit     int
	CacheTTL     time.Duration
}

// Reader serves cursor-paginated results and status reports. Pages of a
// completed scan are cached (metadata only); content bytes are hydrated from
// blob storage fresh on every read.
type Reader struct {
	requests RequestStore
	results  ResultStore
	blobs    BlobStore
	cache    Cache
	cfg      ReaderConfig
	logger   *zap.Logger
}

// NewReader constructs a Reader.
func NewReader(
	requests RequestStore,
	results ResultStore,
	blobs BlobStore,
	cache Cache,
	cfg ReaderConfig,
	logger *zap.Logger,
) *Reader {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		requests: requests,
		results:  results,
		blobs:    blobs,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

// Status reports progress for a request. Unknown ids fail with ErrNotFound
// before the ownership check; a zero-total scan reports percentage 0.
func (r *Reader) Status(ctx context.Context, requestID string, caller Identity) (StatusReport, error) {
	req, err := r.authorize(ctx, requestID, caller)
	if err != nil {
		return StatusReport{}, err
	}

	percentage := 0.0
	if req.Total > 0 {
		percentage = math.Round(float64(req.Processed)/float64(req.Total)*100*100) / 100
	}
	return StatusReport{
		Status:     req.Status,
		Total:      req.Total,
		Processed:  req.Processed,
		Percentage: percentage,
	}, nil
}

// Results returns one page of results. The cursor is a lower bound on
// original_index, not a row offset, so a page fetch is an indexed range scan
// and stays correct while workers are still flipping rows from pending.
func (r *Reader) Results(ctx context.Context, requestID string, caller Identity, cursor, limit int) (ResultPage, error) {
	req, err := r.authorize(ctx, requestID, caller)
	if err != nil {
		return ResultPage{}, err
	}

	if cursor < 0 {
		cursor = 0
	}
	if limit <= 0 {
		limit = r.cfg.DefaultLimit
	}
	if limit > r.cfg.MaxLimit {
		limit = r.cfg.MaxLimit
	}

	cacheable := req.Status == RequestStatusCompleted
	cacheKey := resultsCacheKey(requestID, cursor, limit)

	if cacheable {
		if page, ok := r.readCache(ctx, cacheKey); ok {
			r.hydrate(ctx, requestID, page.Data)
			return page, nil
		}
	}

	rows, err := r.results.FindRange(ctx, requestID, cursor, limit)
	if err != nil {
		return ResultPage{}, fmt.Errorf("load result page: %w", err)
	}

	views := make([]ResultView, len(rows))
	for i, row := range rows {
		views[i] = ResultView{
			URL:        row.URL,
			Status:     row.Status,
			StatusCode: row.StatusCode,
			Title:      row.Title,
			ContentRef: row.ContentRef,
			Error:      row.ErrorMessage,
			FetchedAt:  row.FetchedAt,
		}
	}

	// nextCursor is derived from the returned page, not from the scan's
	// total: a full page may be followed by a short final page.
	var nextCursor *int
	if len(rows) == limit && limit > 0 {
		next := rows[len(rows)-1].OriginalIndex + 1
		nextCursor = &next
	}

	page := ResultPage{
		Status: req.Status,
		Data:   views,
		Meta:   PageMeta{NextCursor: nextCursor},
	}

	if cacheable {
		r.writeCache(ctx, cacheKey, page)
	}

	r.hydrate(ctx, requestID, page.Data)
	return page, nil
}

// authorize loads the request and enforces ownership. Not-found wins over
// authorization so callers cannot probe for foreign scan ids existing.
func (r *Reader) authorize(ctx context.Context, requestID string, caller Identity) (Request, error) {
	req, err := r.requests.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	if req.OwnerID != "" && req.OwnerID != caller.OwnerID && !caller.Admin {
		return Request{}, ErrForbidden
	}
	return req, nil
}

func (r *Reader) readCache(ctx context.Context, key string) (ResultPage, bool) {
	if r.cache == nil {
		return ResultPage{}, false
	}
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			r.logger.Warn("cache read failed, falling through to store",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		metrics.ObserveCache("miss")
		return ResultPage{}, false
	}
	var page ResultPage
	if err := json.Unmarshal(raw, &page); err != nil {
		r.logger.Warn("cached page is corrupt, falling through to store",
			zap.String("key", key),
			zap.Error(err),
		)
		metrics.ObserveCache("miss")
		return ResultPage{}, false
	}
	metrics.ObserveCache("hit")
	return page, true
}

// writeCache stores the metadata-only page. Content is never cached; the
// views at this point carry only references.
func (r *Reader) writeCache(ctx context.Context, key string, page ResultPage) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		r.logger.Warn("marshal page for cache failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.cfg.CacheTTL); err != nil {
		r.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// hydrate attaches blob content to every successful row, in place. A failed
// blob fetch marks only its own row; the page still succeeds.
func (r *Reader) hydrate(ctx context.Context, requestID string, views []ResultView) {
	var wg sync.WaitGroup
	for i := range views {
		if views[i].ContentRef == nil {
			continue
		}
		wg.Add(1)
		go func(v *ResultView) {
			defer wg.Done()
			data, err := r.blobs.Get(ctx, *v.ContentRef)
			if err != nil {
				r.logger.Error("content hydration failed",
					zap.String("request_id", requestID),
					zap.String("content_ref", *v.ContentRef),
					zap.Error(err),
				)
				msg := hydrationFailure
				v.Error = &msg
				return
			}
			content := string(data)
			v.Content = &content
			v.ContentRef = nil
		}(&views[i])
	}
	wg.Wait()
}

func resultsCacheKey(requestID string, cursor, limit int) string {
	return fmt.Sprintf("results:%s:%d:%d", requestID, cursor, limit)
}
