// Package collyfetcher implements the single-URL fetch-and-store operation
// using gocolly.
package collyfetcher

import (
	"context"
	"crypto/md5" //nolint:gosec // content addressing, not authentication
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// noTitle is reported when a page carries no usable <title> element.
const noTitle = "No Title"

// Config controls fetch behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int
	ContentType  string
}

// Fetcher implements scan.Fetcher: it performs one bounded HTTP GET, uploads
// the body to blob storage under {requestId}/{md5(url)}.html, and returns a
// terminal outcome. Transport failures become error outcomes, never errors,
// so one unreachable URL cannot poison its chunk.
type Fetcher struct {
	cfg           Config
	blobs         scan.BlobStore
	clock         scan.Clock
	logger        *zap.Logger
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, blobs scan.BlobStore, clock scan.Clock, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	return &Fetcher{
		cfg:           cfg,
		blobs:         blobs,
		clock:         clock,
		logger:        logger,
		baseCollector: c,
	}
}

// FetchAndStore fetches url, stores its body, and returns the outcome.
func (f *Fetcher) FetchAndStore(ctx context.Context, requestID, url string) scan.FetchOutcome {
	fetchedAt := f.clock.Now()

	statusCode, body, title, fetchErr := f.fetch(ctx, url)

	if fetchErr != nil {
		f.logger.Warn("fetch failed",
			zap.String("request_id", requestID),
			zap.String("url", url),
			zap.Error(fetchErr),
		)
		return errorOutcome(fetchErr.Error(), statusCode, fetchedAt)
	}

	key := BlobKey(requestID, url)
	if err := f.blobs.Put(ctx, key, f.cfg.ContentType, body); err != nil {
		f.logger.Error("store content failed",
			zap.String("request_id", requestID),
			zap.String("url", url),
			zap.String("key", key),
			zap.Error(err),
		)
		return errorOutcome(fmt.Sprintf("store content: %v", err), statusCode, fetchedAt)
	}

	if title == "" {
		title = noTitle
	}
	return scan.FetchOutcome{
		Status:     scan.ResultStatusSuccess,
		StatusCode: statusCode,
		Title:      &title,
		ContentRef: &key,
		FetchedAt:  fetchedAt,
	}
}

// fetchResult is owned by the collector goroutine until it is handed over
// on the done channel.
type fetchResult struct {
	statusCode *int
	body       []byte
	title      string
	err        error
}

// fetch runs one collector pass. Colly reports non-2xx responses through
// OnError, which maps directly onto the error-outcome path. On context
// cancellation the collector goroutine is abandoned; it keeps writing only
// its own result struct, which the caller never sees.
func (f *Fetcher) fetch(ctx context.Context, url string) (*int, []byte, string, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= f.cfg.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", f.cfg.MaxRedirects)
		}
		return nil
	})

	// Buffered so the abandoned goroutine can finish and be collected.
	done := make(chan fetchResult, 1)
	go func() {
		var res fetchResult
		collector.OnResponse(func(r *colly.Response) {
			code := r.StatusCode
			res.statusCode = &code
			res.body = append([]byte(nil), r.Body...)
		})
		collector.OnHTML("title", func(e *colly.HTMLElement) {
			if res.title == "" {
				res.title = e.Text
			}
		})
		collector.OnError(func(r *colly.Response, err error) {
			if r != nil && r.StatusCode != 0 {
				code := r.StatusCode
				res.statusCode = &code
			}
			res.err = err
		})
		if err := collector.Visit(url); err != nil && res.err == nil {
			res.err = err
		}
		collector.Wait()
		done <- res
	}()

	select {
	case <-ctx.Done():
		return nil, nil, "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case res := <-done:
		return res.statusCode, res.body, res.title, res.err
	}
}

// BlobKey returns the content key for a fetched URL.
func BlobKey(requestID, url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec
	return fmt.Sprintf("%s/%s.html", requestID, hex.EncodeToString(sum[:]))
}

func errorOutcome(message string, statusCode *int, fetchedAt time.Time) scan.FetchOutcome {
	return scan.FetchOutcome{
		Status:       scan.ResultStatusError,
		StatusCode:   statusCode,
		ErrorMessage: &message,
		FetchedAt:    fetchedAt,
	}
}
