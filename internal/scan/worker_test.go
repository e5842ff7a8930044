package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedChunk creates a request with pending rows and returns the queue message
// an orchestrator would have published for them.
func seedChunk(t *testing.T, requests *fakeRequestStore, results *fakeResultStore, urls []string) ChunkMessage {
	t.Helper()

	req := Request{ID: "req-1", Total: len(urls), Status: RequestStatusInProgress}
	require.NoError(t, requests.Create(context.Background(), req))

	placeholders := make([]Result, len(urls))
	for i, url := range urls {
		placeholders[i] = Result{RequestID: "req-1", OriginalIndex: i, URL: url, Status: ResultStatusPending}
	}
	ids, err := results.InsertBatch(context.Background(), placeholders)
	require.NoError(t, err)

	items := make([]ChunkItem, len(urls))
	for i, url := range urls {
		items[i] = ChunkItem{ScanID: "req-1", URLID: ids[i], URL: url}
	}
	return ChunkMessage{RequestID: "req-1", Inputs: items}
}

func successOutcome(code int, title, ref string) FetchOutcome {
	return FetchOutcome{
		Status:     ResultStatusSuccess,
		StatusCode: &code,
		Title:      &title,
		ContentRef: &ref,
		FetchedAt:  time.Unix(1700000000, 0).UTC(),
	}
}

func TestWorker_ProcessChunk_WritesOutcomesAndCompletes(t *testing.T) {
	t.Parallel()

	requests := newFakeRequestStore()
	results := newFakeResultStore()
	msg := seedChunk(t, requests, results, []string{"https://a.example.com", "https://b.example.com"})

	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.example.com"] = successOutcome(200, "Site A", "req-1/a.html")
	errMsg := "connection refused"
	fetcher.outcomes["https://b.example.com"] = FetchOutcome{
		Status:       ResultStatusError,
		ErrorMessage: &errMsg,
		FetchedAt:    time.Unix(1700000000, 0).UTC(),
	}

	w := NewWorker(fetcher, results, NewProgress(requests, results, zap.NewNop()), zap.NewNop())
	require.NoError(t, w.ProcessChunk(context.Background(), msg))

	rows := results.byRequest("req-1")
	require.Len(t, rows, 2)
	require.Equal(t, ResultStatusSuccess, rows[0].Status)
	require.Equal(t, "Site A", *rows[0].Title)
	require.Equal(t, "req-1/a.html", *rows[0].ContentRef)
	require.Equal(t, ResultStatusError, rows[1].Status)
	require.Equal(t, "connection refused", *rows[1].ErrorMessage)

	req := requests.get("req-1")
	require.Equal(t, 2, req.Processed)
	require.Equal(t, RequestStatusCompleted, req.Status)
}

func TestWorker_ProcessChunk_RedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	requests := newFakeRequestStore()
	results := newFakeResultStore()
	msg := seedChunk(t, requests, results, []string{"https://a.example.com"})

	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.example.com"] = successOutcome(200, "Site A", "req-1/a.html")

	w := NewWorker(fetcher, results, NewProgress(requests, results, zap.NewNop()), zap.NewNop())
	require.NoError(t, w.ProcessChunk(context.Background(), msg))
	require.NoError(t, w.ProcessChunk(context.Background(), msg))

	rows := results.byRequest("req-1")
	require.Len(t, rows, 1)
	require.Equal(t, ResultStatusSuccess, rows[0].Status)

	// Progress recounts from durable rows, so replaying the chunk cannot
	// push the counter past the total.
	req := requests.get("req-1")
	require.Equal(t, 1, req.Processed)
	require.Equal(t, RequestStatusCompleted, req.Status)
}

func TestWorker_ProcessChunk_PartialRequestStaysInProgress(t *testing.T) {
	t.Parallel()

	requests := newFakeRequestStore()
	results := newFakeResultStore()
	require.NoError(t, requests.Create(context.Background(), Request{
		ID: "req-1", Total: 4, Status: RequestStatusInProgress,
	}))
	placeholders := make([]Result, 4)
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com", "https://d.example.com"}
	for i, url := range urls {
		placeholders[i] = Result{RequestID: "req-1", OriginalIndex: i, URL: url, Status: ResultStatusPending}
	}
	ids, err := results.InsertBatch(context.Background(), placeholders)
	require.NoError(t, err)

	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.example.com"] = successOutcome(200, "A", "req-1/a.html")
	fetcher.outcomes["https://b.example.com"] = successOutcome(200, "B", "req-1/b.html")

	w := NewWorker(fetcher, results, NewProgress(requests, results, zap.NewNop()), zap.NewNop())
	msg := ChunkMessage{RequestID: "req-1", Inputs: []ChunkItem{
		{ScanID: "req-1", URLID: ids[0], URL: urls[0]},
		{ScanID: "req-1", URLID: ids[1], URL: urls[1]},
	}}
	require.NoError(t, w.ProcessChunk(context.Background(), msg))

	req := requests.get("req-1")
	require.Equal(t, 2, req.Processed)
	require.Equal(t, RequestStatusInProgress, req.Status)
}

func TestWorker_ProcessChunk_InvalidMessage(t *testing.T) {
	t.Parallel()

	w := NewWorker(newFakeFetcher(), newFakeResultStore(), NewProgress(newFakeRequestStore(), newFakeResultStore(), zap.NewNop()), zap.NewNop())

	require.Error(t, w.ProcessChunk(context.Background(), ChunkMessage{}))
	require.Error(t, w.ProcessChunk(context.Background(), ChunkMessage{RequestID: "req-1"}))
}

func TestWorker_ProcessChunk_UpdateFailureRejectsChunk(t *testing.T) {
	t.Parallel()

	requests := newFakeRequestStore()
	results := newFakeResultStore()
	msg := seedChunk(t, requests, results, []string{"https://a.example.com"})
	results.updateErr = errors.New("db unavailable")

	fetcher := newFakeFetcher()
	fetcher.outcomes["https://a.example.com"] = successOutcome(200, "A", "req-1/a.html")

	w := NewWorker(fetcher, results, NewProgress(requests, results, zap.NewNop()), zap.NewNop())
	require.Error(t, w.ProcessChunk(context.Background(), msg))

	req := requests.get("req-1")
	require.Equal(t, 0, req.Processed)
	require.Equal(t, RequestStatusInProgress, req.Status)
}
