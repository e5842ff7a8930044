package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// ScanStore provides in-memory request and result storage for development
// and testing. It implements both scan.RequestStore and scan.ResultStore so
// the whole pipeline can run without Postgres.
type ScanStore struct {
	mu       sync.RWMutex
	requests map[string]scan.Request
	results  map[string]scan.Result
	nextID   int
}

// NewScanStore constructs a ScanStore.
func NewScanStore() *ScanStore {
	return &ScanStore{
		requests: make(map[string]scan.Request),
		results:  make(map[string]scan.Result),
	}
}

// Create stores a new scan request.
func (s *ScanStore) Create(_ context.Context, req scan.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return errors.New("scan request already exists")
	}
	s.requests[req.ID] = req
	return nil
}

// Get returns a scan request by id.
func (s *ScanStore) Get(_ context.Context, id string) (scan.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return scan.Request{}, scan.ErrNotFound
	}
	return req, nil
}

// SetProcessedIfGreater raises the processed counter, never lowering it.
func (s *ScanStore) SetProcessedIfGreater(_ context.Context, id string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return scan.ErrNotFound
	}
	if processed > req.Processed {
		req.Processed = processed
		s.requests[id] = req
	}
	return nil
}

// MarkCompleted flips the request to completed once all rows are terminal.
func (s *ScanStore) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return scan.ErrNotFound
	}
	if req.Processed >= req.Total {
		req.Status = scan.RequestStatusCompleted
		s.requests[id] = req
	}
	return nil
}

// Delete removes a request and all of its result rows.
func (s *ScanStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	for rid, row := range s.results {
		if row.RequestID == id {
			delete(s.results, rid)
		}
	}
	return nil
}

// InsertBatch inserts placeholder rows and returns generated ids in order.
func (s *ScanStore) InsertBatch(_ context.Context, results []scan.Result) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(results))
	for i, row := range results {
		s.nextID++
		id := fmt.Sprintf("mem-%d", s.nextID)
		row.ID = id
		s.results[id] = row
		ids[i] = id
	}
	return ids, nil
}

// UpdateBatch applies terminal outcomes keyed by result id.
func (s *ScanStore) UpdateBatch(_ context.Context, updates []scan.ResultUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		row, ok := s.results[u.ID]
		if !ok {
			continue
		}
		row.Status = u.Status
		row.StatusCode = u.StatusCode
		row.Title = u.Title
		row.ContentRef = u.ContentRef
		row.ErrorMessage = u.ErrorMessage
		fetchedAt := u.FetchedAt
		row.FetchedAt = &fetchedAt
		s.results[u.ID] = row
	}
	return nil
}

// CountNotPending counts rows with a terminal status for a request.
func (s *ScanStore) CountNotPending(_ context.Context, requestID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, row := range s.results {
		if row.RequestID == requestID && row.Status != scan.ResultStatusPending {
			count++
		}
	}
	return count, nil
}

// FindRange returns up to limit rows with original index >= cursor, ascending.
func (s *ScanStore) FindRange(_ context.Context, requestID string, cursor, limit int) ([]scan.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scan.Result
	for _, row := range s.results {
		if row.RequestID == requestID && row.OriginalIndex >= cursor {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalIndex < out[j].OriginalIndex })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
