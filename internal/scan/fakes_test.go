package scan

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type fakeRequestStore struct {
	mu        sync.Mutex
	requests  map[string]Request
	deleted   []string
	createErr error
	getErr    error
	deleteErr error
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: map[string]Request{}}
}

func (s *fakeRequestStore) Create(_ context.Context, req Request) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *fakeRequestStore) Get(_ context.Context, id string) (Request, error) {
	if s.getErr != nil {
		return Request{}, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (s *fakeRequestStore) SetProcessedIfGreater(_ context.Context, id string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil
	}
	if processed > req.Processed {
		req.Processed = processed
		s.requests[id] = req
	}
	return nil
}

func (s *fakeRequestStore) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Processed < req.Total {
		return nil
	}
	req.Status = RequestStatusCompleted
	s.requests[id] = req
	return nil
}

func (s *fakeRequestStore) Delete(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeRequestStore) get(id string) Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

type fakeResultStore struct {
	mu        sync.Mutex
	rows      map[string]Result
	nextID    int
	insertErr error
	updateErr error
	countErr  error
	findErr   error
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{rows: map[string]Result{}}
}

func (s *fakeResultStore) InsertBatch(_ context.Context, results []Result) ([]string, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(results))
	for i, row := range results {
		id := fmt.Sprintf("result-%d", s.nextID)
		s.nextID++
		row.ID = id
		s.rows[id] = row
		ids[i] = id
	}
	return ids, nil
}

func (s *fakeResultStore) UpdateBatch(_ context.Context, updates []ResultUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		row, ok := s.rows[u.ID]
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
		s.rows[u.ID] = row
	}
	return nil
}

func (s *fakeResultStore) CountNotPending(_ context.Context, requestID string) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.RequestID == requestID && row.Status != ResultStatusPending {
			count++
		}
	}
	return count, nil
}

func (s *fakeResultStore) FindRange(_ context.Context, requestID string, cursor, limit int) ([]Result, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Result
	for _, row := range s.rows {
		if row.RequestID == requestID && row.OriginalIndex >= cursor {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalIndex < out[j].OriginalIndex })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeResultStore) byRequest(requestID string) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Result
	for _, row := range s.rows {
		if row.RequestID == requestID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginalIndex < out[j].OriginalIndex })
	return out
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []ChunkMessage
	err      error
	// failAt rejects the publish with this 0-based call index.
	failAt int
	calls  int
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failAt: -1}
}

func (p *fakePublisher) PublishChunk(_ context.Context, msg ChunkMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := p.calls
	p.calls++
	if p.err != nil && (p.failAt < 0 || p.failAt == call) {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	outcomes map[string]FetchOutcome
	calls    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{outcomes: map[string]FetchOutcome{}}
}

func (f *fakeFetcher) FetchAndStore(_ context.Context, _ string, url string) FetchOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if outcome, ok := f.outcomes[url]; ok {
		return outcome
	}
	msg := "no outcome configured"
	return FetchOutcome{Status: ResultStatusError, ErrorMessage: &msg}
}

type fakeBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	getErrs map[string]error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: map[string][]byte{}, getErrs: map[string]error{}}
}

func (s *fakeBlobStore) Put(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.getErrs[key]; ok {
		return nil, err
	}
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", key)
	}
	return data, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	gets    int
	sets    int
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	value, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return value, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[key] = append([]byte(nil), value...)
	c.ttls[key] = ttl
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeIDGen struct {
	id  string
	err error
}

func (g *fakeIDGen) NewID() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.id, nil
}
