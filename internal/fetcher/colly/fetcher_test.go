package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

type stubBlobStore struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	putErr error
}

func newStubBlobStore() *stubBlobStore {
	return &stubBlobStore{blobs: map[string][]byte{}}
}

func (s *stubBlobStore) Put(_ context.Context, key, _ string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *stubBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", key)
	}
	return data, nil
}

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func TestFetchAndStoreSuccess(t *testing.T) {
	t.Parallel()

	const page = `<html><head><title>Example Page</title></head><body>hello</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	blobs := newStubBlobStore()
	now := time.Unix(1700000000, 0).UTC()
	f := New(Config{Timeout: 2 * time.Second}, blobs, &stubClock{now: now}, nil)

	outcome := f.FetchAndStore(context.Background(), "req-1", srv.URL)
	require.Equal(t, scan.ResultStatusSuccess, outcome.Status)
	require.NotNil(t, outcome.StatusCode)
	require.Equal(t, http.StatusOK, *outcome.StatusCode)
	require.NotNil(t, outcome.Title)
	require.Equal(t, "Example Page", *outcome.Title)
	require.Equal(t, now, outcome.FetchedAt)
	require.Nil(t, outcome.ErrorMessage)

	require.NotNil(t, outcome.ContentRef)
	require.Equal(t, BlobKey("req-1", srv.URL), *outcome.ContentRef)
	stored, err := blobs.Get(context.Background(), *outcome.ContentRef)
	require.NoError(t, err)
	require.Equal(t, page, string(stored))
}

func TestFetchAndStoreMissingTitle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>untitled</body></html>`)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second}, newStubBlobStore(), &stubClock{now: time.Now()}, nil)

	outcome := f.FetchAndStore(context.Background(), "req-1", srv.URL)
	require.Equal(t, scan.ResultStatusSuccess, outcome.Status)
	require.NotNil(t, outcome.Title)
	require.Equal(t, "No Title", *outcome.Title)
}

func TestFetchAndStoreHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	blobs := newStubBlobStore()
	f := New(Config{Timeout: 2 * time.Second}, blobs, &stubClock{now: time.Now()}, nil)

	outcome := f.FetchAndStore(context.Background(), "req-1", srv.URL)
	require.Equal(t, scan.ResultStatusError, outcome.Status)
	require.NotNil(t, outcome.StatusCode)
	require.Equal(t, http.StatusInternalServerError, *outcome.StatusCode)
	require.NotNil(t, outcome.ErrorMessage)
	require.Nil(t, outcome.ContentRef)
	require.Empty(t, blobs.blobs)
}

func TestFetchAndStoreUnreachableHost(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second}, newStubBlobStore(), &stubClock{now: time.Now()}, nil)

	outcome := f.FetchAndStore(context.Background(), "req-1", "http://127.0.0.1:1")
	require.Equal(t, scan.ResultStatusError, outcome.Status)
	require.NotNil(t, outcome.ErrorMessage)
	require.NotEmpty(t, *outcome.ErrorMessage)
}

func TestFetchAndStoreContextCancellation(t *testing.T) {
	t.Parallel()

	// The server responds slower than the caller's deadline, so every pass
	// takes the cancellation path while the collector is still mid-flight.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
			fmt.Fprint(w, `<html><head><title>late</title></head></html>`)
		}
	}))
	defer srv.Close()

	blobs := newStubBlobStore()
	f := New(Config{Timeout: 2 * time.Second}, blobs, &stubClock{now: time.Now()}, nil)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
		outcome := f.FetchAndStore(ctx, "req-1", srv.URL)
		cancel()

		require.Equal(t, scan.ResultStatusError, outcome.Status)
		require.Nil(t, outcome.StatusCode)
		require.NotNil(t, outcome.ErrorMessage)
		require.Contains(t, *outcome.ErrorMessage, "fetch canceled")
		require.Nil(t, outcome.ContentRef)
	}
	require.Empty(t, blobs.blobs)
}

func TestFetchAndStoreBlobFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>ok</title></head></html>`)
	}))
	defer srv.Close()

	blobs := newStubBlobStore()
	blobs.putErr = errors.New("bucket gone")
	f := New(Config{Timeout: 2 * time.Second}, blobs, &stubClock{now: time.Now()}, nil)

	outcome := f.FetchAndStore(context.Background(), "req-1", srv.URL)
	require.Equal(t, scan.ResultStatusError, outcome.Status)
	require.NotNil(t, outcome.ErrorMessage)
	require.Contains(t, *outcome.ErrorMessage, "store content")
}

func TestFetchAndStoreRedirectLimit(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Every response redirects, so the chain never terminates.
		http.Redirect(w, r, srv.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 2 * time.Second, MaxRedirects: 3}, newStubBlobStore(), &stubClock{now: time.Now()}, nil)

	outcome := f.FetchAndStore(context.Background(), "req-1", srv.URL)
	require.Equal(t, scan.ResultStatusError, outcome.Status)
	require.NotNil(t, outcome.ErrorMessage)
}

func TestBlobKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	a := BlobKey("req-1", "https://example.com")
	b := BlobKey("req-1", "https://example.com")
	c := BlobKey("req-1", "https://example.org")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Regexp(t, `^req-1/[0-9a-f]{32}\.html$`, a)
}
