// Package scan defines core types shared across the fetch pipeline.
package scan

import "time"

// RequestStatus represents the lifecycle state of a scan request.
type RequestStatus string

// Request status values persisted in the request store. A request is created
// in progress and flips to completed exactly once; there is no regression.
const (
	RequestStatusInProgress RequestStatus = "in_progress"
	RequestStatusCompleted  RequestStatus = "completed"
)

// ResultStatus represents the per-URL outcome state of a scan result row.
type ResultStatus string

// Result status values. Rows are created pending and transition to success
// or error exactly once.
const (
	ResultStatusPending ResultStatus = "pending"
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)

// Request is the parent record for one submitted batch of URLs.
type Request struct {
	ID        string        `json:"id"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Status    RequestStatus `json:"status"`
	OwnerID   string        `json:"owner_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Result is one per-URL row owned by a Request. OriginalIndex is the 0-based
// position in the submitted URL list and is dense within a request.
type Result struct {
	ID            string       `json:"id"`
	RequestID     string       `json:"request_id"`
	OriginalIndex int          `json:"original_index"`
	URL           string       `json:"url"`
	Status        ResultStatus `json:"status"`
	StatusCode    *int         `json:"status_code,omitempty"`
	Title         *string      `json:"title,omitempty"`
	ContentRef    *string      `json:"content_ref,omitempty"`
	ErrorMessage  *string      `json:"error_message,omitempty"`
	FetchedAt     *time.Time   `json:"fetched_at,omitempty"`
}

// ResultUpdate carries a terminal outcome back to a placeholder row. It is
// keyed by the store-assigned result id the worker received in the queue
// message; the worker never re-queries by content.
type ResultUpdate struct {
	ID           string
	Status       ResultStatus
	StatusCode   *int
	Title        *string
	ContentRef   *string
	ErrorMessage *string
	FetchedAt    time.Time
}

// ChunkItem is one work item inside a queue message.
type ChunkItem struct {
	ScanID string `json:"scanId"`
	URLID  string `json:"urlId"`
	URL    string `json:"url"`
}

// ChunkMessage is the queue payload published once per chunk.
type ChunkMessage struct {
	RequestID string      `json:"requestId"`
	Inputs    []ChunkItem `json:"inputs"`
}

// FetchOutcome is the terminal result of a single-URL fetch-and-store pass.
// A failed fetch is still an outcome, not an error; transport failures are
// folded into Status/ErrorMessage so a bad URL never fails its chunk.
type FetchOutcome struct {
	Status       ResultStatus
	StatusCode   *int
	Title        *string
	ContentRef   *string
	ErrorMessage *string
	FetchedAt    time.Time
}

// Identity is the authenticated caller resolved by the API layer.
type Identity struct {
	OwnerID string
	Admin   bool
}

// ResultView is one row as returned by the Result Reader. Content is hydrated
// from blob storage at read time and is never cached. The row's original
// index stays internal; cursors are computed from the store rows.
type ResultView struct {
	URL        string       `json:"url"`
	Status     ResultStatus `json:"status"`
	StatusCode *int         `json:"statusCode,omitempty"`
	Title      *string      `json:"title,omitempty"`
	ContentRef *string      `json:"contentRef,omitempty"`
	Content    *string      `json:"content,omitempty"`
	Error      *string      `json:"error,omitempty"`
	FetchedAt  *time.Time   `json:"fetchedAt,omitempty"`
}

// ResultPage is the paginated response of the Result Reader. NextCursor is
// the original index to resume from, nil when the page was short.
type ResultPage struct {
	Status RequestStatus `json:"status"`
	Data   []ResultView  `json:"data"`
	Meta   PageMeta      `json:"meta"`
}

// PageMeta carries pagination metadata.
type PageMeta struct {
	NextCursor *int `json:"nextCursor"`
}

// StatusReport summarizes request progress for the status endpoint.
type StatusReport struct {
	Status     RequestStatus `json:"status"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Percentage float64       `json:"percentage"`
}
