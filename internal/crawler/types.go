// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// RunStatus represents the lifecycle state of a crawl run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// RunParameters captures per-run knobs requested by the client.
type RunParameters struct {
	Seeds    []string          `json:"seeds"`
	MaxDepth int               `json:"max_depth"`
	MaxPages int               `json:"max_pages"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Run represents the metadata persisted for each submitted crawl.
type Run struct {
	ID         string        `json:"id"`
	Status     RunStatus     `json:"status"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
	ErrorText  string        `json:"error_text,omitempty"`
	Parameters RunParameters `json:"parameters"`
	Counters   RunCounters   `json:"counters"`
}

// RunCounters tracks fetch stats per run.
type RunCounters struct {
	PagesFetched int `json:"pages_fetched"`
	PagesFailed  int `json:"pages_failed"`
	PagesSkipped int `json:"pages_skipped"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Document is the persisted artifact for one fetched page, written as a
// single line-delimited JSON record by the document sink.
type Document struct {
	RunID       string    `json:"run_id"`
	URL         string    `json:"url"`
	Host        string    `json:"host"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text,omitempty"`
	Links       []string  `json:"links,omitempty"`
	StatusCode  int       `json:"status_code"`
	FetchedAt   time.Time `json:"fetched_at"`
	DurationMs  int64     `json:"duration_ms"`
	ContentSize int       `json:"content_size"`
}

// Parsed holds the fields extracted from a fetched HTML body.
type Parsed struct {
	Title string
	Text  string
	Links []string
}

// FrontierItem is one pending fetch in a run's frontier queue.
type FrontierItem struct {
	RunID   string
	URL     string
	Depth   int
	Attempt int
}
