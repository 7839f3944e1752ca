package crawler

import (
	"context"
	"time"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
)

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
}

// DocumentStore receives the fetched artifact for each page, independently of
// the pacing controller.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc Document) error
	Close(ctx context.Context) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Parser extracts title, text, and outbound links from a fetched body.
type Parser interface {
	Parse(baseURL string, body []byte) (Parsed, error)
}

// Pacer is the scheduler-facing surface of the pacing controller: a delay to
// consult before dispatch and a single mutating entry point afterward.
type Pacer interface {
	CurrentDelay(host string) time.Duration
	RecordOutcome(host string, outcome pacing.Outcome) (time.Duration, error)
}

// Frontier provides enqueue/dequeue semantics for pending fetches. TryEnqueue
// never blocks so that workers expanding links cannot deadlock against a full
// queue; Close signals consumers that no more items will arrive.
type Frontier interface {
	Enqueue(ctx context.Context, item FrontierItem) error
	TryEnqueue(item FrontierItem) bool
	Dequeue(ctx context.Context) (FrontierItem, error)
	Close()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
