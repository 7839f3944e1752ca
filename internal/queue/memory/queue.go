// Package memory provides an in-memory frontier implementation.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

// ErrClosed is returned when dequeuing from a closed frontier.
var ErrClosed = errors.New("frontier closed")

// Frontier is a bounded in-memory queue of pending fetches with
// context-aware operations.
type Frontier struct {
	ch      chan crawler.FrontierItem
	closeMu sync.Mutex
	closed  bool
}

// NewFrontier constructs a frontier with the provided capacity.
func NewFrontier(capacity int) *Frontier {
	return &Frontier{
		ch: make(chan crawler.FrontierItem, capacity),
	}
}

// Enqueue pushes an item into the frontier or returns if the context ends.
func (f *Frontier) Enqueue(ctx context.Context, item crawler.FrontierItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case f.ch <- item:
		return nil
	}
}

// TryEnqueue pushes an item without blocking; it reports whether the item was
// accepted. The scheduler uses this for discovered links so that a saturated
// frontier sheds expansion work instead of deadlocking its own workers.
func (f *Frontier) TryEnqueue(item crawler.FrontierItem) bool {
	select {
	case f.ch <- item:
		return true
	default:
		return false
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (f *Frontier) Dequeue(ctx context.Context) (crawler.FrontierItem, error) {
	select {
	case <-ctx.Done():
		return crawler.FrontierItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-f.ch:
		if !ok {
			return crawler.FrontierItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of queued items.
func (f *Frontier) Len() int {
	return len(f.ch)
}

// Close closes the underlying channel for shutdown.
func (f *Frontier) Close() {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed {
		return
	}
	close(f.ch)
	f.closed = true
}
