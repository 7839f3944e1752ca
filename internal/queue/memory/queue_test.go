package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

func TestFrontierEnqueueDequeue(t *testing.T) {
	t.Parallel()
	f := NewFrontier(4)
	ctx := context.Background()

	item := crawler.FrontierItem{RunID: "run-1", URL: "https://example.org", Depth: 0, Attempt: 1}
	require.NoError(t, f.Enqueue(ctx, item))
	require.Equal(t, 1, f.Len())

	got, err := f.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, item, got)
}

func TestFrontierDequeueHonorsContext(t *testing.T) {
	t.Parallel()
	f := NewFrontier(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Dequeue(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrontierTryEnqueueShedsWhenFull(t *testing.T) {
	t.Parallel()
	f := NewFrontier(1)

	require.True(t, f.TryEnqueue(crawler.FrontierItem{RunID: "r", URL: "https://a.example"}))
	require.False(t, f.TryEnqueue(crawler.FrontierItem{RunID: "r", URL: "https://b.example"}))
}

func TestFrontierCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	f := NewFrontier(1)
	f.Close()
	f.Close()

	_, err := f.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
