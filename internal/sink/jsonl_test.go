package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

func testDoc(url string) crawler.Document {
	return crawler.Document{
		RunID:      "run-1",
		URL:        url,
		Host:       "https://example.org",
		Title:      "t",
		StatusCode: 200,
		FetchedAt:  time.Unix(100, 0).UTC(),
	}
}

func TestJSONLStoreAppendsOneLinePerDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "docs", "documents.jsonl")
	store, err := NewJSONLStore(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.SaveDocument(ctx, testDoc("https://example.org/a")))
	require.NoError(t, store.SaveDocument(ctx, testDoc("https://example.org/b")))
	require.NoError(t, store.Close(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var doc crawler.Document
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &doc))
		urls = append(urls, doc.URL)
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, []string{"https://example.org/a", "https://example.org/b"}, urls)
}

func TestJSONLStoreConcurrentWritesDoNotTear(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "documents.jsonl")
	store, err := NewJSONLStore(path, nil)
	require.NoError(t, err)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				doc := testDoc(fmt.Sprintf("https://example.org/%d/%d", i, j))
				require.NoError(t, store.SaveDocument(context.Background(), doc))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, store.Close(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var doc crawler.Document
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &doc), "line %d is not valid JSON", count)
		count++
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, writers*perWriter, count)
}

func TestJSONLStoreRejectsEmptyURL(t *testing.T) {
	t.Parallel()

	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "d.jsonl"), nil)
	require.NoError(t, err)
	defer store.Close(context.Background()) //nolint:errcheck

	require.Error(t, store.SaveDocument(context.Background(), crawler.Document{RunID: "r"}))
}

func TestJSONLStoreSaveAfterCloseFails(t *testing.T) {
	t.Parallel()

	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "d.jsonl"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Close(context.Background()))

	require.Error(t, store.SaveDocument(context.Background(), testDoc("https://example.org")))
	// Close is idempotent.
	require.NoError(t, store.Close(context.Background()))
}

func TestJSONLStoreHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "d.jsonl"), nil)
	require.NoError(t, err)
	defer store.Close(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, store.SaveDocument(ctx, testDoc("https://example.org")))
}
