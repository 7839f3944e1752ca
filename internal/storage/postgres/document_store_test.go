package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

func sampleDocument() crawler.Document {
	return crawler.Document{
		RunID:       "run-1",
		URL:         "https://example.org/page",
		Host:        "https://example.org",
		Title:       "Example",
		Text:        "body text",
		Links:       []string{"https://example.org/next"},
		StatusCode:  200,
		FetchedAt:   time.Unix(1700000000, 0).UTC(),
		DurationMs:  120,
		ContentSize: 2048,
	}
}

func TestSaveDocumentInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStoreWithPool(mock, "documents")
	require.NoError(t, err)

	doc := sampleDocument()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs(
			doc.RunID,
			doc.URL,
			doc.Host,
			doc.Title,
			doc.Text,
			[]byte(`["https://example.org/next"]`),
			doc.StatusCode,
			doc.FetchedAt,
			doc.DurationMs,
			doc.ContentSize,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveDocument(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDocumentPropagatesExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStoreWithPool(mock, "documents")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection lost"))

	err = store.SaveDocument(context.Background(), sampleDocument())
	require.Error(t, err)
	require.Contains(t, err.Error(), "insert document")
}

func TestSaveDocumentRequiresURL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewDocumentStoreWithPool(mock, "documents")
	require.NoError(t, err)

	doc := sampleDocument()
	doc.URL = ""
	require.Error(t, store.SaveDocument(context.Background(), doc))
}

func TestNewDocumentStoreWithPoolValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := NewDocumentStoreWithPool(nil, "documents")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewDocumentStoreWithPool(mock, "bad-table;drop")
	require.Error(t, err)

	store, err := NewDocumentStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Equal(t, "documents", store.table)
}
