// Package sink persists fetched documents to a line-delimited JSON file.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

// maxDocumentBytes bounds a single encoded record.
const maxDocumentBytes = 4 << 20

// JSONLStore appends one JSON document record per line. Writes are serialized
// by a mutex so concurrent workers never interleave partial lines.
type JSONLStore struct {
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	file *os.File
}

// NewJSONLStore opens (or creates) the file at path in append mode.
func NewJSONLStore(path string, logger *zap.Logger) (*JSONLStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open sink file %s: %w", path, err)
	}
	return &JSONLStore{
		path:   path,
		logger: logger,
		file:   file,
	}, nil
}

// SaveDocument appends doc as a single JSON line.
func (s *JSONLStore) SaveDocument(ctx context.Context, doc crawler.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if doc.URL == "" {
		return fmt.Errorf("document url is required")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if len(payload) > maxDocumentBytes {
		return fmt.Errorf("document %s encodes to %d bytes, exceeds max %d", doc.URL, len(payload), maxDocumentBytes)
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("sink %s is closed", s.path)
	}
	if _, err := s.file.Write(payload); err != nil {
		return fmt.Errorf("write document line: %w", err)
	}
	return nil
}

// Close syncs and closes the underlying file. Further saves fail.
func (s *JSONLStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		s.logger.Warn("sink sync failed", zap.String("path", s.path), zap.Error(err))
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close sink file %s: %w", s.path, err)
	}
	s.file = nil
	return nil
}
