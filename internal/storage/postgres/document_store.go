// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DocumentStoreConfig controls the Postgres connection pool used for
// document rows.
type DocumentStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// DocumentStore writes fetched documents into Postgres.
type DocumentStore struct {
	pool  execCloser
	table string
}

// NewDocumentStore creates a Postgres-backed DocumentStore using the
// provided config.
func NewDocumentStore(ctx context.Context, cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "documents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{
		pool:  pool,
		table: table,
	}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewDocumentStoreWithPool(pool execCloser, table string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "documents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

// SaveDocument inserts one document row.
func (s *DocumentStore) SaveDocument(ctx context.Context, doc crawler.Document) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("document store is not configured")
	}
	if doc.URL == "" {
		return fmt.Errorf("document url is required")
	}
	linksJSON, err := json.Marshal(doc.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	url,
	host,
	title,
	body_text,
	links,
	status_code,
	fetched_at,
	duration_ms,
	content_size
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`, s.table)

	if _, err := s.pool.Exec(ctx, query,
		doc.RunID,
		doc.URL,
		doc.Host,
		doc.Title,
		doc.Text,
		linksJSON,
		doc.StatusCode,
		doc.FetchedAt,
		doc.DurationMs,
		doc.ContentSize,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close(_ context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
