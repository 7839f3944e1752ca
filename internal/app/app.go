// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the crawler binary.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/api"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/clock/system"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/config"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
	collyfetcher "github.com/sulaimonao/self-hosted-search-engine-sub002/internal/fetcher/colly"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/id/uuid"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/metrics"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/parser"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/progress"
	progressinks "github.com/sulaimonao/self-hosted-search-engine-sub002/internal/progress/sinks"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/scheduler"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/sink"
	storagemem "github.com/sulaimonao/self-hosted-search-engine-sub002/internal/storage/memory"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/storage/postgres"
)

// App holds the shared, long-lived services for the crawler process. It is
// built once at startup and fails fast when any service cannot initialize.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	pacer  *pacing.Controller
	sched  *scheduler.Scheduler
	hub    *progress.Hub
	docs   crawler.DocumentStore
	runs   crawler.RunStore
	server *api.Server
}

// New wires configuration into concrete services.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	var pacer *pacing.Controller
	pacer, err := pacing.NewController(cfg.Pacing.ToPolicy(),
		pacing.WithLogger(logger.Named("pacing")),
		pacing.WithObserver(func(host string, _ pacing.Outcome, delay time.Duration) {
			metrics.SetPacingDelay(host, delay)
			metrics.SetTrackedHosts(pacer.TrackedHosts())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("init pacing: %w", err)
	}

	docs, err := newDocumentStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("init document store: %w", err)
	}

	runs := storagemem.NewRunStore()

	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		progressinks.NewLogSink(logger.Named("progress")),
	)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})

	sched, err := scheduler.New(
		scheduler.Config{
			Concurrency:     cfg.Crawler.Concurrency,
			QueueDepth:      cfg.Crawler.QueueDepth,
			GlobalRPS:       cfg.Crawler.GlobalRPS,
			MaxDepthDefault: cfg.Crawler.MaxDepthDefault,
			MaxPagesDefault: cfg.Crawler.MaxPagesDefault,
			ForbiddenLimit:  cfg.Crawler.ForbiddenLimit,
			MaxAttempts:     cfg.Crawler.MaxAttempts,
		},
		scheduler.Deps{
			Fetcher:   fetcher,
			Parser:    parser.New(),
			Documents: docs,
			Runs:      runs,
			Pacer:     pacer,
			Clock:     system.New(),
			IDs:       uuid.NewGenerator(),
			Emitter:   hub,
			Logger:    logger.Named("scheduler"),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	return &App{
		cfg:    cfg,
		logger: logger,
		pacer:  pacer,
		sched:  sched,
		hub:    hub,
		docs:   docs,
		runs:   runs,
		server: api.NewServer(sched, runs, pacer, logger.Named("api")),
	}, nil
}

func newDocumentStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (crawler.DocumentStore, error) {
	switch cfg.Provider {
	case "jsonl":
		logger.Info("using JSONL document store", zap.String("path", cfg.JSONLPath))
		return sink.NewJSONLStore(cfg.JSONLPath, logger.Named("sink"))
	case "postgres":
		logger.Info("using Postgres document store", zap.String("table", cfg.Table))
		return postgres.NewDocumentStore(ctx, postgres.DocumentStoreConfig{
			DSN:   cfg.DSN,
			Table: cfg.Table,
		})
	default:
		return nil, fmt.Errorf("unknown store provider %q", cfg.Provider)
	}
}

// Handler returns the HTTP handler for the API server.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Scheduler exposes the run scheduler, mainly for tests.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.sched
}

// Shutdown stops active runs and flushes stores and the progress hub.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := a.sched.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := a.hub.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.docs.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
