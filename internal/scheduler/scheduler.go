// Package scheduler runs crawl workers over a per-run frontier, consulting
// the pacing controller before each dispatch and recording every outcome
// after the response comes back.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/crawler"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/metrics"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/pacing"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/progress"
	"github.com/sulaimonao/self-hosted-search-engine-sub002/internal/queue/memory"
)

// ErrUnknownRun is returned when canceling a run that is not active.
var ErrUnknownRun = errors.New("unknown run")

// ErrNoSeeds is returned when a submission carries no usable seed URLs.
var ErrNoSeeds = errors.New("at least one valid seed URL is required")

// Config tunes scheduler behavior. Zero values fall back to defaults so
// tests can construct a Scheduler with only the knobs they care about.
type Config struct {
	Concurrency     int
	QueueDepth      int
	GlobalRPS       float64
	MaxDepthDefault int
	MaxPagesDefault int
	ForbiddenLimit  int
	MaxAttempts     int
}

const (
	defaultConcurrency = 4
	defaultQueueDepth  = 1024
	defaultMaxDepth    = 2
	defaultMaxPages    = 200
	defaultMaxAttempts = 3
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.MaxDepthDefault <= 0 {
		c.MaxDepthDefault = defaultMaxDepth
	}
	if c.MaxPagesDefault <= 0 {
		c.MaxPagesDefault = defaultMaxPages
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// Deps bundles the collaborators the scheduler drives.
type Deps struct {
	Fetcher   crawler.Fetcher
	Parser    crawler.Parser
	Documents crawler.DocumentStore
	Runs      crawler.RunStore
	Pacer     crawler.Pacer
	Clock     crawler.Clock
	IDs       crawler.IDGenerator
	Emitter   progress.Emitter
	Logger    *zap.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Fetcher == nil:
		return errors.New("fetcher is required")
	case d.Parser == nil:
		return errors.New("parser is required")
	case d.Documents == nil:
		return errors.New("document store is required")
	case d.Runs == nil:
		return errors.New("run store is required")
	case d.Pacer == nil:
		return errors.New("pacer is required")
	case d.Clock == nil:
		return errors.New("clock is required")
	case d.IDs == nil:
		return errors.New("id generator is required")
	}
	return nil
}

// Scheduler owns run execution: it accepts submissions, spawns a worker pool
// per run, and enforces the global request rate on top of per-host pacing.
type Scheduler struct {
	cfg     Config
	deps    Deps
	logger  *zap.Logger
	limiter *rate.Limiter
	pause   pauseController

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	runWG   sync.WaitGroup
}

// New constructs a Scheduler, applying defaults for unset Config fields.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("scheduler deps: %w", err)
	}
	cfg = cfg.withDefaults()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.GlobalRPS > 0 {
		burst := int(cfg.GlobalRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		limiter: limiter,
		pause:   &timerPauseController{},
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Submit validates the request, persists a queued run, and starts executing
// it in the background. The returned Run reflects the queued state.
func (s *Scheduler) Submit(ctx context.Context, params crawler.RunParameters) (crawler.Run, error) {
	seeds := make([]string, 0, len(params.Seeds))
	for _, raw := range params.Seeds {
		normalized, err := crawler.NormalizeURL(raw)
		if err != nil {
			return crawler.Run{}, fmt.Errorf("seed %q: %w", raw, err)
		}
		if _, err := crawler.HostKey(normalized); err != nil {
			return crawler.Run{}, fmt.Errorf("seed %q: %w", raw, err)
		}
		seeds = append(seeds, normalized)
	}
	if len(seeds) == 0 {
		return crawler.Run{}, ErrNoSeeds
	}
	params.Seeds = seeds
	if params.MaxDepth <= 0 {
		params.MaxDepth = s.cfg.MaxDepthDefault
	}
	if params.MaxPages <= 0 {
		params.MaxPages = s.cfg.MaxPagesDefault
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		return crawler.Run{}, fmt.Errorf("generate run id: %w", err)
	}

	run := crawler.Run{
		ID:         id,
		Status:     crawler.RunStatusQueued,
		Submitted:  s.deps.Clock.Now(),
		Parameters: params,
	}
	if err := s.deps.Runs.CreateRun(ctx, run); err != nil {
		return crawler.Run{}, fmt.Errorf("create run: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[run.ID] = cancel
	s.mu.Unlock()

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer s.forget(run.ID)
		s.execute(runCtx, run)
	}()

	return run, nil
}

// Cancel stops an active run. It returns ErrUnknownRun when no run with the
// given ID is currently executing.
func (s *Scheduler) Cancel(runID string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[runID]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownRun
	}
	cancel()
	return nil
}

// Shutdown cancels all active runs and waits for them to finish or for ctx
// to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) forget(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
		delete(s.cancels, runID)
	}
}

// runState carries per-run bookkeeping shared by the worker pool.
type runState struct {
	run      crawler.Run
	frontier crawler.Frontier
	tracker  visitTracker
	blocker  hostBlocker

	// pending counts items enqueued but not yet fully processed; the worker
	// that drops it to zero closes the frontier so the pool drains cleanly.
	pending   atomic.Int64
	scheduled atomic.Int64
	fetched   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

func (st *runState) finishItem() {
	if st.pending.Add(-1) == 0 {
		st.frontier.Close()
	}
}

// reservePage claims one slot of the run's page budget.
func (st *runState) reservePage() bool {
	if st.scheduled.Add(1) > int64(st.run.Parameters.MaxPages) {
		st.scheduled.Add(-1)
		return false
	}
	return true
}

func (st *runState) counters() crawler.RunCounters {
	return crawler.RunCounters{
		PagesFetched: int(st.fetched.Load()),
		PagesFailed:  int(st.failed.Load()),
		PagesSkipped: int(st.skipped.Load()),
	}
}

func (s *Scheduler) execute(ctx context.Context, run crawler.Run) {
	logger := s.logger.With(zap.String("run_id", run.ID))

	st := &runState{
		run:      run,
		frontier: memory.NewFrontier(s.cfg.QueueDepth),
		tracker:  newConcurrentVisitTracker(),
		blocker:  newThresholdHostBlocker(s.cfg.ForbiddenLimit),
	}

	if err := s.deps.Runs.UpdateRunStatus(ctx, run.ID, crawler.RunStatusRunning, "", crawler.RunCounters{}); err != nil {
		logger.Error("mark run running", zap.Error(err))
	}
	s.emit(progress.Event{RunID: run.ID, Stage: progress.StageRunStart})

	// Dedupe seeds and pre-count them so pending cannot transiently hit zero
	// while the pool is still being fed.
	items := make([]crawler.FrontierItem, 0, len(run.Parameters.Seeds))
	for _, seed := range run.Parameters.Seeds {
		if !st.tracker.MarkIfNew(seed) {
			continue
		}
		if !st.reservePage() {
			break
		}
		items = append(items, crawler.FrontierItem{RunID: run.ID, URL: seed})
	}
	st.pending.Store(int64(len(items)))

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.workerLoop(ctx, logger, st)
		}()
	}

	for _, item := range items {
		if err := st.frontier.Enqueue(ctx, item); err != nil {
			st.skipped.Add(1)
			st.finishItem()
		}
	}
	if len(items) == 0 {
		st.frontier.Close()
	}

	workers.Wait()
	s.finalize(ctx, logger, st)
}

func (s *Scheduler) workerLoop(ctx context.Context, logger *zap.Logger, st *runState) {
	for {
		item, err := st.frontier.Dequeue(ctx)
		if err != nil {
			return
		}
		s.process(ctx, logger, st, item)
		st.finishItem()
	}
}

func (s *Scheduler) process(ctx context.Context, logger *zap.Logger, st *runState, item crawler.FrontierItem) {
	host, err := crawler.HostKey(item.URL)
	if err != nil {
		st.skipped.Add(1)
		return
	}
	if st.blocker.IsBlocked(host) {
		st.skipped.Add(1)
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		st.skipped.Add(1)
		return
	}

	// Honor the host's current pacing delay before dispatch.
	delay := s.deps.Pacer.CurrentDelay(host)
	s.pause.Pause(ctx, delay)
	if ctx.Err() != nil {
		st.skipped.Add(1)
		return
	}
	metrics.ObservePacingWait(host, delay)

	metrics.WorkerStarted()
	resp, fetchErr := s.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{URL: item.URL})
	metrics.WorkerFinished()

	outcome := ClassifyResult(&resp, fetchErr)
	newDelay, recErr := s.deps.Pacer.RecordOutcome(host, outcome)
	if recErr != nil {
		logger.Error("record outcome", zap.String("host", host), zap.Error(recErr))
	}
	metrics.ObserveOutcome(outcome.String())

	if fetchErr != nil {
		if ctx.Err() != nil {
			st.skipped.Add(1)
			return
		}
		logger.Warn("fetch failed",
			zap.String("url", item.URL),
			zap.Int("attempt", item.Attempt),
			zap.Error(fetchErr))
		metrics.ObservePage(host, "error", 0)
		s.retryOrFail(st, item)
		return
	}

	metrics.ObservePage(host, strconv.Itoa(resp.StatusCode), resp.Duration)

	if outcome == pacing.OutcomeOverloaded {
		s.emit(progress.Event{
			RunID: item.RunID,
			Stage: progress.StageHostThrottled,
			Host:  host,
			URL:   item.URL,
			Delay: newDelay,
		})
		s.retryOrFail(st, item)
		return
	}

	s.emit(progress.Event{
		RunID:      item.RunID,
		Stage:      progress.StageFetchDone,
		Host:       host,
		URL:        item.URL,
		StatusCode: resp.StatusCode,
	})

	if resp.StatusCode == 403 && st.blocker.MarkForbidden(host) {
		logger.Warn("host blocked after repeated 403s", zap.String("host", host))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		st.failed.Add(1)
		return
	}

	s.ingest(ctx, logger, st, item, resp)
}

// retryOrFail re-enqueues the item with its attempt count bumped, or counts a
// failure once the attempt budget is spent.
func (s *Scheduler) retryOrFail(st *runState, item crawler.FrontierItem) {
	if item.Attempt+1 >= s.cfg.MaxAttempts {
		st.failed.Add(1)
		return
	}
	item.Attempt++
	st.pending.Add(1)
	if !st.frontier.TryEnqueue(item) {
		st.pending.Add(-1)
		st.failed.Add(1)
	}
}

func (s *Scheduler) ingest(ctx context.Context, logger *zap.Logger, st *runState, item crawler.FrontierItem, resp crawler.FetchResponse) {
	parsed, err := s.deps.Parser.Parse(item.URL, resp.Body)
	if err != nil {
		logger.Debug("parse failed", zap.String("url", item.URL), zap.Error(err))
	}

	host, _ := crawler.HostKey(item.URL)
	doc := crawler.Document{
		RunID:       item.RunID,
		URL:         item.URL,
		Host:        host,
		Title:       parsed.Title,
		Text:        parsed.Text,
		Links:       parsed.Links,
		StatusCode:  resp.StatusCode,
		FetchedAt:   s.deps.Clock.Now(),
		DurationMs:  resp.Duration.Milliseconds(),
		ContentSize: len(resp.Body),
	}
	if err := s.deps.Documents.SaveDocument(ctx, doc); err != nil {
		logger.Error("save document", zap.String("url", item.URL), zap.Error(err))
		st.failed.Add(1)
		return
	}
	st.fetched.Add(1)

	if item.Depth >= st.run.Parameters.MaxDepth {
		return
	}
	for _, raw := range parsed.Links {
		link, err := crawler.NormalizeURL(raw)
		if err != nil {
			continue
		}
		if _, err := crawler.HostKey(link); err != nil {
			continue
		}
		if !st.tracker.MarkIfNew(link) {
			continue
		}
		if !st.reservePage() {
			return
		}
		child := crawler.FrontierItem{RunID: item.RunID, URL: link, Depth: item.Depth + 1}
		st.pending.Add(1)
		if !st.frontier.TryEnqueue(child) {
			st.pending.Add(-1)
			st.scheduled.Add(-1)
			st.skipped.Add(1)
		}
	}
}

func (s *Scheduler) finalize(ctx context.Context, logger *zap.Logger, st *runState) {
	counters := st.counters()

	status := crawler.RunStatusSucceeded
	errText := ""
	switch {
	case ctx.Err() != nil:
		status = crawler.RunStatusCanceled
	case counters.PagesFetched == 0 && counters.PagesFailed > 0:
		status = crawler.RunStatusFailed
		errText = "no pages fetched"
	}

	// Final persistence must survive run cancellation.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.deps.Runs.UpdateRunStatus(storeCtx, st.run.ID, status, errText, counters); err != nil {
		logger.Error("finalize run", zap.Error(err))
	}

	stage := progress.StageRunDone
	if status == crawler.RunStatusFailed {
		stage = progress.StageRunError
	}
	s.emit(progress.Event{RunID: st.run.ID, Stage: stage, Note: errText})
	metrics.ObserveRun(string(status))

	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("pages_fetched", counters.PagesFetched),
		zap.Int("pages_failed", counters.PagesFailed),
		zap.Int("pages_skipped", counters.PagesSkipped))
}

func (s *Scheduler) emit(evt progress.Event) {
	if s.deps.Emitter == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = s.deps.Clock.Now()
	}
	s.deps.Emitter.Emit(evt)
}
