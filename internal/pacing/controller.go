package pacing

import (
	"time"

	"go.uber.org/zap"
)

// Observer is notified when a host's delay changes by more than the reporting
// epsilon. Implementations must not block; the controller calls them while
// holding no locks.
type Observer func(host string, outcome Outcome, delay time.Duration)

// Controller is the only mutating surface over per-host pacing state. It is
// safe for concurrent use by many workers; updates to a single host are
// serialized by that host's slot lock, and different hosts never contend.
type Controller struct {
	cfg      Config
	reg      *registry
	logger   *zap.Logger
	observer Observer
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger attaches a structured logger for delay-change reporting.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a callback for significant delay changes, typically
// used to update metrics.
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// NewController validates cfg and builds a Controller. A configuration error
// is fatal to the caller: the crawl process must not start with silent
// pacing defaults.
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reg, err := newRegistry(cfg.BaseDelay, cfg.MaxTrackedHosts)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:    cfg,
		reg:    reg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RecordOutcome applies the pacing policy to host's slot for the observed
// outcome and returns the delay to honor before the next request to that
// host. The slot is created at the base delay on first sight. An unknown
// outcome kind is a programming error and is returned as such; the slot is
// left untouched.
func (c *Controller) RecordOutcome(host string, outcome Outcome) (time.Duration, error) {
	slot := c.reg.getOrCreate(host)

	slot.mu.Lock()
	next, err := NextDelay(slot.delay, outcome, c.cfg)
	if err != nil {
		slot.mu.Unlock()
		return 0, err
	}
	prev := slot.delay
	slot.delay = next
	slot.mu.Unlock()

	if significantChange(prev, next) {
		c.logger.Debug("pacing delay adjusted",
			zap.String("host", host),
			zap.Stringer("outcome", outcome),
			zap.Duration("previous", prev),
			zap.Duration("delay", next),
		)
		if c.observer != nil {
			c.observer(host, outcome, next)
		}
	}
	return next, nil
}

// CurrentDelay returns the delay currently assigned to host, or the base
// delay if the host has not been seen. It never creates state.
func (c *Controller) CurrentDelay(host string) time.Duration {
	return c.reg.delay(host)
}

// TrackedHosts reports how many hosts currently hold pacing state.
func (c *Controller) TrackedHosts() int {
	return c.reg.len()
}

// Snapshot returns a copy of every tracked host's current delay.
func (c *Controller) Snapshot() map[string]time.Duration {
	return c.reg.snapshot()
}

// Config returns the immutable policy configuration.
func (c *Controller) Config() Config {
	return c.cfg
}
