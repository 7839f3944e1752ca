package pacing

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for the pacing policy.
const (
	DefaultBaseDelay        = 250 * time.Millisecond
	DefaultMaxDelay         = 8 * time.Second
	DefaultEscalationFactor = 2.0
	DefaultExceptionFactor  = 1.5
	DefaultDecayFactor      = 0.5
)

// changeEpsilon is the smallest delay change worth surfacing to observers and
// logs. Smaller changes are still written to the slot; they are just not
// reported.
const changeEpsilon = time.Millisecond

// ErrUnknownOutcome is returned when a caller passes an outcome kind the
// policy does not recognize.
var ErrUnknownOutcome = errors.New("pacing: unknown outcome")

// Config holds the policy parameters. It is immutable after startup; Validate
// must pass before a Controller is constructed.
type Config struct {
	// BaseDelay is the pacing floor every host starts at.
	BaseDelay time.Duration
	// MaxDelay bounds worst-case backoff.
	MaxDelay time.Duration
	// EscalationFactor multiplies the delay on an overload signal.
	EscalationFactor float64
	// ExceptionFactor multiplies the delay on a transport failure.
	ExceptionFactor float64
	// DecayFactor multiplies the delay on an ordinary response, pulling it
	// back toward BaseDelay. Must be in (0, 1].
	DecayFactor float64
	// MaxTrackedHosts bounds the number of hosts the registry keeps state
	// for; least-recently-updated hosts are evicted past the bound.
	// Zero means unbounded.
	MaxTrackedHosts int
}

// DefaultConfig returns the documented default policy parameters.
func DefaultConfig() Config {
	return Config{
		BaseDelay:        DefaultBaseDelay,
		MaxDelay:         DefaultMaxDelay,
		EscalationFactor: DefaultEscalationFactor,
		ExceptionFactor:  DefaultExceptionFactor,
		DecayFactor:      DefaultDecayFactor,
	}
}

// Validate rejects configurations that would produce nonsensical pacing.
// A failure here must abort process startup.
func (c Config) Validate() error {
	if c.BaseDelay <= 0 {
		return fmt.Errorf("pacing: base delay must be > 0, got %v", c.BaseDelay)
	}
	if c.MaxDelay <= 0 {
		return fmt.Errorf("pacing: max delay must be > 0, got %v", c.MaxDelay)
	}
	if c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("pacing: base delay %v exceeds max delay %v", c.BaseDelay, c.MaxDelay)
	}
	if c.EscalationFactor <= 0 {
		return fmt.Errorf("pacing: escalation factor must be > 0, got %v", c.EscalationFactor)
	}
	if c.ExceptionFactor <= 0 {
		return fmt.Errorf("pacing: exception factor must be > 0, got %v", c.ExceptionFactor)
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		return fmt.Errorf("pacing: decay factor must be in (0, 1], got %v", c.DecayFactor)
	}
	if c.MaxTrackedHosts < 0 {
		return fmt.Errorf("pacing: max tracked hosts must be >= 0, got %d", c.MaxTrackedHosts)
	}
	return nil
}

// NextDelay applies the policy to a single observed outcome. It is pure: the
// caller owns reading and writing the slot. The result is always clamped to
// [BaseDelay, MaxDelay]; a current delay below the floor (e.g. a fresh slot
// seeded before the config changed) is treated as the floor.
func NextDelay(current time.Duration, outcome Outcome, cfg Config) (time.Duration, error) {
	if !outcome.valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownOutcome, int(outcome))
	}
	if current < cfg.BaseDelay {
		current = cfg.BaseDelay
	}
	var factor float64
	switch outcome {
	case OutcomeOverloaded:
		factor = cfg.EscalationFactor
	case OutcomeTransportFailure:
		factor = cfg.ExceptionFactor
	case OutcomeNormal:
		factor = cfg.DecayFactor
	}
	next := time.Duration(float64(current) * factor)
	return clamp(next, cfg.BaseDelay, cfg.MaxDelay), nil
}

func clamp(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// significantChange reports whether a delay update is large enough to surface
// to observers. This is a reporting concern only; clamped values are written
// regardless.
func significantChange(old, next time.Duration) bool {
	diff := next - old
	if diff < 0 {
		diff = -diff
	}
	return diff > changeEpsilon
}
