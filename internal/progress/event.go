// Package progress defines the event stream emitted by the crawl scheduler.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart      Stage = "RUN_START"
	StageRunDone       Stage = "RUN_DONE"
	StageRunError      Stage = "RUN_ERROR"
	StageFetchDone     Stage = "FETCH_DONE"
	StageHostThrottled Stage = "HOST_THROTTLED"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// RunID identifies the crawl run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Host scopes fetch and throttle events to a host key.
	Host string
	// URL is the optional page URL; it should not contain credentials.
	URL string
	// StatusCode carries the HTTP status for fetch completions.
	StatusCode int
	// Delay carries the pacing delay active after a throttle event.
	Delay time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetchDone:
		if e.Host == "" {
			return errors.New("fetch done requires host")
		}
	case StageHostThrottled:
		if e.Host == "" {
			return errors.New("throttle event requires host")
		}
		if e.Delay <= 0 {
			return errors.New("throttle event requires a positive delay")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}
