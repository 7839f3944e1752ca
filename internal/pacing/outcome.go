package pacing

import "fmt"

// Outcome classifies the result of a single fetch attempt as seen by the
// scheduler. Classification from HTTP status codes or transport errors happens
// at the scheduler boundary; this package never inspects protocol details.
type Outcome int

// Outcome variants.
const (
	// OutcomeNormal is any completed response that is not an overload
	// signal, including non-2xx codes.
	OutcomeNormal Outcome = iota
	// OutcomeOverloaded means the server asked the caller to slow down
	// (e.g. HTTP 429 or 503).
	OutcomeOverloaded
	// OutcomeTransportFailure means the request never completed
	// (connection reset, timeout, DNS failure).
	OutcomeTransportFailure
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeNormal:
		return "normal"
	case OutcomeOverloaded:
		return "overloaded"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

func (o Outcome) valid() bool {
	switch o {
	case OutcomeNormal, OutcomeOverloaded, OutcomeTransportFailure:
		return true
	default:
		return false
	}
}
