// Package pacing implements the adaptive per-host request pacing controller.
//
// The controller tracks one delay value per remote host and adjusts it after
// every recorded fetch outcome: overload signals (429/503) escalate the delay
// multiplicatively, transport failures escalate it more gently, and ordinary
// responses decay it back toward the configured floor. The scheduler consults
// the controller before dispatching a request and honors the returned delay;
// the controller itself performs no I/O.
package pacing
