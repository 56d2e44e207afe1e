// Package reactorerr defines the reactor's error taxonomy: decode-path
// parse errors, per-entry task outcomes, and the single broker-error
// surface the reactor returns to callers.
package reactorerr

import (
	"errors"
	"fmt"
)

// ParseKind classifies why decoding a stream entry's field map failed.
type ParseKind int

const (
	KindUTF8 ParseKind = iota
	KindInt
	KindFloat
	KindJSON
	KindBroker
)

func (k ParseKind) String() string {
	switch k {
	case KindUTF8:
		return "utf8"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindJSON:
		return "json"
	case KindBroker:
		return "broker"
	default:
		return "unknown"
	}
}

// ParseError is returned by the entry codec's decode path.
type ParseError struct {
	Field string
	Kind  ParseKind
	Cause error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("reactorerr: decode field %q: %s: %v", e.Field, e.Kind, e.Cause)
	}
	return fmt.Sprintf("reactorerr: decode: %s: %v", e.Kind, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// AsBrokerError converts a ParseError into the reactor's uniform
// BrokerError surface, preserving the textual cause. Decode errors are
// never transient: the entry is left pending and reclaimed later instead
// of being retried by the loop itself.
func (e *ParseError) AsBrokerError() *BrokerError {
	return &BrokerError{Op: "decode", Err: e, Transient: false}
}

// BrokerError is the reactor's single public error surface. Transient
// marks errors that should be retried with backoff rather than bubbled up
// to the caller.
type BrokerError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *BrokerError) Error() string {
	return fmt.Sprintf("reactorerr: %s: %v", e.Op, e.Err)
}

func (e *BrokerError) Unwrap() error { return e.Err }

// NewBrokerError wraps a lower-level error with the operation that
// produced it and whether it should be treated as transient.
func NewBrokerError(op string, err error, transient bool) *BrokerError {
	if err == nil {
		return nil
	}
	return &BrokerError{Op: op, Err: err, Transient: transient}
}

// IsTransient reports whether err (or a wrapped BrokerError within it) was
// marked transient.
func IsTransient(err error) bool {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}

// OutcomeKind is the result a handler produces for one dispatched entry.
type OutcomeKind int

const (
	// OutcomeAck acknowledges the entry (XACK).
	OutcomeAck OutcomeKind = iota
	// OutcomeDelete deletes the entry from the stream without
	// acknowledging it (XDEL).
	OutcomeDelete
	// OutcomeSkip leaves the entry pending: no XACK, no XDEL.
	OutcomeSkip
	// OutcomeError is a domain error: the entry is left pending for
	// later reclamation and the error is logged, not propagated.
	OutcomeError
)

// TaskOutcome is the tagged result of handling one stream entry.
type TaskOutcome struct {
	Kind OutcomeKind
	Err  error
}

// Ack reports successful processing; the entry should be acknowledged.
func Ack() TaskOutcome { return TaskOutcome{Kind: OutcomeAck} }

// Delete reports that the entry should be removed from the stream without
// acknowledgement (poison-pill draining).
func Delete() TaskOutcome { return TaskOutcome{Kind: OutcomeDelete} }

// Skip reports that the entry should be left pending untouched.
func Skip() TaskOutcome { return TaskOutcome{Kind: OutcomeSkip} }

// Fail wraps a domain error. The entry is left pending; err is logged by
// the caller, never returned from the reactor's public surface.
func Fail(err error) TaskOutcome { return TaskOutcome{Kind: OutcomeError, Err: err} }
