// Package gwerr defines the gateway-wide error taxonomy.
//
// DESIGN: Every failure that crosses a component boundary is carried by one
// container type with a stable Kind classification. Components classify once,
// close to the source; everything downstream (retry predicate, breaker,
// telemetry, caller) branches on Kind and Retryable, never on provider
// specifics. Resolved credentials never appear in an Error.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind is a stable, provider-agnostic error classification.
type Kind string

const (
	KindInvalidRequest        Kind = "invalid_request"
	KindUnsupportedCapability Kind = "unsupported_capability"
	KindAuthentication        Kind = "authentication"
	KindAuthorization         Kind = "authorization"
	KindRateLimited           Kind = "rate_limited"
	KindTimeout               Kind = "timeout"
	KindCircuitOpen           Kind = "circuit_open"
	KindBudgetExceeded        Kind = "budget_exceeded"
	KindBackendTransient      Kind = "backend_transient"
	KindBackendPermanent      Kind = "backend_permanent"
	KindProtocolViolation     Kind = "protocol_violation"
	KindInternal              Kind = "internal"
)

// Error is the provider-agnostic error container used across the pipeline.
type Error struct {
	Kind Kind

	// Message is human-readable and safe to log.
	Message string

	// BackendID is set once a backend has been selected.
	BackendID string

	// ProviderCode is an optional provider-specific error code.
	ProviderCode string

	// Retryable marks the error as eligible for the retry predicate.
	// Eligibility is necessary but not sufficient; see reliability.
	Retryable bool

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.BackendID != "" {
		return fmt.Sprintf("gateway %s [%s]: %s", e.Kind, e.BackendID, msg)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error with the default retryability for its kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Retryable: defaultRetryable(kind)}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap classifies an underlying error. If err is already an *Error it is
// returned unchanged so the original classification wins.
func Wrap(kind Kind, err error, msg string) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	e := New(kind, msg)
	e.Cause = err
	return e
}

// WithBackend returns a copy carrying the backend id.
func (e *Error) WithBackend(backendID string) *Error {
	cp := *e
	cp.BackendID = backendID
	return &cp
}

// WithProviderCode returns a copy carrying a provider-specific code.
func (e *Error) WithProviderCode(code string) *Error {
	cp := *e
	cp.ProviderCode = code
	return &cp
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if ge, ok := As(err); ok {
		return ge.Kind
	}
	return KindInternal
}

// IsRetryable reports whether err is marked retry-eligible.
func IsRetryable(err error) bool {
	ge, ok := As(err)
	return ok && ge.Retryable
}

// defaultRetryable implements the propagation policy: only transient backend
// failures, timeouts and rate limits are retry-eligible.
func defaultRetryable(kind Kind) bool {
	switch kind {
	case KindBackendTransient, KindTimeout, KindRateLimited:
		return true
	default:
		return false
	}
}
