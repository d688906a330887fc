package core

import (
	"errors"
	"fmt"
)

// ErrBusClosed is returned by publish on a closed event bus.
var ErrBusClosed = errors.New("event bus closed")

// ErrStateConflict is returned by StateStore.Save when the blob's version is
// stale (another writer committed first). Callers reload and retry or give up.
var ErrStateConflict = errors.New("state version conflict")

// ErrCallLimit is returned when a run exceeds its provider round-trip budget.
var ErrCallLimit = errors.New("provider call limit exceeded")

// ValidationError reports a malformed request field. Requests failing
// validation are rejected before any bus or producer is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failure that crossed a provider adapter's boundary.
// The orchestrator converts it to a terminal MetaNotice; it never propagates
// to a caller-visible surface with internal detail attached.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
