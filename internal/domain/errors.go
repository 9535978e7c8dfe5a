// Package domain provides shared domain-level sentinel and typed errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested subject, version, or context does not exist.
var ErrNotFound = errors.New("not found")

// ErrReadOnly indicates a mutating call was attempted against a read-only registry.
var ErrReadOnly = errors.New("registry is read-only")

// ErrInvalidPlan indicates a plan failed validation before any task was created.
var ErrInvalidPlan = errors.New("invalid plan")

// ErrTaskTerminal indicates an operation on a task that already reached a terminal state.
var ErrTaskTerminal = errors.New("task is in a terminal state")

// ErrCancelled indicates cooperative cancellation was observed mid-operation.
var ErrCancelled = errors.New("operation cancelled")

// TransportError wraps a failed or timed-out remote registry call.
// It is recorded per-item or per-version and never escalated beyond its scope.
type TransportError struct {
	Registry   string
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("registry %s: %s: status %d: %v", e.Registry, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("registry %s: %s: %v", e.Registry, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
