package flowcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error provides rich context about a flow execution failure. It wraps
// the underlying error with information about where and when the failure
// occurred, what data was being processed, and the path of node ids that
// led to the failure.
//
// InputData is any because a single flow's nodes carry heterogeneous
// result types; callers that know the failing node's type can recover it
// with a type assertion.
type Error struct {
	Timestamp time.Time
	InputData any
	Err       error
	Path      []NodeID
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	path := strings.Join(parts, " -> ")
	if path == "" {
		path = "unknown"
	}

	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out after %v: %v", path, e.Duration, e.Err)
	case e.Canceled:
		return fmt.Sprintf("%s canceled after %v: %v", path, e.Duration, e.Err)
	default:
		return fmt.Sprintf("%s failed after %v: %v", path, e.Duration, e.Err)
	}
}

// Unwrap supports errors.Is / errors.As against the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether the failure was caused by a timeout,
// including context.DeadlineExceeded surfacing from an activity.
func (e *Error) IsTimeout() bool {
	if e == nil {
		return false
	}
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the failure was caused by cancellation.
func (e *Error) IsCanceled() bool {
	if e == nil {
		return false
	}
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// Sentinel runtime errors raised by the executor for engine-level
// conditions (as opposed to errors returned by user activities).
var (
	// ErrResultNotReady is returned by a ResultThunk read that occurs
	// before its producing activity has completed. The validator's
	// liveness pass (spec §4.E.6) proves this cannot happen in a valid
	// flow; this error exists only to surface the impossibility under
	// defensive checks or a validator bug.
	ErrResultNotReady = errors.New("flowcore: result not ready")

	// ErrUnhandledCase is raised when a Switch node's choice matches
	// neither a declared case nor a default branch.
	ErrUnhandledCase = errors.New("flowcore: unhandled switch case")

	// ErrActivityInstantiation wraps a service container failure to
	// produce an activity instance.
	ErrActivityInstantiation = errors.New("flowcore: activity instantiation failed")

	// ErrHandlerFailed is raised when a fault or cancellation handler
	// itself fails; handler failures are never re-dispatched.
	ErrHandlerFailed = errors.New("flowcore: handler failed")

	// ErrVariableUninitialized is returned by Variable.CurrentValue when
	// the variable has no initial value and no update has run yet.
	ErrVariableUninitialized = errors.New("flowcore: variable uninitialized")
)

// Outcome is the terminal classification of a flow run, returned inside
// RunResult. It mirrors spec §6's closed run-result set.
type Outcome int

const (
	// OutcomeCompleted means the flow ran to a terminal node, or a fault
	// handler ran to completion without escalating (the fault was
	// handled).
	OutcomeCompleted Outcome = iota
	// OutcomeValidationFailed means Run refused to execute because
	// Validate returned errors; no activity was invoked.
	OutcomeValidationFailed
	// OutcomeFaulted means an activity fault reached a point with no
	// effective fault handler (should not happen in a validated flow;
	// surfaced defensively).
	OutcomeFaulted
	// OutcomeCancelled means cancellation reached a node with no
	// registered effective cancellation handler.
	OutcomeCancelled
	// OutcomeHandlerFailed means a fault or cancellation handler itself
	// failed.
	OutcomeHandlerFailed
)

// String renders the Outcome for logs and test failure messages.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "Completed"
	case OutcomeValidationFailed:
		return "ValidationFailed"
	case OutcomeFaulted:
		return "Faulted"
	case OutcomeCancelled:
		return "Cancelled"
	case OutcomeHandlerFailed:
		return "HandlerFailed"
	default:
		return "Unknown"
	}
}

// RunResult is the result of a Flow.Run call.
type RunResult struct {
	Outcome    Outcome
	Validation *ValidationResult // set only when Outcome == OutcomeValidationFailed
	Err        error             // set for Faulted, Cancelled, HandlerFailed
}

// Success reports whether the run completed without any of the failure
// outcomes.
func (r RunResult) Success() bool {
	return r.Outcome == OutcomeCompleted
}
