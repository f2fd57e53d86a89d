package freezethaw

import (
	"errors"
	"fmt"
)

// Sentinel errors for checkpoint coordination.
var (
	// ErrNotSupported indicates no usable checkpoint engine is installed.
	ErrNotSupported = errors.New("checkpointing not supported")

	// ErrUnsupportedStrategy indicates the strategy is not implemented or not
	// in the configured supported set.
	ErrUnsupportedStrategy = errors.New("unsupported checkpoint strategy")

	// ErrAlreadyInProgress indicates a single-flight slot was already occupied.
	ErrAlreadyInProgress = errors.New("checkpoint operation already in progress")

	// ErrQuiescenceFailed indicates the suspend or reload operation did not succeed.
	ErrQuiescenceFailed = errors.New("quiescence failed")

	// ErrRestoreFailed indicates the process could not be brought back to running.
	ErrRestoreFailed = errors.New("restore failed")

	// ErrProtocolViolation indicates an internal coordination invariant was broken.
	ErrProtocolViolation = errors.New("checkpoint protocol violation")

	// ErrInterrupted indicates a blocked caller's context ended before the
	// event it was waiting for.
	ErrInterrupted = errors.New("interrupted while waiting")
)

// CoordinationError wraps errors from coordinator operations.
type CoordinationError struct {
	// Op is the operation that failed ("trigger", "freeze", "ready", "restore").
	Op string
	// Strategy is the strategy in effect, if known.
	Strategy Strategy
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CoordinationError) Error() string {
	if e.Strategy == "" {
		return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s (%s): %v", e.Op, e.Strategy, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CoordinationError) Unwrap() error {
	return e.Err
}

// AdminError reports an administrative operation that did not succeed.
type AdminError struct {
	// Op is the administrative operation ("suspend", "resume", "reload").
	Op string
	// Description is the failure description reported by the operation.
	Description string
	// Err is the invocation error, if the operation could not be run at all.
	Err error
	// Kind is ErrQuiescenceFailed or ErrRestoreFailed.
	Kind error
}

// Error implements the error interface.
func (e *AdminError) Error() string {
	switch {
	case e.Err != nil && e.Description != "":
		return fmt.Sprintf("%v: %s: %s: %v", e.Kind, e.Op, e.Description, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Op, e.Err)
	case e.Description != "":
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Op, e.Description)
	default:
		return fmt.Sprintf("%v: %s did not succeed", e.Kind, e.Op)
	}
}

// Unwrap exposes both the kind and the invocation error to errors.Is/As.
func (e *AdminError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
