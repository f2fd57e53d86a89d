// Package admin defines the administrative operations used to bring a
// managed process to and back from quiescence.
package admin

import (
	"context"
	"time"
)

// Result is the outcome of an administrative operation.
type Result struct {
	Success            bool   `json:"success"`
	FailureDescription string `json:"failure_description,omitempty"`
}

// OK returns a successful result.
func OK() Result {
	return Result{Success: true}
}

// Failed returns an unsuccessful result with a description.
func Failed(description string) Result {
	return Result{FailureDescription: description}
}

// Client executes administrative operations against the managed process.
//
// A returned error means the operation could not be invoked at all; an
// operation that ran and did not succeed reports Result.Success == false.
type Client interface {
	// Suspend stops accepting new work and blocks until in-flight work has
	// drained. A zero timeout waits indefinitely.
	Suspend(ctx context.Context, timeout time.Duration) (Result, error)

	// Resume undoes Suspend.
	Resume(ctx context.Context) (Result, error)

	// Reload tears down and rebuilds the runtime services. It returns once
	// the reload is initiated, not when it completes.
	Reload(ctx context.Context) (Result, error)
}
