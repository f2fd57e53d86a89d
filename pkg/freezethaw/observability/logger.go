// Package observability provides structured logging, metrics and tracing
// for checkpoint coordination.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds checkpoint attempt context to a logger.
//
// Example:
//
//	enriched := EnrichLogger(logger, "ckpt-1a2b3c4d", "suspend-resume")
//	enriched.Info("suspending") // includes attempt_id and strategy
func EnrichLogger(logger *slog.Logger, attemptID, strategy string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("attempt_id", attemptID),
		slog.String("strategy", strategy),
	)
}

// LogTriggerRejected logs a checkpoint request refused before any state changed.
func LogTriggerRejected(logger *slog.Logger, strategy string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint request rejected",
		slog.String("strategy", strategy),
		slog.String("error", err.Error()),
	)
}

// LogQuiesceStart logs the start of quiescence in the freeze hook.
func LogQuiesceStart(logger *slog.Logger, external bool) {
	if logger == nil {
		return
	}
	logger.Info("quiescing for checkpoint",
		slog.Bool("external", external),
	)
}

// LogQuiesceComplete logs that the process is quiescent and ready for snapshot.
func LogQuiesceComplete(logger *slog.Logger, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("process quiescent, ready for snapshot",
		slog.Float64("duration_ms", durationMs),
	)
}

// LogQuiesceError logs a quiescence failure. The snapshot may still be taken.
func LogQuiesceError(logger *slog.Logger, err error, durationMs float64, waiter bool) {
	if logger == nil {
		return
	}
	logger.Error("quiescence failed",
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.Bool("caller_waiting", waiter),
	)
}

// LogRestoreStart logs the start of the thaw hook.
func LogRestoreStart(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Info("restoring from checkpoint")
}

// LogRestoreComplete logs a completed restore.
func LogRestoreComplete(logger *slog.Logger, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("restore completed",
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRestoreError logs a failed restore.
func LogRestoreError(logger *slog.Logger, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("restore failed",
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}

// Millis converts a duration to fractional milliseconds for log fields.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
