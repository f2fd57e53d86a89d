package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Trigger outcomes recorded by RecordTrigger.
const (
	OutcomeAccepted    = "accepted"
	OutcomeRejected    = "rejected"
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// MetricsRecorder records checkpoint coordination metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordTrigger records the outcome of a checkpoint request.
	RecordTrigger(ctx context.Context, strategy, outcome string)

	// RecordQuiesce records a freeze-hook quiescence with its duration and error status.
	RecordQuiesce(ctx context.Context, strategy string, duration time.Duration, err error)

	// RecordRestore records a thaw-hook restore with its duration and error status.
	RecordRestore(ctx context.Context, strategy string, duration time.Duration, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	triggers       metric.Int64Counter
	quiesceLatency metric.Float64Histogram
	quiesceErrors  metric.Int64Counter
	restoreLatency metric.Float64Histogram
	restoreErrors  metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("freezethaw")

	triggers, err := meter.Int64Counter("freezethaw.checkpoint.triggers",
		metric.WithDescription("Number of checkpoint requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	quiesceLatency, err := meter.Float64Histogram("freezethaw.quiesce.latency_ms",
		metric.WithDescription("Time from freeze hook entry to quiescence in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	quiesceErrors, err := meter.Int64Counter("freezethaw.quiesce.errors",
		metric.WithDescription("Number of failed quiescence attempts"),
	)
	if err != nil {
		return nil, err
	}

	restoreLatency, err := meter.Float64Histogram("freezethaw.restore.latency_ms",
		metric.WithDescription("Time spent in the thaw hook in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	restoreErrors, err := meter.Int64Counter("freezethaw.restore.errors",
		metric.WithDescription("Number of failed restores"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		triggers:       triggers,
		quiesceLatency: quiesceLatency,
		quiesceErrors:  quiesceErrors,
		restoreLatency: restoreLatency,
		restoreErrors:  restoreErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordTrigger records a checkpoint request outcome.
func (m *otelMetrics) RecordTrigger(ctx context.Context, strategy, outcome string) {
	m.triggers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
}

// RecordQuiesce records a quiescence attempt.
func (m *otelMetrics) RecordQuiesce(ctx context.Context, strategy string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.quiesceLatency.Record(ctx, Millis(duration), attrs)
	if err != nil {
		m.quiesceErrors.Add(ctx, 1, attrs)
	}
}

// RecordRestore records a restore.
func (m *otelMetrics) RecordRestore(ctx context.Context, strategy string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.restoreLatency.Record(ctx, Millis(duration), attrs)
	if err != nil {
		m.restoreErrors.Add(ctx, 1, attrs)
	}
}
