package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Uses the global OTel tracer provider.
var tracer = otel.Tracer("freezethaw")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartFreezeSpan starts a span covering the freeze hook.
	StartFreezeSpan(ctx context.Context, strategy, attemptID string) (context.Context, trace.Span)

	// StartThawSpan starts a span covering the thaw hook.
	StartThawSpan(ctx context.Context, strategy string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartFreezeSpan starts a span covering the freeze hook.
func (m *otelSpanManager) StartFreezeSpan(ctx context.Context, strategy, attemptID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "freezethaw.freeze",
		trace.WithAttributes(
			attribute.String("checkpoint.strategy", strategy),
			attribute.String("checkpoint.attempt_id", attemptID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartThawSpan starts a span covering the thaw hook.
func (m *otelSpanManager) StartThawSpan(ctx context.Context, strategy string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "freezethaw.thaw",
		trace.WithAttributes(
			attribute.String("checkpoint.strategy", strategy),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
