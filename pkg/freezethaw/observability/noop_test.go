package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordTrigger(ctx, "suspend-resume", OutcomeAccepted)
		m.RecordQuiesce(ctx, "suspend-resume", time.Second, errors.New("x"))
		m.RecordRestore(ctx, "suspend-resume", time.Second, nil)
	})
}

func TestNoopSpanManager(t *testing.T) {
	var sm SpanManager = NoopSpanManager{}
	ctx := context.Background()

	gotCtx, span := sm.StartFreezeSpan(ctx, "suspend-resume", "ckpt-1")
	assert.Equal(t, ctx, gotCtx)
	assert.False(t, span.IsRecording())

	gotCtx, span = sm.StartThawSpan(ctx, "suspend-resume")
	assert.Equal(t, ctx, gotCtx)

	assert.NotPanics(t, func() {
		sm.AddSpanEvent(ctx, "event")
		sm.EndSpanWithError(span, errors.New("x"))
	})
}
