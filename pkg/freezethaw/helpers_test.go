package freezethaw_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/admin"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/engine"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedAdmin is an admin.Client whose operations default to success and
// can be overridden per test. It counts every call.
type scriptedAdmin struct {
	suspend func(ctx context.Context, timeout time.Duration) (admin.Result, error)
	resume  func(ctx context.Context) (admin.Result, error)
	reload  func(ctx context.Context) (admin.Result, error)

	suspends atomic.Int32
	resumes  atomic.Int32
	reloads  atomic.Int32
}

func (a *scriptedAdmin) Suspend(ctx context.Context, timeout time.Duration) (admin.Result, error) {
	a.suspends.Add(1)
	if a.suspend != nil {
		return a.suspend(ctx, timeout)
	}
	return admin.OK(), nil
}

func (a *scriptedAdmin) Resume(ctx context.Context) (admin.Result, error) {
	a.resumes.Add(1)
	if a.resume != nil {
		return a.resume(ctx)
	}
	return admin.OK(), nil
}

func (a *scriptedAdmin) Reload(ctx context.Context) (admin.Result, error) {
	a.reloads.Add(1)
	if a.reload != nil {
		return a.reload(ctx)
	}
	return admin.OK(), nil
}

// countingClient wraps a real client and counts calls.
type countingClient struct {
	admin.Client
	suspends atomic.Int32
	resumes  atomic.Int32
	reloads  atomic.Int32
}

func (c *countingClient) Suspend(ctx context.Context, timeout time.Duration) (admin.Result, error) {
	c.suspends.Add(1)
	return c.Client.Suspend(ctx, timeout)
}

func (c *countingClient) Resume(ctx context.Context) (admin.Result, error) {
	c.resumes.Add(1)
	return c.Client.Resume(ctx)
}

func (c *countingClient) Reload(ctx context.Context) (admin.Result, error) {
	c.reloads.Add(1)
	return c.Client.Reload(ctx)
}

// fakeEngine is an always-available engine whose Checkpoint behaviour is
// supplied by the test. By default it runs the freeze hooks and then the
// thaw hooks, like an engine that restores immediately.
type fakeEngine struct {
	mu     sync.Mutex
	freeze []engine.Hook
	thaw   []engine.Hook
	calls  atomic.Int32

	checkpoint func(ctx context.Context, e *fakeEngine) error
}

func (e *fakeEngine) Name() string    { return "fake" }
func (e *fakeEngine) Available() bool { return true }

func (e *fakeEngine) RegisterFreezeHook(h engine.Hook, _ int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.freeze = append(e.freeze, h)
}

func (e *fakeEngine) RegisterThawHook(h engine.Hook, _ int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thaw = append(e.thaw, h)
}

func (e *fakeEngine) Checkpoint(ctx context.Context) error {
	e.calls.Add(1)
	if e.checkpoint != nil {
		return e.checkpoint(ctx, e)
	}
	if err := e.runFreeze(ctx); err != nil {
		return err
	}
	return e.runThaw(ctx)
}

func (e *fakeEngine) runFreeze(ctx context.Context) error {
	e.mu.Lock()
	hooks := append([]engine.Hook(nil), e.freeze...)
	e.mu.Unlock()
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (e *fakeEngine) runThaw(ctx context.Context) error {
	e.mu.Lock()
	hooks := append([]engine.Hook(nil), e.thaw...)
	e.mu.Unlock()
	for _, h := range hooks {
		if err := h(ctx); err != nil {
			return err
		}
	}
	return nil
}

// recordingSpans is a SpanManager that remembers span and event names.
type recordingSpans struct {
	mu     sync.Mutex
	names  []string
	events []string
	errs   []error
}

func (r *recordingSpans) StartFreezeSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	r.add(&r.names, "freeze")
	return ctx, trace.SpanFromContext(ctx)
}

func (r *recordingSpans) StartThawSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	r.add(&r.names, "thaw")
	return ctx, trace.SpanFromContext(ctx)
}

func (r *recordingSpans) EndSpanWithError(_ trace.Span, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingSpans) AddSpanEvent(_ context.Context, name string, _ ...attribute.KeyValue) {
	r.add(&r.events, name)
}

func (r *recordingSpans) add(list *[]string, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*list = append(*list, s)
}

func (r *recordingSpans) snapshot() (names, events []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...), append([]string(nil), r.events...)
}

// recordingMetrics counts trigger outcomes.
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
	quiesces int
	restores int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[string]int)}
}

func (m *recordingMetrics) RecordTrigger(_ context.Context, _, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

func (m *recordingMetrics) RecordQuiesce(context.Context, string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quiesces++
}

func (m *recordingMetrics) RecordRestore(context.Context, string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restores++
}

func (m *recordingMetrics) outcome(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[name]
}

// journal collects lifecycle transitions and service calls in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type service struct {
	name    string
	journal *journal
	// stopGate, when set, holds Stop until it is closed.
	stopGate <-chan struct{}
}

func (s *service) Name() string { return s.name }

func (s *service) Start(context.Context) error {
	s.journal.add("start:" + s.name)
	return nil
}

func (s *service) Stop(context.Context) error {
	if s.stopGate != nil {
		<-s.stopGate
	}
	s.journal.add("stop:" + s.name)
	return nil
}
