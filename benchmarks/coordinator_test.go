package benchmarks

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/admin"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/engine"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
)

func newCoordinator(b *testing.B, l *engine.Local, client admin.Client, n lifecycle.Notifier, opts ...freezethaw.Option) *freezethaw.Coordinator {
	b.Helper()
	opts = append([]freezethaw.Option{freezethaw.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := freezethaw.NewCoordinator(l, client, n, opts...)
	if err != nil {
		b.Fatal(err)
	}
	return c
}

// BenchmarkTrigger_SuspendResume measures a full suspend, snapshot and
// resume cycle through the in-process engine.
func BenchmarkTrigger_SuspendResume(b *testing.B) {
	n := lifecycle.NewBroadcaster(lifecycle.DefaultBroadcasterConfig)
	defer n.Close()
	process := admin.NewProcess(n).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	l := engine.NewLocal()
	defer l.Close()
	c := newCoordinator(b, l, process, n)
	defer c.Close()

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.TriggerCheckpoint(ctx, freezethaw.SuspendResume); err != nil {
			b.Fatal(err)
		}
		for !l.Frozen() {
			time.Sleep(time.Microsecond)
		}
		if err := l.Restore(ctx); err != nil {
			b.Fatal(err)
		}
		for c.EngineBusy() {
			time.Sleep(time.Microsecond)
		}
	}
}

// BenchmarkTrigger_Rejected measures the cost of refusing a trigger while
// another checkpoint is parked.
func BenchmarkTrigger_Rejected(b *testing.B) {
	n := lifecycle.NewBroadcaster(lifecycle.DefaultBroadcasterConfig)
	defer n.Close()
	process := admin.NewProcess(n).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	l := engine.NewLocal()
	defer l.Close()
	c := newCoordinator(b, l, process, n)
	defer c.Close()

	ctx := context.Background()
	if err := c.TriggerCheckpoint(ctx, freezethaw.SuspendResume); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.TriggerCheckpoint(ctx, freezethaw.SuspendResume)
	}
}
