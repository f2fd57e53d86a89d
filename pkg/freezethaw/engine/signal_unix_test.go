//go:build unix

package engine

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestWatchSignals(t *testing.T) {
	l := NewLocal(WithAutoRestore())

	var frozen, thawed atomic.Int32
	l.RegisterFreezeHook(func(context.Context) error {
		frozen.Add(1)
		return nil
	}, 0)
	l.RegisterThawHook(func(context.Context) error {
		thawed.Add(1)
		return nil
	}, 0)

	ch := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		watchSignals(ctx, l, slog.Default(), ch)
	}()

	ch <- unix.SIGUSR2
	require.Eventually(t, func() bool { return thawed.Load() == 1 }, time.Second, time.Millisecond)

	ch <- unix.SIGUSR2
	require.Eventually(t, func() bool { return thawed.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), frozen.Load())

	cancel()
	<-stopped
}

func TestWatchSignals_EngineErrorKeepsWatching(t *testing.T) {
	ch := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		watchSignals(ctx, Noop{}, slog.Default(), ch)
	}()

	ch <- unix.SIGUSR2
	ch <- unix.SIGUSR2

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
