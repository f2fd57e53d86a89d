//go:build unix

package engine

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// WatchSignal checkpoints the process through adapter whenever one of sigs
// is received, until ctx is done. Without sigs it watches SIGUSR2.
//
// A checkpoint started this way has no caller waiting on it; its outcome is
// only visible in the logs.
func WatchSignal(ctx context.Context, adapter Adapter, logger *slog.Logger, sigs ...os.Signal) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(sigs) == 0 {
		sigs = []os.Signal{unix.SIGUSR2}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	defer signal.Stop(ch)

	watchSignals(ctx, adapter, logger, ch)
}

func watchSignals(ctx context.Context, adapter Adapter, logger *slog.Logger, ch <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			logger.Info("checkpoint requested by signal",
				slog.String("signal", sig.String()),
				slog.String("engine", adapter.Name()),
			)
			if err := adapter.Checkpoint(ctx); err != nil {
				logger.Error("signal-initiated checkpoint failed",
					slog.String("signal", sig.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
