package freezethaw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/observability"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/persist"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/record"
)

// afterRestore is the thaw hook. The strategy comes from the freeze that
// produced the snapshot, never from current configuration.
func (c *Coordinator) afterRestore(ctx context.Context) error {
	rec := c.frozen.Swap(nil)
	if rec == nil {
		rec = c.lastUnrestored()
	}

	strategy := c.cfg.defaultStrategy
	attemptID := ""
	if rec != nil {
		strategy = Strategy(rec.Strategy)
		attemptID = rec.ID
	} else {
		c.logger.Warn("no checkpoint record found, restoring with default strategy",
			slog.String("strategy", string(strategy)))
	}

	logger := observability.EnrichLogger(c.logger, attemptID, string(strategy))
	c.phase.Store(int32(PhaseRestoring))

	ctx, span := c.cfg.spans.StartThawSpan(ctx, string(strategy))
	observability.LogRestoreStart(logger)
	done := observability.TimedOperation()

	err := c.restore(ctx, strategy, logger)
	elapsed := done()

	if rec != nil {
		rec.RestoredAt = time.Now().UTC()
		if saveErr := c.cfg.store.Save(rec); saveErr != nil {
			logger.Warn("failed to save checkpoint record", slog.String("error", saveErr.Error()))
		}
	}

	c.cfg.metrics.RecordRestore(ctx, string(strategy), elapsed, err)
	c.cfg.spans.EndSpanWithError(span, err)
	c.phase.Store(int32(PhaseIdle))

	if err != nil {
		observability.LogRestoreError(logger, err, observability.Millis(elapsed))
		return &CoordinationError{Op: "restore", Strategy: strategy, Err: err}
	}
	observability.LogRestoreComplete(logger, observability.Millis(elapsed))
	return nil
}

// lastUnrestored returns the newest record if it has not been restored yet.
// This covers a restore in a fresh process image whose memory predates
// the freeze hook's bookkeeping.
func (c *Coordinator) lastUnrestored() *record.Record {
	rec, err := c.cfg.store.Latest()
	if err != nil {
		if !errors.Is(err, record.ErrNotFound) {
			c.logger.Warn("failed to load checkpoint record", slog.String("error", err.Error()))
		}
		return nil
	}
	if rec.Restored() {
		return nil
	}
	return rec
}

func (c *Coordinator) restore(ctx context.Context, strategy Strategy, logger *slog.Logger) error {
	switch strategy {
	case SuspendResume:
		return c.restoreResume(ctx)
	case ReloadToModel:
		return c.restoreReload(ctx, logger)
	default:
		return fmt.Errorf("%w: %w: %q", ErrRestoreFailed, ErrUnsupportedStrategy, strategy)
	}
}

func (c *Coordinator) restoreResume(ctx context.Context) error {
	res, err := c.admin.Resume(ctx)
	if err != nil || !res.Success {
		return &AdminError{Op: "resume", Description: res.FailureDescription, Err: err, Kind: ErrRestoreFailed}
	}
	return nil
}

// restoreReload applies overrides, releases the parked boot and waits for
// the process to report RUNNING.
func (c *Coordinator) restoreReload(ctx context.Context, logger *slog.Logger) error {
	overrides, err := persist.LoadOverrides(c.cfg.overridesPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
	}
	if err := overrides.Apply(c.cfg.sink); err != nil {
		return fmt.Errorf("%w: apply overrides: %w", ErrRestoreFailed, err)
	}
	if len(overrides) > 0 {
		logger.Info("restore overrides applied", slog.Int("count", len(overrides)))
	}

	parked := c.restoreSlot.Swap(nil)
	if parked == nil {
		logger.Warn("no parked boot to release; the freeze did not complete its reload")
		return nil
	}

	running := make(chan struct{})
	var once sync.Once
	id := c.notifier.AddListener(func(s lifecycle.State) {
		if s == lifecycle.Running {
			once.Do(func() { close(running) })
		}
	})
	defer c.notifier.RemoveListener(id)

	parked.release()

	select {
	case <-running:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for %s: %w: %w", ErrRestoreFailed, lifecycle.Running, ErrInterrupted, context.Cause(ctx))
	}
}
