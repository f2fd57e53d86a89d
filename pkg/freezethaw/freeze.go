package freezethaw

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/observability"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/record"
)

// beforeCheckpoint is the freeze hook. It never fails the snapshot: the
// outcome goes to the waiting trigger, if any, and to the log.
func (c *Coordinator) beforeCheckpoint(ctx context.Context) error {
	req := c.activeTrigger.Swap(nil)

	strategy := c.cfg.defaultStrategy
	if req != nil {
		strategy = req.strategy
	}

	rec := record.New(string(strategy))
	logger := observability.EnrichLogger(c.logger, rec.ID, string(strategy))

	c.current.Store(&strategy)
	c.frozen.Store(rec)
	c.phase.Store(int32(PhaseQuiescing))

	ctx, span := c.cfg.spans.StartFreezeSpan(ctx, string(strategy), rec.ID)
	observability.LogQuiesceStart(logger, req == nil)
	done := observability.TimedOperation()

	err := c.quiesce(ctx, strategy, logger)
	elapsed := done()

	rec.WithError(err)
	if saveErr := c.cfg.store.Save(rec); saveErr != nil {
		logger.Warn("failed to save checkpoint record", slog.String("error", saveErr.Error()))
	}

	c.cfg.metrics.RecordQuiesce(ctx, string(strategy), elapsed, err)
	c.cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		observability.LogQuiesceError(logger, err, observability.Millis(elapsed), req != nil)
		err = &CoordinationError{Op: "freeze", Strategy: strategy, Err: err}
		c.phase.Store(int32(PhaseIdle))
	} else {
		observability.LogQuiesceComplete(logger, observability.Millis(elapsed))
		c.phase.Store(int32(PhaseReadyForSnapshot))
	}

	c.current.Store(nil)
	if req != nil {
		req.signal(err)
	}
	return nil
}

func (c *Coordinator) quiesce(ctx context.Context, strategy Strategy, logger *slog.Logger) error {
	switch strategy {
	case SuspendResume:
		return c.quiesceSuspend(ctx)
	case ReloadToModel:
		return c.quiesceReload(ctx, logger)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy)
	}
}

// quiesceSuspend waits without a timeout; in-flight requests decide how
// long the drain takes.
func (c *Coordinator) quiesceSuspend(ctx context.Context) error {
	res, err := c.admin.Suspend(ctx, 0)
	if err != nil || !res.Success {
		return &AdminError{Op: "suspend", Description: res.FailureDescription, Err: err, Kind: ErrQuiescenceFailed}
	}
	return nil
}

// quiesceReload starts a reload and waits until it is parked in
// ReadyForCheckpoint with STOPPING, STOPPED and STARTING seen in order.
func (c *Coordinator) quiesceReload(ctx context.Context, logger *slog.Logger) error {
	rv := newReloadRendezvous()
	if !c.reloadSlot.CompareAndSwap(nil, rv) {
		return fmt.Errorf("%w: reload rendezvous already armed", ErrAlreadyInProgress)
	}
	defer func() {
		rv.abandon()
		c.reloadSlot.CompareAndSwap(rv, nil)
	}()

	id := c.notifier.AddListener(func(s lifecycle.State) {
		if rv.observe(s) {
			c.cfg.spans.AddSpanEvent(ctx, "lifecycle."+s.String(),
				attribute.String("freezethaw.reload.stage", rv.stage().String()))
		}
	})
	defer c.notifier.RemoveListener(id)

	res, err := c.admin.Reload(ctx)
	if err != nil || !res.Success {
		return &AdminError{Op: "reload", Description: res.FailureDescription, Err: err, Kind: ErrQuiescenceFailed}
	}

	select {
	case <-rv.ready:
	case <-ctx.Done():
		return fmt.Errorf("%w: reload stopped at %s: %w", ErrInterrupted, rv.stage(), context.Cause(ctx))
	}

	if c.cfg.marker != nil {
		if err := c.cfg.marker.Write(time.Now()); err != nil {
			return fmt.Errorf("write checkpoint marker: %w", err)
		}
		logger.Debug("checkpoint marker written", slog.String("path", c.cfg.marker.Path()))
	}
	return nil
}
