package freezethaw

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
)

// reloadStage tracks which lifecycle transition a reload quiescence is
// waiting for next.
type reloadStage int32

const (
	awaitingStopping reloadStage = iota
	awaitingStopped
	awaitingStarting
	awaitingReady
)

func (s reloadStage) String() string {
	switch s {
	case awaitingStopping:
		return "awaiting-stopping"
	case awaitingStopped:
		return "awaiting-stopped"
	case awaitingStarting:
		return "awaiting-starting"
	case awaitingReady:
		return "awaiting-ready"
	default:
		return fmt.Sprintf("stage(%d)", int32(s))
	}
}

// reloadRendezvous completes once STOPPING, STOPPED and STARTING have been
// observed in that order and the booting process has reported ready. The
// ready report is independent of the transitions: lifecycle delivery may
// lag behind the boot that produced it.
type reloadRendezvous struct {
	current    atomic.Int32
	readySeen  atomic.Bool
	ready      chan struct{}
	abandoned  chan struct{}
	settleOnce sync.Once
}

func newReloadRendezvous() *reloadRendezvous {
	return &reloadRendezvous{
		ready:     make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

func (r *reloadRendezvous) stage() reloadStage {
	return reloadStage(r.current.Load())
}

// observe advances the stage on the expected transition and ignores any
// other. It reports whether the stage advanced.
func (r *reloadRendezvous) observe(s lifecycle.State) bool {
	var from reloadStage
	switch s {
	case lifecycle.Stopping:
		from = awaitingStopping
	case lifecycle.Stopped:
		from = awaitingStopped
	case lifecycle.Starting:
		from = awaitingStarting
	default:
		return false
	}
	if !r.current.CompareAndSwap(int32(from), int32(from+1)) {
		return false
	}
	if from+1 == awaitingReady && r.readySeen.Load() {
		r.complete()
	}
	return true
}

// markReady records the boot's ready report.
func (r *reloadRendezvous) markReady() {
	r.readySeen.Store(true)
	if r.stage() == awaitingReady {
		r.complete()
	}
}

func (r *reloadRendezvous) complete() {
	r.settleOnce.Do(func() { close(r.ready) })
}

// abandon releases a parked boot when quiescence gives up before the
// rendezvous completed. It is a no-op after completion.
func (r *reloadRendezvous) abandon() {
	r.settleOnce.Do(func() { close(r.abandoned) })
}

// restoreRendezvous parks the booting process until the thaw hook
// releases it.
type restoreRendezvous struct {
	done chan struct{}
	once sync.Once
}

func newRestoreRendezvous() *restoreRendezvous {
	return &restoreRendezvous{done: make(chan struct{})}
}

func (r *restoreRendezvous) release() {
	r.once.Do(func() { close(r.done) })
}

// ReadyForCheckpoint is called by the process once its configuration is
// loaded and before any runtime service starts; admin.Process does this
// through its boot barrier. Outside a ReloadToModel quiescence it returns
// nil at once.
//
// During one, it reports the process ready for snapshot and blocks until
// the thaw hook releases it after restore. A second concurrent caller still
// counts as ready but is refused with an error matching both
// ErrProtocolViolation and ErrAlreadyInProgress. If ctx ends first the
// caller is unparked with ErrInterrupted.
func (c *Coordinator) ReadyForCheckpoint(ctx context.Context) error {
	rv := c.reloadSlot.Load()
	if rv == nil {
		return nil
	}

	// Claim the restore slot before reporting ready so the snapshot can
	// never be taken ahead of it.
	restore := newRestoreRendezvous()
	if !c.restoreSlot.CompareAndSwap(nil, restore) {
		rv.markReady()
		return &CoordinationError{
			Op:       "ready",
			Strategy: ReloadToModel,
			Err:      fmt.Errorf("%w: restore rendezvous %w", ErrProtocolViolation, ErrAlreadyInProgress),
		}
	}
	rv.markReady()
	c.logger.Info("boot parked for checkpoint", slog.String("reload_stage", rv.stage().String()))

	select {
	case <-restore.done:
		c.logger.Info("boot released after restore")
		return nil
	case <-rv.abandoned:
		c.restoreSlot.CompareAndSwap(restore, nil)
		c.logger.Warn("reload quiescence abandoned, continuing boot")
		return nil
	case <-ctx.Done():
		if c.restoreSlot.CompareAndSwap(restore, nil) {
			return &CoordinationError{
				Op:       "ready",
				Strategy: ReloadToModel,
				Err:      fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx)),
			}
		}
		// The thaw hook already claimed the slot and is about to release it.
		<-restore.done
		return nil
	}
}
