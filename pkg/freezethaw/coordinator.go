package freezethaw

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/heptiolabs/healthcheck"
	"github.com/panjf2000/ants/v2"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/admin"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/engine"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/observability"
	"github.com/randalmurphal/freezethaw/pkg/freezethaw/record"
)

// Phase is a coarse view of where the coordinator is in a checkpoint cycle.
type Phase int32

// Coordinator phases.
const (
	PhaseIdle Phase = iota
	PhaseTriggered
	PhaseQuiescing
	PhaseReadyForSnapshot
	PhaseRestoring
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTriggered:
		return "triggered"
	case PhaseQuiescing:
		return "quiescing"
	case PhaseReadyForSnapshot:
		return "ready-for-snapshot"
	case PhaseRestoring:
		return "restoring"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Coordinator prepares a process for checkpoint and brings it back after
// restore. Create one with NewCoordinator; it is safe for concurrent use.
type Coordinator struct {
	engine   engine.Adapter
	admin    admin.Client
	notifier lifecycle.Notifier
	cfg      coordinatorConfig
	logger   *slog.Logger

	supported map[Strategy]struct{}

	// worker runs engine.Checkpoint; one at a time.
	worker *ants.Pool
	// busy is held from trigger admission until engine.Checkpoint returns.
	busy atomic.Bool

	activeTrigger atomic.Pointer[triggerRequest]
	reloadSlot    atomic.Pointer[reloadRendezvous]
	restoreSlot   atomic.Pointer[restoreRendezvous]
	current       atomic.Pointer[Strategy]
	frozen        atomic.Pointer[record.Record]
	phase         atomic.Int32

	closeOnce sync.Once
}

// triggerRequest is the payload of the active trigger slot.
type triggerRequest struct {
	strategy Strategy
	done     chan struct{}
	once     sync.Once
	err      error
}

func newTriggerRequest(s Strategy) *triggerRequest {
	return &triggerRequest{strategy: s, done: make(chan struct{})}
}

// signal publishes the outcome once; later calls are ignored.
func (r *triggerRequest) signal(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// NewCoordinator creates a coordinator and registers its freeze and thaw
// hooks with eng. A nil eng is treated as engine.Noop.
func NewCoordinator(eng engine.Adapter, client admin.Client, notifier lifecycle.Notifier, opts ...Option) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("freezethaw: admin client is required")
	}
	if notifier == nil {
		return nil, errors.New("freezethaw: lifecycle notifier is required")
	}
	if eng == nil {
		eng = engine.Noop{}
	}

	cfg := defaultCoordinatorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.store == nil {
		cfg.store = record.NewMemoryStore()
	}

	if len(cfg.supported) == 0 {
		return nil, fmt.Errorf("freezethaw: %w: no supported strategies configured", ErrUnsupportedStrategy)
	}
	supported := make(map[Strategy]struct{}, len(cfg.supported))
	for _, s := range cfg.supported {
		if !s.Implemented() {
			cfg.logger.Warn("configured strategy is not implemented and will be rejected",
				slog.String("strategy", string(s)))
		}
		supported[s] = struct{}{}
	}
	if _, ok := supported[cfg.defaultStrategy]; !ok {
		return nil, fmt.Errorf("freezethaw: %w: default %q is not in the supported set", ErrUnsupportedStrategy, cfg.defaultStrategy)
	}
	if !cfg.defaultStrategy.Implemented() {
		return nil, fmt.Errorf("freezethaw: %w: default %q is not implemented", ErrUnsupportedStrategy, cfg.defaultStrategy)
	}

	worker, err := ants.NewPool(1,
		ants.WithMaxBlockingTasks(1),
		ants.WithLogger(slog.NewLogLogger(cfg.logger.Handler(), slog.LevelWarn)),
	)
	if err != nil {
		return nil, fmt.Errorf("freezethaw: create checkpoint worker: %w", err)
	}

	c := &Coordinator{
		engine:    eng,
		admin:     client,
		notifier:  notifier,
		cfg:       cfg,
		logger:    cfg.logger.With(slog.String("engine", eng.Name())),
		supported: supported,
		worker:    worker,
	}

	eng.RegisterFreezeHook(c.beforeCheckpoint, cfg.hookPriority)
	eng.RegisterThawHook(c.afterRestore, cfg.hookPriority)

	return c, nil
}

// TriggerCheckpoint asks the engine to checkpoint the process using
// strategy, or the default strategy if strategy is empty. It blocks until
// the freeze hook has finished preparing the process and returns its
// outcome. It does not wait for the snapshot itself or for restore.
//
// Rejections leave no trace: ErrNotSupported when no engine is available,
// ErrUnsupportedStrategy for strategies that are unknown, reserved or not
// configured, and ErrAlreadyInProgress when another trigger is pending or
// a snapshot is still being taken.
//
// If ctx ends first, TriggerCheckpoint returns ErrInterrupted. The
// checkpoint itself carries on.
func (c *Coordinator) TriggerCheckpoint(ctx context.Context, strategy Strategy) error {
	if strategy == "" {
		strategy = c.cfg.defaultStrategy
	}

	if err := c.admit(strategy); err != nil {
		observability.LogTriggerRejected(c.logger, string(strategy), err)
		c.cfg.metrics.RecordTrigger(ctx, string(strategy), observability.OutcomeRejected)
		return err
	}

	if !c.busy.CompareAndSwap(false, true) {
		return c.reject(ctx, strategy, fmt.Errorf("%w: snapshot still in progress", ErrAlreadyInProgress))
	}
	req := newTriggerRequest(strategy)
	if !c.activeTrigger.CompareAndSwap(nil, req) {
		c.busy.Store(false)
		return c.reject(ctx, strategy, ErrAlreadyInProgress)
	}
	// An engine-initiated freeze may already own the phase.
	claimed := c.phase.CompareAndSwap(int32(PhaseIdle), int32(PhaseTriggered))

	engineCtx := context.WithoutCancel(ctx)
	if err := c.worker.Submit(func() { c.runCheckpoint(engineCtx, req, claimed) }); err != nil {
		c.activeTrigger.CompareAndSwap(req, nil)
		if claimed {
			c.phase.CompareAndSwap(int32(PhaseTriggered), int32(PhaseIdle))
		}
		c.busy.Store(false)
		if errors.Is(err, ants.ErrPoolOverload) {
			return c.reject(ctx, strategy, fmt.Errorf("%w: snapshot still in progress", ErrAlreadyInProgress))
		}
		return c.reject(ctx, strategy, err)
	}
	c.cfg.metrics.RecordTrigger(ctx, string(strategy), observability.OutcomeAccepted)

	select {
	case <-req.done:
		if req.err != nil {
			c.cfg.metrics.RecordTrigger(ctx, string(strategy), observability.OutcomeFailed)
			return req.err
		}
		c.cfg.metrics.RecordTrigger(ctx, string(strategy), observability.OutcomeCompleted)
		return nil
	case <-ctx.Done():
		c.cfg.metrics.RecordTrigger(ctx, string(strategy), observability.OutcomeInterrupted)
		return &CoordinationError{
			Op:       "trigger",
			Strategy: strategy,
			Err:      fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx)),
		}
	}
}

// admit validates a trigger without touching any state.
func (c *Coordinator) admit(strategy Strategy) error {
	if !c.engine.Available() {
		return &CoordinationError{Op: "trigger", Strategy: strategy, Err: ErrNotSupported}
	}
	if !strategy.Implemented() {
		return &CoordinationError{Op: "trigger", Strategy: strategy, Err: fmt.Errorf("%w: %q is not implemented", ErrUnsupportedStrategy, strategy)}
	}
	if _, ok := c.supported[strategy]; !ok {
		return &CoordinationError{Op: "trigger", Strategy: strategy, Err: fmt.Errorf("%w: %q is not enabled", ErrUnsupportedStrategy, strategy)}
	}
	return nil
}

func (c *Coordinator) reject(ctx context.Context, strategy Strategy, err error) error {
	err = &CoordinationError{Op: "trigger", Strategy: strategy, Err: err}
	observability.LogTriggerRejected(c.logger, string(strategy), err)
	c.cfg.metrics.RecordTrigger(ctx, string(strategy), observability.OutcomeRejected)
	return err
}

// runCheckpoint invokes the engine on the worker. The freeze hook normally
// claims req and signals it; if the engine returns without doing so the
// request is released here so the trigger slot never leaks. The busy flag
// is dropped before req is signalled so a caller retrying on the error is
// admitted.
func (c *Coordinator) runCheckpoint(ctx context.Context, req *triggerRequest, claimedPhase bool) {
	err := c.invokeEngine(ctx)

	if c.activeTrigger.CompareAndSwap(req, nil) {
		if claimedPhase {
			c.phase.CompareAndSwap(int32(PhaseTriggered), int32(PhaseIdle))
		}
		c.busy.Store(false)
		if err == nil {
			err = fmt.Errorf("%w: engine %s returned without running the freeze hook", ErrProtocolViolation, c.engine.Name())
		}
		req.signal(&CoordinationError{Op: "checkpoint", Strategy: req.strategy, Err: err})
		return
	}
	c.busy.Store(false)
	if err != nil {
		c.logger.Warn("checkpoint engine reported an error",
			slog.String("strategy", string(req.strategy)),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) invokeEngine(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("checkpoint engine panicked: %v", r)
		}
	}()
	return c.engine.Checkpoint(ctx)
}

// CurrentStrategy returns the strategy of the freeze in progress. It is set
// while the freeze hook runs and cleared before the hook returns.
func (c *Coordinator) CurrentStrategy() (Strategy, bool) {
	if s := c.current.Load(); s != nil {
		return *s, true
	}
	return "", false
}

// Phase returns the coordinator's current phase.
func (c *Coordinator) Phase() Phase {
	return Phase(c.phase.Load())
}

// SupportedStrategies returns the configured strategies in sorted order.
func (c *Coordinator) SupportedStrategies() []Strategy {
	out := make([]Strategy, 0, len(c.supported))
	for s := range c.supported {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// DefaultStrategy returns the strategy used when none is named.
func (c *Coordinator) DefaultStrategy() Strategy {
	return c.cfg.defaultStrategy
}

// EngineBusy reports whether a triggered engine checkpoint call is still
// running. While it is, new triggers are refused with ErrAlreadyInProgress.
func (c *Coordinator) EngineBusy() bool {
	return c.busy.Load()
}

// Records returns the checkpoint record store.
func (c *Coordinator) Records() record.Store {
	return c.cfg.store
}

// ReadinessCheck reports the process unready from trigger until restore
// completes, so load balancers stop routing to it while it is frozen.
func (c *Coordinator) ReadinessCheck() healthcheck.Check {
	return func() error {
		if p := c.Phase(); p != PhaseIdle {
			return fmt.Errorf("checkpoint in progress: %s", p)
		}
		return nil
	}
}

// Close stops the checkpoint worker and closes the record store. A parked
// engine call is not interrupted.
func (c *Coordinator) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.worker.Release()
		err = c.cfg.store.Close()
	})
	return err
}
