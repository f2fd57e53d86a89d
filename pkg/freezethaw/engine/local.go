package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/persist"
)

var (
	// ErrNothingFrozen is returned by Restore when no snapshot is waiting.
	ErrNothingFrozen = errors.New("no frozen snapshot to restore")

	// ErrBusy is returned by Checkpoint while another checkpoint is running
	// or awaiting restore.
	ErrBusy = errors.New("checkpoint already running")
)

// Snapshot describes one snapshot taken by a Local engine.
type Snapshot struct {
	ID          string    `json:"id"`
	TakenAt     time.Time `json:"taken_at"`
	RestoredAt  time.Time `json:"restored_at,omitzero"`
	FreezeError string    `json:"freeze_error,omitempty"`
}

// frozenImage is a snapshot whose Checkpoint call is parked until Restore.
type frozenImage struct {
	index int
	done  chan error
}

// Local is an in-process engine. It does not capture process memory; the
// goroutine running Checkpoint parks after the freeze hooks, standing in for
// the frozen image, and continues when Restore is called.
type Local struct {
	hooks  hooks
	logger *slog.Logger
	sink   persist.PropertySink

	enabled     bool
	autoRestore bool

	mu              sync.Mutex
	snapshots       []Snapshot
	busy            bool
	frozen          *frozenImage
	envOverrideFile string

	closeOnce sync.Once
	closeCh   chan struct{}
}

// Compile-time interface check.
var _ Adapter = (*Local)(nil)

// LocalOption configures a Local engine.
type LocalOption func(*Local)

// WithAutoRestore restores immediately after every snapshot, as if the
// image were resumed in place.
func WithAutoRestore() LocalOption {
	return func(l *Local) {
		l.autoRestore = true
	}
}

// WithEnabled sets whether the engine reports itself available.
// Default: true
func WithEnabled(enabled bool) LocalOption {
	return func(l *Local) {
		l.enabled = enabled
	}
}

// WithPropertySink sets where environment overrides are applied on restore.
// Default: persist.EnvSink
func WithPropertySink(sink persist.PropertySink) LocalOption {
	return func(l *Local) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocal creates a Local engine.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		logger:  slog.Default(),
		sink:    persist.EnvSink{},
		enabled: true,
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name implements Adapter.
func (l *Local) Name() string { return "local" }

// Available implements Adapter.
func (l *Local) Available() bool { return l.enabled }

// RegisterFreezeHook implements Adapter.
func (l *Local) RegisterFreezeHook(h Hook, priority int) {
	l.hooks.addFreeze(h, priority)
}

// RegisterThawHook implements Adapter.
func (l *Local) RegisterThawHook(h Hook, priority int) {
	l.hooks.addThaw(h, priority)
}

// SetEnvOverrideFile registers a key=value file applied to the environment
// on restore, before any thaw hook runs.
func (l *Local) SetEnvOverrideFile(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.envOverrideFile = path
}

// Checkpoint implements Adapter. Freeze hook failures do not prevent the
// snapshot; they are recorded on it and returned together with any restore
// error.
func (l *Local) Checkpoint(ctx context.Context) error {
	if !l.enabled {
		return ErrUnavailable
	}
	select {
	case <-l.closeCh:
		return ErrClosed
	default:
	}

	l.mu.Lock()
	if l.busy {
		l.mu.Unlock()
		return ErrBusy
	}
	l.busy = true
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.busy = false
		l.mu.Unlock()
	}()

	freezeErr := runHooks(ctx, l.hooks.freezeOrder())

	snap := Snapshot{
		ID:      uuid.NewString(),
		TakenAt: time.Now().UTC(),
	}
	if freezeErr != nil {
		snap.FreezeError = freezeErr.Error()
		l.logger.Warn("freeze hooks failed, taking snapshot anyway",
			slog.String("snapshot_id", snap.ID),
			slog.String("error", freezeErr.Error()),
		)
	}

	l.mu.Lock()
	l.snapshots = append(l.snapshots, snap)
	image := &frozenImage{index: len(l.snapshots) - 1, done: make(chan error, 1)}
	if !l.autoRestore {
		l.frozen = image
	}
	l.mu.Unlock()

	l.logger.Info("snapshot taken", slog.String("snapshot_id", snap.ID))

	if l.autoRestore {
		return errors.Join(freezeErr, l.restore(ctx, image))
	}

	select {
	case err := <-image.done:
		return errors.Join(freezeErr, err)
	case <-l.closeCh:
		return ErrClosed
	}
}

// Restore resumes the parked snapshot: it applies the environment override
// file, runs the thaw hooks and lets the parked Checkpoint call return.
func (l *Local) Restore(ctx context.Context) error {
	l.mu.Lock()
	image := l.frozen
	l.frozen = nil
	l.mu.Unlock()

	if image == nil {
		return ErrNothingFrozen
	}

	err := l.restore(ctx, image)
	image.done <- err
	return err
}

func (l *Local) restore(ctx context.Context, image *frozenImage) error {
	l.mu.Lock()
	path := l.envOverrideFile
	l.snapshots[image.index].RestoredAt = time.Now().UTC()
	id := l.snapshots[image.index].ID
	l.mu.Unlock()

	overrides, err := persist.LoadOverrides(path)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", id, err)
	}
	if err := overrides.Apply(l.sink); err != nil {
		return fmt.Errorf("snapshot %s: apply env overrides: %w", id, err)
	}

	l.logger.Info("snapshot restored",
		slog.String("snapshot_id", id),
		slog.Int("env_overrides", len(overrides)),
	)

	return runHooks(ctx, l.hooks.thawOrder())
}

// Frozen reports whether a snapshot is waiting for Restore.
func (l *Local) Frozen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frozen != nil
}

// Snapshots returns all snapshots taken so far, oldest first.
func (l *Local) Snapshots() []Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Snapshot, len(l.snapshots))
	copy(out, l.snapshots)
	return out
}

// Close releases a parked Checkpoint call with ErrClosed.
func (l *Local) Close() error {
	l.closeOnce.Do(func() { close(l.closeCh) })
	return nil
}
