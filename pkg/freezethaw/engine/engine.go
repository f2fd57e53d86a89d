// Package engine abstracts the native facility that freezes a process into
// a snapshot and later restores it.
//
// Adapters invoke registered freeze hooks synchronously, immediately before
// taking the snapshot, and thaw hooks immediately after restoring, possibly
// in a new process. Which adapter is usable is decided once at startup with
// Select.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Hook is a freeze or thaw callback.
type Hook func(ctx context.Context) error

// Adapter wraps a checkpoint facility.
type Adapter interface {
	// Name identifies the adapter in logs.
	Name() string

	// Available reports whether the underlying facility is present and enabled.
	Available() bool

	// RegisterFreezeHook adds a hook run before the snapshot. Lower
	// priorities run first.
	RegisterFreezeHook(h Hook, priority int)

	// RegisterThawHook adds a hook run after restore. Higher priorities run
	// first, so a component frozen early is thawed late.
	RegisterThawHook(h Hook, priority int)

	// Checkpoint runs the freeze hooks, takes the snapshot and returns once
	// execution continues, either in place or in a restored process.
	Checkpoint(ctx context.Context) error
}

// Sentinel errors for checkpoint engines.
var (
	// ErrUnavailable indicates no checkpoint facility is available.
	ErrUnavailable = errors.New("checkpoint engine unavailable")

	// ErrClosed indicates the engine has been shut down.
	ErrClosed = errors.New("checkpoint engine closed")
)

type registeredHook struct {
	hook     Hook
	priority int
	seq      int
}

// hooks keeps freeze and thaw hooks in registration order per priority.
type hooks struct {
	mu     sync.Mutex
	freeze []registeredHook
	thaw   []registeredHook
	seq    int
}

func (h *hooks) addFreeze(hook Hook, priority int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.freeze = append(h.freeze, registeredHook{hook: hook, priority: priority, seq: h.seq})
}

func (h *hooks) addThaw(hook Hook, priority int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.thaw = append(h.thaw, registeredHook{hook: hook, priority: priority, seq: h.seq})
}

// freezeOrder returns freeze hooks, ascending priority.
func (h *hooks) freezeOrder() []Hook {
	h.mu.Lock()
	list := append([]registeredHook(nil), h.freeze...)
	h.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].priority < list[j].priority
	})
	return unwrap(list)
}

// thawOrder returns thaw hooks, descending priority.
func (h *hooks) thawOrder() []Hook {
	h.mu.Lock()
	list := append([]registeredHook(nil), h.thaw...)
	h.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].seq > list[j].seq
	})
	return unwrap(list)
}

func unwrap(list []registeredHook) []Hook {
	out := make([]Hook, len(list))
	for i, r := range list {
		out[i] = r.hook
	}
	return out
}

// runHooks runs every hook and joins their errors.
func runHooks(ctx context.Context, list []Hook) error {
	var errs []error
	for _, h := range list {
		if err := h(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop is the adapter used when no checkpoint facility is available.
// Hooks are accepted and never run.
type Noop struct{}

// Compile-time interface check.
var _ Adapter = Noop{}

// Name implements Adapter.
func (Noop) Name() string { return "noop" }

// Available implements Adapter.
func (Noop) Available() bool { return false }

// RegisterFreezeHook implements Adapter.
func (Noop) RegisterFreezeHook(Hook, int) {}

// RegisterThawHook implements Adapter.
func (Noop) RegisterThawHook(Hook, int) {}

// Checkpoint implements Adapter.
func (Noop) Checkpoint(context.Context) error { return ErrUnavailable }

// Select returns the first available candidate, in priority order, or Noop
// if none is available.
func Select(logger *slog.Logger, candidates ...Adapter) Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if c.Available() {
			logger.Info("checkpoint engine selected", slog.String("engine", c.Name()))
			return c
		}
		logger.Debug("checkpoint engine unavailable", slog.String("engine", c.Name()))
	}
	logger.Info("no checkpoint engine available, checkpointing disabled")
	return Noop{}
}
