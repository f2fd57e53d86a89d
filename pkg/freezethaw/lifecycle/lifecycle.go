// Package lifecycle publishes process lifecycle transitions to listeners.
//
// A Notifier is a shared, general-purpose channel: listeners see every
// transition published after they were added, in the order the transitions
// happened, and must tolerate transitions they are not interested in.
package lifecycle

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is a process lifecycle state.
type State string

// Lifecycle states.
const (
	Starting State = "STARTING"
	Running  State = "RUNNING"
	Stopping State = "STOPPING"
	Stopped  State = "STOPPED"
)

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// Listener receives the new state after each transition.
// It may be called on an arbitrary goroutine and must not block.
type Listener func(newState State)

// ListenerID identifies a registered listener for removal.
type ListenerID int64

// Notifier publishes lifecycle transitions.
type Notifier interface {
	// AddListener registers a listener and returns its ID.
	AddListener(l Listener) ListenerID

	// RemoveListener unregisters a listener. Unknown IDs are ignored.
	RemoveListener(id ListenerID)
}

// ErrClosed is returned when publishing on a closed Broadcaster.
var ErrClosed = errors.New("lifecycle notifier closed")

// BroadcasterConfig configures delivery.
type BroadcasterConfig struct {
	// Async delivers transitions on a single background goroutine instead of
	// the publishing goroutine. Order is preserved either way.
	// Default: false
	Async bool

	// BufferSize is the pending-transition buffer in async mode.
	// Default: 64
	BufferSize int
}

// DefaultBroadcasterConfig provides reasonable defaults.
var DefaultBroadcasterConfig = BroadcasterConfig{
	BufferSize: 64,
}

// Broadcaster is the in-process Notifier implementation.
type Broadcaster struct {
	config BroadcasterConfig
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[ListenerID]Listener
	current   State

	// deliverMu serializes synchronous deliveries so concurrent publishers
	// cannot interleave one transition's fan-out with another's.
	deliverMu sync.Mutex

	// sendMu orders async sends before Close: publishers hold it shared
	// across the closed check and the send, Close takes it exclusively.
	sendMu  sync.RWMutex
	queue   chan State
	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
	doneCh  chan struct{}
}

// Compile-time interface check.
var _ Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(config BroadcasterConfig) *Broadcaster {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBroadcasterConfig.BufferSize
	}

	b := &Broadcaster{
		config:    config,
		logger:    slog.Default(),
		listeners: make(map[ListenerID]Listener),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	if config.Async {
		b.queue = make(chan State, config.BufferSize)
		go b.deliverLoop()
	} else {
		close(b.doneCh)
	}

	return b
}

// WithLogger sets the logger for the broadcaster.
func (b *Broadcaster) WithLogger(logger *slog.Logger) *Broadcaster {
	b.logger = logger
	return b
}

// AddListener implements Notifier.
func (b *Broadcaster) AddListener(l Listener) ListenerID {
	id := ListenerID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[id] = l
	return id
}

// RemoveListener implements Notifier.
func (b *Broadcaster) RemoveListener(id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// Current returns the most recently published state, or "" if none.
func (b *Broadcaster) Current() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Listeners returns the number of registered listeners.
func (b *Broadcaster) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish records a transition and delivers it to all listeners.
func (b *Broadcaster) Publish(s State) error {
	if b.closed.Load() {
		return ErrClosed
	}

	if !b.config.Async {
		b.deliverMu.Lock()
		defer b.deliverMu.Unlock()
		b.deliver(s)
		return nil
	}

	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.closed.Load() {
		return ErrClosed
	}
	b.queue <- s
	return nil
}

// Close stops delivery. Every transition accepted by Publish is delivered
// before Close returns.
func (b *Broadcaster) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.sendMu.Lock()
	close(b.closeCh)
	b.sendMu.Unlock()
	<-b.doneCh
	return nil
}

func (b *Broadcaster) deliverLoop() {
	defer close(b.doneCh)
	for {
		select {
		case s := <-b.queue:
			b.deliver(s)
		case <-b.closeCh:
			for {
				select {
				case s := <-b.queue:
					b.deliver(s)
				default:
					return
				}
			}
		}
	}
}

func (b *Broadcaster) deliver(s State) {
	b.mu.Lock()
	b.current = s
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	b.logger.Debug("lifecycle transition",
		slog.String("state", s.String()),
		slog.Int("listeners", len(listeners)),
	)

	for _, l := range listeners {
		b.safeCall(l, s)
	}
}

// safeCall isolates the broadcaster from a panicking listener.
func (b *Broadcaster) safeCall(l Listener, s State) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("lifecycle listener panicked",
				slog.String("state", s.String()),
				slog.Any("panic", r),
			)
		}
	}()
	l(s)
}
