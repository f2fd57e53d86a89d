package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
)

// Service is a runtime service owned by a Process.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// BootBarrier runs during boot after STARTING is published and before any
// service starts. Configuration is loaded at this point but no runtime
// service is running, which makes it the point where a reload-based
// checkpoint parks the boot.
type BootBarrier func(ctx context.Context) error

// Publisher publishes lifecycle transitions.
type Publisher interface {
	Publish(s lifecycle.State) error
}

// Sentinel errors for process management.
var (
	// ErrServiceStart indicates a service failed to start during boot.
	ErrServiceStart = errors.New("service failed to start")

	// ErrNotBooted indicates Reload was requested before the first boot.
	ErrNotBooted = errors.New("process has not booted")
)

// Process is an in-process managed process. It implements Client by
// gating request handling (Suspend/Resume) and by stopping and re-booting
// its services (Reload), publishing lifecycle transitions as it goes.
type Process struct {
	publisher Publisher
	services  []Service
	logger    *slog.Logger

	barrier atomic.Pointer[BootBarrier]

	mu        sync.Mutex
	suspended bool
	inflight  int
	drained   chan struct{}
	running   []Service
	booted    bool

	reloading  atomic.Bool
	reloadDone chan struct{}
	reloadErr  error
}

// Compile-time interface check.
var _ Client = (*Process)(nil)

// NewProcess creates a process that publishes transitions on publisher and
// owns services, started in the given order and stopped in reverse.
func NewProcess(publisher Publisher, services ...Service) *Process {
	done := make(chan struct{})
	close(done)
	return &Process{
		publisher:  publisher,
		services:   services,
		logger:     slog.Default(),
		reloadDone: done,
	}
}

// WithLogger sets the logger for the process.
func (p *Process) WithLogger(logger *slog.Logger) *Process {
	p.logger = logger
	return p
}

// SetBootBarrier installs the barrier run on every boot. Nil removes it.
func (p *Process) SetBootBarrier(b BootBarrier) {
	if b == nil {
		p.barrier.Store(nil)
		return
	}
	p.barrier.Store(&b)
}

// Boot publishes STARTING, runs the boot barrier, starts every service and
// publishes RUNNING. If a service fails to start, services already started
// are stopped in reverse order.
func (p *Process) Boot(ctx context.Context) error {
	if err := p.publisher.Publish(lifecycle.Starting); err != nil {
		return fmt.Errorf("publish %s: %w", lifecycle.Starting, err)
	}

	if b := p.barrier.Load(); b != nil {
		if err := (*b)(ctx); err != nil {
			return fmt.Errorf("boot barrier: %w", err)
		}
	}

	started := make([]Service, 0, len(p.services))
	for _, svc := range p.services {
		if err := svc.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				if stopErr := started[i].Stop(ctx); stopErr != nil {
					p.logger.Warn("compensating stop failed",
						slog.String("service", started[i].Name()),
						slog.String("error", stopErr.Error()),
					)
				}
			}
			return fmt.Errorf("%w: %s: %w", ErrServiceStart, svc.Name(), err)
		}
		started = append(started, svc)
	}

	p.mu.Lock()
	p.running = started
	p.booted = true
	p.mu.Unlock()

	if err := p.publisher.Publish(lifecycle.Running); err != nil {
		return fmt.Errorf("publish %s: %w", lifecycle.Running, err)
	}
	return nil
}

// Enter admits a request. It returns ok == false while the process is
// suspended; otherwise release must be called when the request finishes.
func (p *Process) Enter() (release func(), ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.suspended {
		return nil, false
	}
	p.inflight++

	var once sync.Once
	return func() { once.Do(p.exit) }, true
}

func (p *Process) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inflight--
	if p.inflight == 0 && p.drained != nil {
		close(p.drained)
		p.drained = nil
	}
}

// Suspended reports whether request handling is suspended.
func (p *Process) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

// InFlight returns the number of admitted, unreleased requests.
func (p *Process) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// Suspend implements Client.
func (p *Process) Suspend(ctx context.Context, timeout time.Duration) (Result, error) {
	p.mu.Lock()
	p.suspended = true
	var wait chan struct{}
	if p.inflight > 0 {
		if p.drained == nil {
			p.drained = make(chan struct{})
		}
		wait = p.drained
	}
	pending := p.inflight
	p.mu.Unlock()

	if wait == nil {
		p.logger.Info("process suspended")
		return OK(), nil
	}

	p.logger.Info("waiting for in-flight requests",
		slog.Int("in_flight", pending),
	)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-wait:
		p.logger.Info("process suspended")
		return OK(), nil
	case <-expired:
		p.unsuspend()
		return Failed(fmt.Sprintf("timed out after %s waiting for %d in-flight requests", timeout, p.InFlight())), nil
	case <-ctx.Done():
		p.unsuspend()
		return Result{}, ctx.Err()
	}
}

func (p *Process) unsuspend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = false
}

// Resume implements Client.
func (p *Process) Resume(_ context.Context) (Result, error) {
	p.unsuspend()
	p.logger.Info("process resumed")
	return OK(), nil
}

// Reload implements Client. The reload runs on its own goroutine; use
// WaitReload to observe its completion.
func (p *Process) Reload(ctx context.Context) (Result, error) {
	p.mu.Lock()
	booted := p.booted
	p.mu.Unlock()
	if !booted {
		return Failed(ErrNotBooted.Error()), nil
	}

	if !p.reloading.CompareAndSwap(false, true) {
		return Failed("reload already in progress"), nil
	}

	done := make(chan struct{})
	p.mu.Lock()
	p.reloadDone = done
	p.reloadErr = nil
	p.mu.Unlock()

	go p.reload(context.WithoutCancel(ctx), done)

	p.logger.Info("reload initiated")
	return OK(), nil
}

// WaitReload blocks until the most recent reload has finished and returns
// its error.
func (p *Process) WaitReload(ctx context.Context) error {
	p.mu.Lock()
	done := p.reloadDone
	p.mu.Unlock()

	select {
	case <-done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.reloadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) reload(ctx context.Context, done chan struct{}) {
	err := p.restart(ctx)
	if err != nil {
		p.logger.Error("reload failed", slog.String("error", err.Error()))
	}

	p.mu.Lock()
	p.reloadErr = err
	p.mu.Unlock()

	p.reloading.Store(false)
	close(done)
}

func (p *Process) restart(ctx context.Context) error {
	if err := p.publisher.Publish(lifecycle.Stopping); err != nil {
		return fmt.Errorf("publish %s: %w", lifecycle.Stopping, err)
	}

	p.mu.Lock()
	running := p.running
	p.running = nil
	p.mu.Unlock()

	for i := len(running) - 1; i >= 0; i-- {
		if err := running[i].Stop(ctx); err != nil {
			p.logger.Warn("service stop failed",
				slog.String("service", running[i].Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := p.publisher.Publish(lifecycle.Stopped); err != nil {
		return fmt.Errorf("publish %s: %w", lifecycle.Stopped, err)
	}

	return p.Boot(ctx)
}
