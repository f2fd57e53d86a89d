package lifecycle_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/freezethaw/pkg/freezethaw/lifecycle"
)

// recorder collects delivered states.
type recorder struct {
	mu     sync.Mutex
	states []lifecycle.State
}

func (r *recorder) listen(s lifecycle.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) snapshot() []lifecycle.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]lifecycle.State, len(r.states))
	copy(out, r.states)
	return out
}

func TestBroadcaster_SyncDeliveryOrder(t *testing.T) {
	b := lifecycle.NewBroadcaster(lifecycle.DefaultBroadcasterConfig)
	defer b.Close()

	rec := &recorder{}
	b.AddListener(rec.listen)

	for _, s := range []lifecycle.State{lifecycle.Stopping, lifecycle.Stopped, lifecycle.Starting, lifecycle.Running} {
		require.NoError(t, b.Publish(s))
	}

	assert.Equal(t, []lifecycle.State{
		lifecycle.Stopping, lifecycle.Stopped, lifecycle.Starting, lifecycle.Running,
	}, rec.snapshot())
	assert.Equal(t, lifecycle.Running, b.Current())
}

func TestBroadcaster_AsyncDeliveryOrder(t *testing.T) {
	b := lifecycle.NewBroadcaster(lifecycle.BroadcasterConfig{Async: true, BufferSize: 4})

	rec := &recorder{}
	b.AddListener(rec.listen)

	want := []lifecycle.State{lifecycle.Stopping, lifecycle.Stopped, lifecycle.Starting, lifecycle.Running}
	for _, s := range want {
		require.NoError(t, b.Publish(s))
	}

	// Close drains pending transitions.
	require.NoError(t, b.Close())
	assert.Equal(t, want, rec.snapshot())
}

func TestBroadcaster_RemoveListener(t *testing.T) {
	b := lifecycle.NewBroadcaster(lifecycle.DefaultBroadcasterConfig)
	defer b.Close()

	rec := &recorder{}
	id := b.AddListener(rec.listen)
	require.Equal(t, 1, b.Listeners())

	require.NoError(t, b.Publish(lifecycle.Starting))
	b.RemoveListener(id)
	require.NoError(t, b.Publish(lifecycle.Running))

	assert.Equal(t, []lifecycle.State{lifecycle.Starting}, rec.snapshot())
	assert.Equal(t, 0, b.Listeners())

	// Unknown IDs are ignored.
	assert.NotPanics(t, func() { b.RemoveListener(id + 100) })
}

func TestBroadcaster_ListenerPanicIsolated(t *testing.T) {
	b := lifecycle.NewBroadcaster(lifecycle.DefaultBroadcasterConfig)
	defer b.Close()

	rec := &recorder{}
	b.AddListener(func(lifecycle.State) { panic("boom") })
	b.AddListener(rec.listen)

	require.NoError(t, b.Publish(lifecycle.Stopping))
	assert.Equal(t, []lifecycle.State{lifecycle.Stopping}, rec.snapshot())
}

func TestBroadcaster_ListenerMayRemoveItself(t *testing.T) {
	b := lifecycle.NewBroadcaster(lifecycle.DefaultBroadcasterConfig)
	defer b.Close()

	var id lifecycle.ListenerID
	calls := 0
	id = b.AddListener(func(lifecycle.State) {
		calls++
		b.RemoveListener(id)
	})

	require.NoError(t, b.Publish(lifecycle.Starting))
	require.NoError(t, b.Publish(lifecycle.Running))
	assert.Equal(t, 1, calls)
}

func TestBroadcaster_PublishAfterClose(t *testing.T) {
	for _, async := range []bool{false, true} {
		b := lifecycle.NewBroadcaster(lifecycle.BroadcasterConfig{Async: async})
		require.NoError(t, b.Close())
		require.NoError(t, b.Close(), "close is idempotent")
		assert.ErrorIs(t, b.Publish(lifecycle.Running), lifecycle.ErrClosed)
	}
}

func TestBroadcaster_ConcurrentPublishers(t *testing.T) {
	b := lifecycle.NewBroadcaster(lifecycle.BroadcasterConfig{Async: true})

	var count int64
	var mu sync.Mutex
	b.AddListener(func(lifecycle.State) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	const publishers = 20
	var wg sync.WaitGroup
	wg.Add(publishers)
	for i := 0; i < publishers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = b.Publish(lifecycle.Running)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, b.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == publishers*10
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcaster_CloseRacingPublishers(t *testing.T) {
	for range 50 {
		b := lifecycle.NewBroadcaster(lifecycle.BroadcasterConfig{Async: true, BufferSize: 4})

		var delivered atomic.Int64
		b.AddListener(func(lifecycle.State) { delivered.Add(1) })

		const publishers = 8
		var accepted atomic.Int64
		var wg sync.WaitGroup
		wg.Add(publishers)
		for range publishers {
			go func() {
				defer wg.Done()
				for range 20 {
					if b.Publish(lifecycle.Running) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		require.NoError(t, b.Close())
		wg.Wait()

		assert.Equal(t, accepted.Load(), delivered.Load(), "every accepted transition is delivered before Close returns")
	}
}
