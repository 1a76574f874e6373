package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, cfg *Config) *Pool {
	t.Helper()
	p, err := NewPool(t.Name(), cfg)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

// occupy blocks every worker of p until the returned func is called.
func occupy(t *testing.T, p *Pool) func() {
	t.Helper()
	release := make(chan struct{})
	for range p.Cap() {
		started := make(chan struct{})
		require.NoError(t, p.submit(func() {
			close(started)
			<-release
		}))
		<-started
	}
	return func() { close(release) }
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", *DefaultPoolConfig(), true},
		{"zero capacity", Config{Capacity: 0, Nonblocking: true}, false},
		{"negative queue", Config{Capacity: 1, MaxBlockingTasks: -1}, false},
		{"unbounded blocking queue", Config{Capacity: 1}, false},
		{"nonblocking without queue", Config{Capacity: 1, Nonblocking: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPoolConfig)
			}
		})
	}

	p := newTestPool(t, nil)
	assert.Equal(t, 8, p.Cap())
	assert.Equal(t, t.Name(), p.Name())
}

func TestDo(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 2, ExpiryDuration: time.Second, Nonblocking: true})

	errTask := errors.New("task failed")
	assert.ErrorIs(t, p.Do(context.Background(), func(context.Context) error { return errTask }), errTask)
	assert.NoError(t, p.Do(context.Background(), func(context.Context) error { return nil }))

	err := p.Do(context.Background(), func(context.Context) error { panic("boom") })
	assert.ErrorIs(t, err, ErrTaskPanic)

	s := p.Stats()
	assert.EqualValues(t, 3, s.Submitted)
	assert.EqualValues(t, 1, s.Panics)
	assert.Eventually(t, func() bool { return p.Stats().Completed == 3 }, time.Second, 5*time.Millisecond)
}

func TestDoBoundsConcurrency(t *testing.T) {
	const capacity = 3
	p := newTestPool(t, &Config{Capacity: capacity, ExpiryDuration: time.Second, MaxBlockingTasks: 16})

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			}))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(capacity))
	assert.Eventually(t, func() bool { return p.Stats().Completed == 12 }, time.Second, 5*time.Millisecond)
	assert.Greater(t, p.Stats().AvgWaitMs, 0.0)
}

func TestNonblockingOverload(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 1, ExpiryDuration: time.Second, Nonblocking: true})
	release := occupy(t, p)
	defer release()

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolOverload)
	assert.EqualValues(t, 1, p.Stats().Rejected)
}

func TestBlockingQueueFull(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 1, ExpiryDuration: time.Second, MaxBlockingTasks: 1})
	release := occupy(t, p)

	queued := make(chan error, 1)
	go func() { queued <- p.Do(context.Background(), func(context.Context) error { return nil }) }()
	require.Eventually(t, func() bool { return p.Waiting() == 1 }, time.Second, 5*time.Millisecond)

	err := p.Do(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolOverload)

	release()
	assert.NoError(t, <-queued)
}

func TestDoContext(t *testing.T) {
	t.Run("canceled before submit", func(t *testing.T) {
		p := newTestPool(t, &Config{Capacity: 1, ExpiryDuration: time.Second, Nonblocking: true})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Bool
		err := p.Do(ctx, func(context.Context) error { ran.Store(true); return nil })
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran.Load())
		assert.Zero(t, p.Stats().Submitted)
	})

	t.Run("canceled while queued", func(t *testing.T) {
		p := newTestPool(t, &Config{Capacity: 1, ExpiryDuration: time.Second, MaxBlockingTasks: 4})
		release := occupy(t, p)

		ctx, cancel := context.WithCancel(context.Background())
		var ran atomic.Bool
		done := make(chan error, 1)
		go func() { done <- p.Do(ctx, func(context.Context) error { ran.Store(true); return nil }) }()
		require.Eventually(t, func() bool { return p.Waiting() == 1 }, time.Second, 5*time.Millisecond)

		// A blocked submit does not watch ctx; the task is dropped once a
		// worker picks it up.
		cancel()
		release()
		assert.ErrorIs(t, <-done, context.Canceled)
		assert.Eventually(t, func() bool { return p.Stats().Canceled == 1 }, time.Second, 5*time.Millisecond)
		assert.False(t, ran.Load())
	})
}

func TestRelease(t *testing.T) {
	p, err := NewPool("closed", &Config{Capacity: 1, ExpiryDuration: time.Second, Nonblocking: true})
	require.NoError(t, err)
	p.Release()
	p.Release()
	assert.NoError(t, p.ReleaseTimeout(time.Second))

	assert.ErrorIs(t, p.Do(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
}
