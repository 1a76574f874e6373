package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config configures a Pool.
type Config struct {
	// Capacity is the number of tasks that may run at once.
	Capacity int
	// ExpiryDuration is how long an idle worker goroutine is kept.
	ExpiryDuration time.Duration
	// Nonblocking rejects immediately when all workers are busy.
	Nonblocking bool
	// MaxBlockingTasks caps the queue when Nonblocking is false. 0 means
	// unbounded, which Validate rejects for blocking pools.
	MaxBlockingTasks int
}

// DefaultPoolConfig runs 8 tasks and queues up to 64.
func DefaultPoolConfig() *Config {
	return &Config{Capacity: 8, ExpiryDuration: 10 * time.Second, MaxBlockingTasks: 64}
}

// Validate checks c.
func (c *Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidPoolConfig, c.Capacity)
	case c.MaxBlockingTasks < 0:
		return fmt.Errorf("%w: max blocking tasks must not be negative", ErrInvalidPoolConfig)
	case !c.Nonblocking && c.MaxBlockingTasks == 0:
		return fmt.Errorf("%w: a blocking pool needs a bounded queue", ErrInvalidPoolConfig)
	}
	return nil
}

// Stats is a point-in-time view of a Pool.
type Stats struct {
	Name      string  `json:"name"`
	Capacity  int     `json:"capacity"`
	Running   int     `json:"running"`
	Waiting   int     `json:"waiting"`
	Submitted int64   `json:"submitted"`
	Completed int64   `json:"completed"`
	Rejected  int64   `json:"rejected"`
	Canceled  int64   `json:"canceled"`
	Panics    int64   `json:"panics"`
	AvgWaitMs float64 `json:"avg_wait_ms"`
}

// Pool admits tasks up to Capacity running plus MaxBlockingTasks queued and
// rejects the rest with ErrPoolOverload.
type Pool struct {
	name   string
	ants   *ants.Pool
	closed atomic.Bool

	submitted atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	canceled  atomic.Int64
	panics    atomic.Int64
	waitNs    atomic.Int64
}

// NewPool creates a pool. A nil config uses DefaultPoolConfig.
func NewPool(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{name: name}
	ap, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithMaxBlockingTasks(config.MaxBlockingTasks),
		ants.WithPanicHandler(func(r any) {
			logger.Errorw("Worker panic recovered", "pool", name, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create pool %s: %w", name, err)
	}
	p.ants = ap

	logger.Infow("Worker pool created",
		"name", name,
		"capacity", config.Capacity,
		"max_blocking", config.MaxBlockingTasks,
		"nonblocking", config.Nonblocking,
	)
	return p, nil
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Cap returns the number of workers.
func (p *Pool) Cap() int { return p.ants.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.ants.Running() }

// Waiting returns the number of queued tasks.
func (p *Pool) Waiting() int { return p.ants.Waiting() }

func (p *Pool) submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	queued := time.Now()
	err := p.ants.Submit(func() {
		p.started.Add(1)
		p.waitNs.Add(int64(time.Since(queued)))
		defer p.completed.Add(1)
		task()
	})
	switch {
	case err == nil:
		p.submitted.Add(1)
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	}
	return err
}

// Do runs task on a worker and waits for its result. When ctx ends first Do
// returns ctx.Err(); a task still queued at that point is skipped, a task
// already running is expected to observe ctx itself.
func (p *Pool) Do(ctx context.Context, task func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	err := p.submit(func() {
		if ctx.Err() != nil {
			p.canceled.Add(1)
			done <- ctx.Err()
			return
		}
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				logger.Errorw("Task panic recovered", "pool", p.name, "panic", r)
				done <- fmt.Errorf("%w: %v", ErrTaskPanic, r)
			}
		}()
		done <- task(ctx)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release closes the pool without waiting for running tasks.
func (p *Pool) Release() {
	if p.closed.Swap(true) {
		return
	}
	p.ants.Release()
	logger.Infow("Worker pool released", "name", p.name)
}

// ReleaseTimeout closes the pool and waits up to timeout for running tasks.
func (p *Pool) ReleaseTimeout(timeout time.Duration) error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.ants.ReleaseTimeout(timeout)
}

// Stats returns a snapshot.
func (p *Pool) Stats() Stats {
	s := Stats{
		Name:      p.name,
		Capacity:  p.ants.Cap(),
		Running:   p.ants.Running(),
		Waiting:   p.ants.Waiting(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Canceled:  p.canceled.Load(),
		Panics:    p.panics.Load(),
	}
	if n := p.started.Load(); n > 0 {
		s.AvgWaitMs = float64(p.waitNs.Load()) / float64(n) / float64(time.Millisecond)
	}
	return s
}
