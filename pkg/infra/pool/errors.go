// Package pool bounds how many tasks run at once and how many may queue,
// on top of an ants goroutine pool.
package pool

import "errors"

var (
	// ErrPoolClosed is returned after Release.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolOverload means every worker is busy and the queue is full.
	ErrPoolOverload = errors.New("pool is overloaded")

	// ErrInvalidPoolConfig wraps configuration errors from NewPool.
	ErrInvalidPoolConfig = errors.New("invalid pool config")

	// ErrTaskPanic is returned by Do when the task panicked.
	ErrTaskPanic = errors.New("task panicked")
)
