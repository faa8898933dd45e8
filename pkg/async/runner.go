// Package async re-expresses every Collection and Store operation as a
// future resolved on a bounded worker pool. It adds no behavior of its own:
// each call runs the synchronous core operation unchanged.
package async

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/panjf2000/ants/v2"
)

// DefaultPoolSize bounds the number of concurrently running operations
const DefaultPoolSize = 8

// ErrPanic is returned by a future whose operation panicked
var ErrPanic = errors.New("operation panicked")

// Runner executes operations on an ants worker pool
type Runner struct {
	pool   *ants.Pool
	logger *log.Logger
}

// NewRunner creates a runner with at most size concurrent operations
func NewRunner(size int, logger *log.Logger) (*Runner, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = log.Default()
	}

	r := &Runner{logger: logger}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		r.logger.Printf("ERROR: async worker panic: %v", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// Running returns the number of operations currently executing
func (r *Runner) Running() int {
	return r.pool.Running()
}

// Close waits up to timeout for running operations, then releases the pool.
// Operations submitted afterwards resolve with an error.
func (r *Runner) Close(timeout time.Duration) error {
	return r.pool.ReleaseTimeout(timeout)
}

// Future is the deferred result of one operation
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done is closed once the result is available
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the result is available or ctx is done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// Go runs fn on the runner's pool and returns its future
func Go[T any](r *Runner, fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	task := func() {
		var (
			val T
			err error
		)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Printf("ERROR: async operation panic: %v", p)
				var zero T
				val, err = zero, fmt.Errorf("%w: %v", ErrPanic, p)
			}
			f.resolve(val, err)
		}()
		val, err = fn()
	}

	if err := r.pool.Submit(task); err != nil {
		var zero T
		f.resolve(zero, fmt.Errorf("failed to submit operation: %w", err))
	}
	return f
}

// done adapts an error-only operation to a future
func done(r *Runner, fn func() error) *Future[struct{}] {
	return Go(r, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}
