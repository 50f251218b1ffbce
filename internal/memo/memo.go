// Package memo provides a lazily-initialized, single-flight future for
// expensive computations owned by a single object.
package memo

import (
	"context"
	"fmt"
	"sync"
)

// Func computes the value held by a Future.
type Func[T any] func(ctx context.Context) (T, error)

// Future runs its computation at most once. Every caller, including callers
// that arrive while the computation is still in flight, observes the same
// value or the same error. There is no invalidation.
type Future[T any] struct {
	fn   Func[T]
	life context.Context
	once sync.Once
	done chan struct{}

	val T
	err error
}

// New returns a Future that will run fn on first use. Canceling life aborts
// an in-flight computation; a nil life never cancels.
func New[T any](life context.Context, fn Func[T]) *Future[T] {
	if life == nil {
		life = context.Background()
	}
	return &Future[T]{
		fn:   fn,
		life: life,
		done: make(chan struct{}),
	}
}

// Get starts the computation if needed and waits for its outcome. The
// computation keeps the values of the first caller's ctx but is canceled
// only through the owner's lifetime, so one caller giving up cannot poison
// the result for everyone else. ctx only bounds this caller's wait.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	f.once.Do(func() {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stop := context.AfterFunc(f.life, cancel)
		go func() {
			defer cancel()
			defer stop()
			f.run(runCtx)
		}()
	})
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("memo wait: %w", ctx.Err())
	}
}

// Settled reports whether the computation has finished.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *Future[T]) run(ctx context.Context) {
	defer close(f.done)
	defer func() {
		if r := recover(); r != nil {
			f.err = fmt.Errorf("memo computation panicked: %v", r)
		}
	}()
	f.val, f.err = f.fn(ctx)
}
