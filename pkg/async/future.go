package async

import (
	"context"
	"sync"
	"time"
)

// Future represents the result of an asynchronous computation.
type Future[T any] struct {
	value T
	err   error
	once  sync.Once
	done  chan struct{}
}

// NewFuture creates an unresolved future. Use Complete to resolve it, for
// example from inside a callback:
//
//	f := async.NewFuture[scheduler.Result]()
//	sched.Get(endpoint, token, func(res scheduler.Result) {
//		f.Complete(res, res.Err)
//	})
//	res, err := f.AwaitWithTimeout(5 * time.Second)
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete resolves the future. Only the first call has any effect;
// subsequent calls are ignored.
func (f *Future[T]) Complete(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Await blocks until the future resolves and returns its result.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.value, f.err
}

// AwaitWithTimeout waits for the future to resolve with a timeout.
// If the timeout occurs before completion, returns ErrTimeout.
func (f *Future[T]) AwaitWithTimeout(timeout time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}
}

// AwaitContext waits for the future to resolve or the context to end,
// whichever comes first.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// IsComplete checks whether the future has resolved without blocking.
func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Async executes fn in a new goroutine and returns a future for its result.
// A context already cancelled at call time resolves the future immediately
// without invoking fn.
func Async[P, T any](ctx context.Context, param P, fn func(context.Context, P) (T, error)) *Future[T] {
	f := NewFuture[T]()

	go func() {
		select {
		case <-ctx.Done():
			var zero T
			f.Complete(zero, ctx.Err())
			return
		default:
		}

		v, err := fn(ctx, param)
		f.Complete(v, err)
	}()

	return f
}

// WaitAll waits for every future to resolve and returns their values in
// order. The first error encountered is returned alongside the partial
// results.
func WaitAll[T any](futures ...*Future[T]) ([]T, error) {
	values := make([]T, len(futures))
	var firstErr error
	for i, f := range futures {
		v, err := f.Await()
		values[i] = v
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return values, firstErr
}

// WaitAny waits for the first future to resolve and returns its index,
// value, and error.
func WaitAny[T any](futures ...*Future[T]) (int, T, error) {
	if len(futures) == 0 {
		var zero T
		return -1, zero, ErrNoFutures
	}

	type completion struct {
		index int
		value T
		err   error
	}

	done := make(chan completion, 1)
	for i, f := range futures {
		go func(index int, f *Future[T]) {
			v, err := f.Await()
			select {
			case done <- completion{index, v, err}:
			default:
				// Another future already won.
			}
		}(i, f)
	}

	res := <-done
	return res.index, res.value, res.err
}
