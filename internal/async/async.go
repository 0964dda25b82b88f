// Package async runs blocking capability calls so that callers can stop waiting
// as soon as their context is done, whether or not the callee honours it.
package async

import (
	"context"
	"time"
)

// Result carries the outcome of a call started with Go.
type Result[T any] struct {
	Value T
	Err   error
}

// Go starts fn in its own goroutine. The channel is buffered so an abandoned
// call never blocks when it finally returns.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// Await returns the call's result, or ctx.Err() if ctx is done first.
func Await[T any](ctx context.Context, ch <-chan Result[T]) (T, error) {
	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Call runs fn under an optional timeout and waits for it with Await.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return Await(ctx, Go(ctx, fn))
}
