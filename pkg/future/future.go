// Package future provides single-assignment results that settle exactly once.
//
// A CompletableFuture starts pending and moves to either resolved or rejected.
// Once settled, further calls to Complete or Error are ignored, so a producer
// can settle from any exit path without coordinating with itself.
package future

import (
	"context"
	"sync"

	"github.com/casualjim/weft/pkg/stdx"
)

// CompletableFuture is a Future that can be settled through its Promise half.
type CompletableFuture[T any] interface {
	Future[T]
	Promise[T]
}

// Promise is the producer side of a future.
type Promise[T any] interface {
	Complete(T)
	Error(error)
}

// Future is the consumer side of a future.
type Future[T any] interface {
	// Get blocks until the future settles or ctx is done.
	Get(ctx context.Context) (T, error)
	// Done is closed once the future has settled.
	Done() <-chan struct{}
}

type future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// New returns a pending future.
func New[T any]() CompletableFuture[T] {
	return &future[T]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[T any](v T) CompletableFuture[T] {
	f := New[T]()
	f.Complete(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[T any](err error) CompletableFuture[T] {
	f := New[T]()
	f.Error(err)
	return f
}

func (f *future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return stdx.Zero[T](), ctx.Err()
	}
}

func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *future[T]) Complete(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

func (f *future[T]) Error(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Settled reports whether f has been resolved or rejected.
func Settled[T any](f Future[T]) bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}
