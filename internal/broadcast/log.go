// Package broadcast fans one stream of values out to any number of readers.
//
// Values are kept in an append-only log and every reader walks the log with
// its own cursor, so a slow reader never holds up the writer or another
// reader. Readers that start late still see every value from the beginning.
package broadcast

import (
	"context"
	"iter"
	"sync"

	"github.com/casualjim/weft/pkg/stdx"
)

// Log is an append-only, closable sequence of values.
type Log[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	notify chan struct{}
}

func New[T any]() *Log[T] {
	return &Log[T]{notify: make(chan struct{})}
}

// Append adds v to the log and wakes up waiting readers.
// Values appended after Close are dropped.
func (l *Log[T]) Append(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.items = append(l.items, v)
	close(l.notify)
	l.notify = make(chan struct{})
}

// Close marks the end of the log. Readers finish after the last value.
func (l *Log[T]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.notify)
}

// Len returns the number of values appended so far.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Closed reports whether Close was called.
func (l *Log[T]) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Seq returns a reader over the whole log. Iteration blocks until new
// values arrive and ends when the log is closed.
func (l *Log[T]) Seq() iter.Seq[T] {
	return l.SeqContext(context.Background())
}

// SeqContext is like Seq but also ends when ctx is done.
func (l *Log[T]) SeqContext(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; ; i++ {
			v, ok := l.at(ctx, i)
			if !ok || !yield(v) {
				return
			}
		}
	}
}

func (l *Log[T]) at(ctx context.Context, i int) (T, bool) {
	for {
		l.mu.Lock()
		if i < len(l.items) {
			v := l.items[i]
			l.mu.Unlock()
			return v, true
		}
		if l.closed {
			l.mu.Unlock()
			return stdx.Zero[T](), false
		}
		wait := l.notify
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return stdx.Zero[T](), false
		}
	}
}
