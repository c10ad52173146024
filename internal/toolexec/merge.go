package toolexec

import (
	"context"
	"errors"
	"log/slog"

	"github.com/casualjim/weft/provider"
)

type mergeState int

const (
	drainingSource mergeState = iota
	awaitingPendingTools
)

// Merge forwards the events of src and runs every tool call it sees on its
// own goroutine. Tool results are emitted as they settle, preceded by any
// preliminary results of streaming tools. A Finish from the
// source is held back until every pending tool has produced its result, so
// it is always the last event of a successful stream.
//
// An Error from the source is forwarded and ends the stream; tools still
// running finish silently and their results are dropped. Cancelling ctx emits
// an Error wrapping *provider.AbortError and ends the stream.
func (c *Coordinator) Merge(ctx context.Context, src <-chan provider.StreamEvent) <-chan provider.StreamEvent {
	out := make(chan provider.StreamEvent)
	go c.merge(ctx, src, out)
	return out
}

func (c *Coordinator) merge(ctx context.Context, src <-chan provider.StreamEvent, out chan<- provider.StreamEvent) {
	defer close(out)

	done := make(chan struct{})
	defer close(done)
	results := make(chan provider.ToolResult)
	preliminary := make(chan provider.ToolResult)

	var (
		state   = drainingSource
		pending int
		finish  *provider.Finish
	)

	emit := func(ev provider.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			c.abort(ctx, out)
			return false
		}
	}

	dispatch := func(p ParsedCall) {
		pending++
		go func() {
			r := c.run(ctx, p, func(tr provider.ToolResult) {
				select {
				case preliminary <- tr:
				case <-done:
				}
			})
			select {
			case results <- r:
			case <-done:
			}
		}()
	}

	for {
		if state == awaitingPendingTools && pending == 0 {
			if finish != nil {
				emit(*finish)
			}
			return
		}

		var source <-chan provider.StreamEvent
		if state == drainingSource {
			source = src
		}

		select {
		case <-ctx.Done():
			c.abort(ctx, out)
			return

		case r := <-results:
			pending--
			if !emit(r) {
				return
			}

		case r := <-preliminary:
			// intermediate outputs only reach the sink
			if c.onPreliminary != nil {
				c.onPreliminary(r)
			}

		case ev, ok := <-source:
			if !ok {
				// providers close their stream when ctx is cancelled
				if ctx.Err() != nil {
					c.abort(ctx, out)
					return
				}
				state = awaitingPendingTools
				continue
			}

			switch ev := ev.(type) {
			case provider.ToolCall:
				if !c.handleCall(ctx, ev, emit, dispatch) {
					return
				}
			case provider.Finish:
				if pending > 0 {
					finish = &ev
					state = awaitingPendingTools
					continue
				}
				emit(ev)
				return
			case provider.Error:
				if pending > 0 {
					c.log.Debug("dropping pending tool results after stream error", slog.Int("pending", pending))
				}
				emit(ev)
				return
			default:
				if !emit(ev) {
					return
				}
			}
		}
	}
}

func (c *Coordinator) handleCall(ctx context.Context, call provider.ToolCall, emit func(provider.StreamEvent) bool, dispatch func(ParsedCall)) bool {
	parsed, err := c.Parse(ctx, call)
	if err != nil {
		var nst *provider.NoSuchToolError
		if errors.As(err, &nst) {
			return emit(provider.Error{Err: err})
		}
		call.Invalid = true
		return emit(call) && emit(invalidResult(call, err))
	}

	if !emit(parsed.Call) {
		return false
	}
	if parsed.Tool.Executable() {
		dispatch(parsed)
	}
	return true
}

// abort reports the cancellation. The consumer is expected to drain the
// stream until it closes.
func (c *Coordinator) abort(ctx context.Context, out chan<- provider.StreamEvent) {
	out <- provider.Error{Err: &provider.AbortError{Err: ctx.Err()}}
}
