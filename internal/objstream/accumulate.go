// Package objstream turns a stream of text deltas into progressively more
// complete structured values.
package objstream

import (
	"errors"
	"strings"

	"github.com/casualjim/weft/internal/partialjson"
	"github.com/casualjim/weft/pkg/future"
	"github.com/casualjim/weft/provider"
	"github.com/google/go-cmp/cmp"
)

var (
	errUnparsable = errors.New("could not parse the response")
	errNoFinish   = errors.New("stream ended without a finish event")
)

// Accumulate re-parses the accumulated text on every delta and emits an
// ObjectDelta followed by a TextDelta whenever the partial value changes.
// Deltas that do not change the value are merged into the next emitted
// TextDelta.
//
// On Finish the full text is validated by strategy and sink is settled with
// the result or a *provider.NoObjectGeneratedError. Finish is forwarded in
// either case. An Error event rejects sink and is forwarded. The returned
// channel closes when src closes; consumers must drain it.
func Accumulate(src <-chan provider.StreamEvent, strategy Strategy, sink future.Promise[any]) <-chan provider.StreamEvent {
	out := make(chan provider.StreamEvent)
	go func() {
		defer close(out)
		a := &accumulator{strategy: strategy, sink: sink}
		for ev := range src {
			for _, emitted := range a.handle(ev) {
				out <- emitted
			}
		}
		a.sink.Error(a.noObject(errNoFinish, provider.Finish{FinishReason: provider.FinishReasonUnknown}))
	}()
	return out
}

type accumulator struct {
	strategy Strategy
	sink     future.Promise[any]

	text      strings.Builder
	delta     string
	latest    any
	published bool
	response  provider.ResponseInfo
}

func (a *accumulator) handle(ev provider.StreamEvent) []provider.StreamEvent {
	switch ev := ev.(type) {
	case provider.TextDelta:
		return a.onDelta(ev.Text)

	case provider.ResponseMetadata:
		a.response.ID = ev.ID
		a.response.Timestamp = ev.Timestamp
		a.response.ModelID = ev.ModelID
		return []provider.StreamEvent{ev}

	case provider.Finish:
		var events []provider.StreamEvent
		if a.delta != "" {
			events = append(events, provider.TextDelta{Text: a.delta})
			a.delta = ""
		}
		a.finish(ev)
		return append(events, ev)

	case provider.Error:
		a.sink.Error(ev.Err)
		return []provider.StreamEvent{ev}

	default:
		return []provider.StreamEvent{ev}
	}
}

func (a *accumulator) onDelta(delta string) []provider.StreamEvent {
	if delta == "" {
		return nil
	}
	a.text.WriteString(delta)
	a.delta += delta

	value, state := partialjson.Parse(a.text.String())
	if state != partialjson.SuccessfulParse && state != partialjson.RepairedParse {
		return nil
	}

	partial, ok := a.strategy.ValidatePartial(value, state == partialjson.SuccessfulParse)
	if !ok {
		return nil
	}
	if a.published && cmp.Equal(partial, a.latest) {
		return nil
	}

	a.latest, a.published = partial, true
	events := []provider.StreamEvent{
		provider.ObjectDelta{Object: partial},
		provider.TextDelta{Text: a.delta},
	}
	a.delta = ""
	return events
}

func (a *accumulator) finish(f provider.Finish) {
	value, state := partialjson.Parse(a.text.String())
	if state != partialjson.SuccessfulParse && state != partialjson.RepairedParse {
		a.sink.Error(a.noObject(errUnparsable, f))
		return
	}

	result, err := a.strategy.ValidateFinal(value)
	if err != nil {
		a.sink.Error(a.noObject(err, f))
		return
	}
	a.sink.Complete(result)
}

func (a *accumulator) noObject(cause error, f provider.Finish) *provider.NoObjectGeneratedError {
	return &provider.NoObjectGeneratedError{
		Text:         a.text.String(),
		Response:     a.response,
		Usage:        f.Usage,
		FinishReason: f.FinishReason,
		Cause:        cause,
	}
}
