package toolexec

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/casualjim/weft/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func source(events ...provider.StreamEvent) <-chan provider.StreamEvent {
	ch := make(chan provider.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func collect(t *testing.T, ch <-chan provider.StreamEvent) []provider.StreamEvent {
	t.Helper()
	var out []provider.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("merge did not finish")
			return out
		}
	}
}

func next(t *testing.T, ch <-chan provider.StreamEvent) provider.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "stream closed early")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func finishStop() provider.Finish {
	return provider.Finish{FinishReason: provider.FinishReasonStop, Usage: provider.Usage{InputTokens: 3, OutputTokens: 10, TotalTokens: 13}}
}

// blockingTool returns a tool that waits for release before answering.
func blockingTool(release <-chan struct{}) tool.Definition {
	return tool.Must("slow", func(ctx context.Context, in cityInput, _ tool.CallOptions) (string, error) {
		select {
		case <-release:
			return "slow " + in.City, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
}

func TestMergePassthrough(t *testing.T) {
	c := New(Config{})
	events := []provider.StreamEvent{
		provider.ResponseMetadata{ID: "resp-1"},
		provider.TextDelta{Text: "Hello"},
		provider.TextDelta{Text: ", world"},
		finishStop(),
	}
	assert.Equal(t, events, collect(t, c.Merge(context.Background(), source(events...))))
}

func TestMergeToolOrdering(t *testing.T) {
	c := New(Config{Tools: tool.NewSet(weatherTool())})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "weather", Input: `{"city":"Paris"}`}

	got := collect(t, c.Merge(context.Background(), source(call, finishStop())))

	require.Len(t, got, 3)
	assert.Equal(t, call, got[0])
	assert.Equal(t, provider.ToolResult{
		ToolCallID: "c1",
		ToolName:   "weather",
		Input:      map[string]any{"city": "Paris"},
		Output:     "sunny in Paris",
	}, got[1])
	assert.Equal(t, finishStop(), got[2])
}

func TestMergeDelayedToolCompletion(t *testing.T) {
	release := make(chan struct{})
	c := New(Config{Tools: tool.NewSet(blockingTool(release))})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "slow", Input: `{"city":"Oslo"}`}

	out := c.Merge(context.Background(), source(call, provider.TextDelta{Text: "checking"}, finishStop()))

	assert.Equal(t, call, next(t, out))
	assert.Equal(t, provider.TextDelta{Text: "checking"}, next(t, out))

	select {
	case ev := <-out:
		t.Fatalf("finish must be withheld while the tool runs, got %#v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	result := next(t, out)
	require.IsType(t, provider.ToolResult{}, result)
	assert.Equal(t, "slow Oslo", result.(provider.ToolResult).Output)
	assert.Equal(t, finishStop(), next(t, out))

	_, ok := <-out
	assert.False(t, ok)
}

func TestMergeInterleavesResults(t *testing.T) {
	c := New(Config{Tools: tool.NewSet(weatherTool())})
	src := make(chan provider.StreamEvent)
	out := c.Merge(context.Background(), src)

	call := provider.ToolCall{ToolCallID: "c1", ToolName: "weather", Input: `{"city":"Lima"}`}
	src <- call
	assert.Equal(t, call, next(t, out))

	// the result arrives while the source is still open
	result := next(t, out)
	require.IsType(t, provider.ToolResult{}, result)

	src <- provider.TextDelta{Text: "more"}
	assert.Equal(t, provider.TextDelta{Text: "more"}, next(t, out))
	src <- finishStop()
	close(src)
	assert.Equal(t, finishStop(), next(t, out))
}

func TestMergeUnknownTool(t *testing.T) {
	c := New(Config{Tools: tool.NewSet(weatherTool())})
	got := collect(t, c.Merge(context.Background(), source(
		provider.ToolCall{ToolCallID: "c1", ToolName: "nope", Input: `{}`},
		provider.TextDelta{Text: "still here"},
		finishStop(),
	)))

	require.Len(t, got, 3)
	require.IsType(t, provider.Error{}, got[0])
	var nst *provider.NoSuchToolError
	assert.ErrorAs(t, got[0].(provider.Error).Err, &nst)
	assert.Equal(t, provider.TextDelta{Text: "still here"}, got[1])
	assert.Equal(t, finishStop(), got[2])
}

func TestMergeInvalidInput(t *testing.T) {
	c := New(Config{Tools: tool.NewSet(weatherTool())})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "weather", Input: `{"town":"Paris"}`}
	got := collect(t, c.Merge(context.Background(), source(call, finishStop())))

	require.Len(t, got, 3)
	invalid := call
	invalid.Invalid = true
	assert.Equal(t, invalid, got[0])
	require.IsType(t, provider.ToolResult{}, got[1])
	result := got[1].(provider.ToolResult)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Output, "invalid input for tool weather")
	assert.Equal(t, finishStop(), got[2])
}

func TestMergeToolWithoutExecutor(t *testing.T) {
	c := New(Config{Tools: tool.NewSet(tool.Definition{Name: "ask", InputSchema: schema.Any()})})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "ask", Input: `{"question":"why?"}`}
	got := collect(t, c.Merge(context.Background(), source(call, finishStop())))
	assert.Equal(t, []provider.StreamEvent{call, finishStop()}, got)
}

func TestMergeSourceError(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := New(Config{Tools: tool.NewSet(blockingTool(release))})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "slow", Input: `{"city":"Oslo"}`}
	boom := provider.Error{Err: errors.New("connection reset")}

	got := collect(t, c.Merge(context.Background(), source(call, boom, finishStop())))
	assert.Equal(t, []provider.StreamEvent{call, boom}, got)
}

func TestMergeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{Tools: tool.NewSet(blockingTool(make(chan struct{})))})
	src := make(chan provider.StreamEvent)
	out := c.Merge(ctx, src)

	call := provider.ToolCall{ToolCallID: "c1", ToolName: "slow", Input: `{"city":"Oslo"}`}
	src <- call
	assert.Equal(t, call, next(t, out))

	cancel()
	got := collect(t, out)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.IsType(t, provider.Error{}, last)
	err := last.(provider.Error).Err
	var abort *provider.AbortError
	assert.ErrorAs(t, err, &abort)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMergeSourceClosedWithoutFinish(t *testing.T) {
	release := make(chan struct{})
	c := New(Config{Tools: tool.NewSet(blockingTool(release))})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "slow", Input: `{"city":"Oslo"}`}

	out := c.Merge(context.Background(), source(call))
	assert.Equal(t, call, next(t, out))
	close(release)

	got := collect(t, out)
	require.Len(t, got, 1)
	assert.Equal(t, "slow Oslo", got[0].(provider.ToolResult).Output)
}

func TestMergeMultipleTools(t *testing.T) {
	release := make(chan struct{})
	c := New(Config{Tools: tool.NewSet(weatherTool(), blockingTool(release))})

	out := c.Merge(context.Background(), source(
		provider.ToolCall{ToolCallID: "c1", ToolName: "slow", Input: `{"city":"A"}`},
		provider.ToolCall{ToolCallID: "c2", ToolName: "weather", Input: `{"city":"B"}`},
		finishStop(),
	))

	var ids []string
	seen := map[string]bool{}
	for len(ids) < 3 {
		ev := next(t, out)
		switch ev := ev.(type) {
		case provider.ToolCall:
			seen[ev.ToolCallID] = true
			ids = append(ids, "call:"+ev.ToolCallID)
		case provider.ToolResult:
			assert.True(t, seen[ev.ToolCallID], "result before call")
			ids = append(ids, "result:"+ev.ToolCallID)
		default:
			t.Fatalf("unexpected %#v", ev)
		}
	}
	assert.Equal(t, []string{"call:c1", "call:c2", "result:c2"}, ids)

	close(release)
	result := next(t, out)
	assert.Equal(t, "c1", result.(provider.ToolResult).ToolCallID)
	assert.Equal(t, finishStop(), next(t, out))
}

func TestMergePreliminaryResults(t *testing.T) {
	streaming, err := tool.NewStream("progress", func(_ context.Context, in cityInput, _ tool.CallOptions) iter.Seq2[tool.Output, error] {
		return func(yield func(tool.Output, error) bool) {
			if !yield(tool.Output{Value: "locating " + in.City, Preliminary: true}, nil) {
				return
			}
			yield(tool.Output{Value: "found " + in.City}, nil)
		}
	})
	require.NoError(t, err)

	var sunk []provider.ToolResult
	c := New(Config{
		Tools:         tool.NewSet(streaming),
		OnPreliminary: func(r provider.ToolResult) { sunk = append(sunk, r) },
	})
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "progress", Input: `{"city":"Kyiv"}`}

	got := collect(t, c.Merge(context.Background(), source(call, finishStop())))

	require.Len(t, got, 3)
	assert.Equal(t, call, got[0])
	final := got[1].(provider.ToolResult)
	assert.False(t, final.Preliminary)
	assert.Equal(t, "found Kyiv", final.Output)
	assert.Equal(t, finishStop(), got[2])

	require.Len(t, sunk, 1)
	assert.True(t, sunk[0].Preliminary)
	assert.Equal(t, "c1", sunk[0].ToolCallID)
	assert.Equal(t, "locating Kyiv", sunk[0].Output)
}
