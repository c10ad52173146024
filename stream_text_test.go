package weft

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/provider/mock"
	"github.com/casualjim/weft/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type weatherInput struct {
	City string `json:"city"`
}

func weatherTool() tool.Definition {
	return tool.Must("weather",
		func(_ context.Context, in weatherInput, _ tool.CallOptions) (string, error) {
			return "sunny in " + in.City, nil
		},
		tool.Description("Get the weather in a city"),
	)
}

func weatherCall(id, city string) provider.ToolCall {
	return provider.ToolCall{ToolCallID: id, ToolName: "weather", Input: fmt.Sprintf(`{"city":%q}`, city)}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func eventTypes(events []provider.StreamEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = fmt.Sprintf("%T", ev)
	}
	return out
}

func fullStream(r *StreamTextResult) []provider.StreamEvent {
	var out []provider.StreamEvent
	for ev := range r.FullStream() {
		out = append(out, ev)
	}
	return out
}

func TestStreamTextFanOut(t *testing.T) {
	ctx := testContext(t)
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{
		mock.TextChunks("Hello", ", ", "world"),
	}}

	res := StreamText(ctx, m, WithPrompt("Say hello"))

	var (
		wg    sync.WaitGroup
		texts [3]string
	)
	for i := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var sb strings.Builder
			for chunk := range res.TextStream() {
				sb.WriteString(chunk)
			}
			texts[i] = sb.String()
		}()
	}
	wg.Wait()

	for _, text := range texts {
		assert.Equal(t, "Hello, world", text)
	}

	// a late reader still replays everything
	events := fullStream(res)
	assert.Equal(t, []string{
		"provider.StepStart",
		"provider.ResponseMetadata",
		"provider.TextDelta",
		"provider.TextDelta",
		"provider.TextDelta",
		"provider.StepFinish",
		"provider.Finish",
	}, eventTypes(events))
	assert.Equal(t, provider.Finish{FinishReason: provider.FinishReasonStop, Usage: mock.DefaultUsage}, events[len(events)-1])

	text, err := res.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)

	reason, err := res.FinishReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, provider.FinishReasonStop, reason)

	resp, err := res.Response(ctx)
	require.NoError(t, err)
	assert.Equal(t, "resp-text", resp.ID)
	assert.Equal(t, "true", resp.Headers["x-mock"])

	require.NoError(t, res.Consume(ctx))
	assert.Len(t, m.StreamCalls(), 1, "the provider is called once regardless of the number of readers")
}

func TestStreamTextPrompt(t *testing.T) {
	ctx := testContext(t)
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{mock.TextChunks("ok")}}

	res := StreamText(ctx, m,
		WithSystem("You are terse"),
		WithPrompt("hi"),
		WithTemperature(0.2),
		WithMaxOutputTokens(64),
		WithStopSequences("END"),
	)
	require.NoError(t, res.Consume(ctx))

	calls := m.StreamCalls()
	require.Len(t, calls, 1)
	call := calls[0]
	require.Len(t, call.Prompt, 2)
	assert.Equal(t, provider.RoleSystem, call.Prompt[0].Role)
	assert.Equal(t, "hi", call.Prompt[1].Text())
	require.NotNil(t, call.Temperature)
	assert.InDelta(t, 0.2, *call.Temperature, 1e-9)
	assert.Equal(t, int64(64), call.MaxOutputTokens)
	assert.Equal(t, []string{"END"}, call.StopSequences)
	assert.Empty(t, call.Tools)
}

func TestStreamTextTools(t *testing.T) {
	ctx := testContext(t)
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{
		mock.ToolCalls(weatherCall("call-1", "Paris")),
		mock.TextChunks("It is sunny in Paris"),
	}}

	var stepFinishes []StepResult
	var finished FinishEvent
	res := StreamText(ctx, m,
		WithPrompt("What's the weather in Paris?"),
		WithTools(weatherTool()),
		WithMaxSteps(3),
		OnStepFinish(func(s StepResult) { stepFinishes = append(stepFinishes, s) }),
		OnFinish(func(e FinishEvent) { finished = e }),
	)

	events := fullStream(res)
	assert.Equal(t, []string{
		"provider.StepStart",
		"provider.ResponseMetadata",
		"provider.ToolCall",
		"provider.ToolResult",
		"provider.StepFinish",
		"provider.StepStart",
		"provider.ResponseMetadata",
		"provider.TextDelta",
		"provider.StepFinish",
		"provider.Finish",
	}, eventTypes(events))

	assert.Equal(t, provider.ToolResult{
		ToolCallID: "call-1",
		ToolName:   "weather",
		Input:      map[string]any{"city": "Paris"},
		Output:     "sunny in Paris",
	}, events[3])
	assert.True(t, events[4].(provider.StepFinish).IsContinued)
	assert.False(t, events[8].(provider.StepFinish).IsContinued)

	text, err := res.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "It is sunny in Paris", text)

	total, err := res.TotalUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, mock.DefaultUsage.Add(mock.DefaultUsage), total)
	assert.Equal(t, total, events[len(events)-1].(provider.Finish).Usage)

	steps, err := res.Steps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, provider.FinishReasonToolCalls, steps[0].FinishReason)
	assert.Len(t, steps[0].ToolResults, 1)
	assert.Len(t, stepFinishes, 2)
	assert.Len(t, finished.Steps, 2)
	assert.Equal(t, total, finished.TotalUsage)

	calls := m.StreamCalls()
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "weather", calls[0].Tools[0].Name)

	second := calls[1].Prompt
	require.Len(t, second, 3)
	assert.Equal(t, provider.RoleAssistant, second[1].Role)
	assert.Equal(t, provider.ToolCallPart{ToolCallID: "call-1", ToolName: "weather", Input: `{"city":"Paris"}`}, second[1].Content[0])
	assert.Equal(t, provider.RoleTool, second[2].Role)
	assert.Equal(t, provider.ToolResultPart{ToolCallID: "call-1", ToolName: "weather", Output: "sunny in Paris"}, second[2].Content[0])

	responses, err := res.ResponseMessages(ctx)
	require.NoError(t, err)
	require.Len(t, responses, 3)
	assert.Equal(t, second[1:], responses[:2])
	assert.Equal(t, "It is sunny in Paris", responses[2].Text())
}

func TestStreamTextSingleStep(t *testing.T) {
	ctx := testContext(t)
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{
		mock.ToolCalls(weatherCall("call-1", "Paris")),
		mock.TextChunks("never"),
	}}

	res := StreamText(ctx, m, WithPrompt("weather?"), WithTools(weatherTool()))

	reason, err := res.FinishReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, provider.FinishReasonToolCalls, reason)

	results, err := res.ToolResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sunny in Paris", results[0].Output)
	assert.Len(t, m.StreamCalls(), 1)
}

func TestStreamTextToolErrors(t *testing.T) {
	ctx := testContext(t)
	failing := tool.Must("fail", func(context.Context, weatherInput, tool.CallOptions) (string, error) {
		return "", errors.New("station offline")
	})
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{
		mock.ToolCalls(
			provider.ToolCall{ToolCallID: "c1", ToolName: "fail", Input: `{"city":"Oslo"}`},
			provider.ToolCall{ToolCallID: "c2", ToolName: "unknown", Input: `{}`},
			provider.ToolCall{ToolCallID: "c3", ToolName: "weather", Input: `{"city":`},
		),
	}}

	res := StreamText(ctx, m, WithPrompt("weather?"), WithTools(failing, weatherTool()))
	events := fullStream(res)
	require.NoError(t, res.Consume(ctx), "tool failures do not fail the call")

	var (
		results []provider.ToolResult
		errs    []error
	)
	for _, ev := range events {
		switch ev := ev.(type) {
		case provider.ToolResult:
			results = append(results, ev)
		case provider.Error:
			errs = append(errs, ev.Err)
		}
	}
	require.Len(t, errs, 1)
	assert.True(t, IsNoSuchTool(errs[0]))

	require.Len(t, results, 2)
	byID := map[string]provider.ToolResult{}
	for _, r := range results {
		byID[r.ToolCallID] = r
	}
	assert.True(t, byID["c1"].IsError)
	assert.Equal(t, "station offline", byID["c1"].Output)
	assert.True(t, byID["c3"].IsError)

	calls, err := res.ToolCalls(ctx)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	for _, c := range calls {
		if c.ToolCallID == "c3" {
			assert.True(t, c.Invalid)
		}
	}
}

func TestStreamTextPreliminaryResults(t *testing.T) {
	ctx := testContext(t)
	progress, err := tool.NewStream("progress", func(_ context.Context, _ weatherInput, _ tool.CallOptions) iter.Seq2[tool.Output, error] {
		return func(yield func(tool.Output, error) bool) {
			if !yield(tool.Output{Value: "checking", Preliminary: true}, nil) {
				return
			}
			yield(tool.Output{Value: "done"}, nil)
		}
	})
	require.NoError(t, err)

	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{
		mock.ToolCalls(provider.ToolCall{ToolCallID: "p1", ToolName: "progress", Input: `{"city":"Rome"}`}),
	}}

	var prelim []provider.ToolResult
	res := StreamText(ctx, m,
		WithPrompt("go"),
		WithTools(progress),
		OnPreliminaryToolResult(func(r provider.ToolResult) { prelim = append(prelim, r) }),
	)
	require.NoError(t, res.Consume(ctx))

	require.Len(t, prelim, 1)
	assert.Equal(t, "checking", prelim[0].Output)

	results, err := res.ToolResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].Output)
	assert.False(t, results[0].Preliminary)

	var fromStream []provider.ToolResult
	for ev := range res.FullStream() {
		if tr, ok := ev.(provider.ToolResult); ok {
			fromStream = append(fromStream, tr)
		}
	}
	require.Len(t, fromStream, 1, "intermediate outputs stay out of the stream")
	assert.Equal(t, "done", fromStream[0].Output)
}

func TestStreamTextProviderError(t *testing.T) {
	ctx := testContext(t)
	boom := errors.New("connection reset")
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{mock.Fail(boom, "partial")}}

	var reported error
	res := StreamText(ctx, m, WithPrompt("hi"), OnError(func(err error) { reported = err }))

	events := fullStream(res)
	last, ok := events[len(events)-1].(provider.Error)
	require.True(t, ok)
	require.ErrorIs(t, last.Err, boom)

	_, err := res.Text(ctx)
	require.ErrorIs(t, err, boom)
	_, err = res.Usage(ctx)
	require.ErrorIs(t, err, boom)
	_, err = res.Steps(ctx)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, res.Consume(ctx), boom)
	assert.ErrorIs(t, reported, boom)

	var text strings.Builder
	for chunk := range res.TextStream() {
		text.WriteString(chunk)
	}
	assert.Equal(t, "partial", text.String())
}

func TestStreamTextRetries(t *testing.T) {
	ctx := testContext(t)

	t.Run("retryable", func(t *testing.T) {
		m := &mock.LanguageModel{
			Steps:      [][]provider.StreamEvent{mock.TextChunks("ok")},
			StreamErrs: []error{&provider.APICallError{StatusCode: 429, IsRetryable: true}},
		}
		res := StreamText(ctx, m, WithPrompt("hi"), WithRetryDelay(time.Millisecond))
		text, err := res.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ok", text)
		assert.Len(t, m.StreamCalls(), 2)
	})

	t.Run("exhausted", func(t *testing.T) {
		apiErr := &provider.APICallError{StatusCode: 503, IsRetryable: true}
		m := &mock.LanguageModel{StreamErrs: []error{apiErr, apiErr, apiErr}}
		res := StreamText(ctx, m, WithPrompt("hi"), WithRetryDelay(time.Millisecond), WithMaxRetries(2))
		_, err := res.Text(ctx)
		var retryErr *RetryError
		require.ErrorAs(t, err, &retryErr)
		assert.Equal(t, provider.RetryReasonMaxRetriesExceeded, retryErr.Reason)
		assert.Len(t, retryErr.Errors, 3)

		events := fullStream(res)
		require.Len(t, events, 1)
		assert.IsType(t, provider.Error{}, events[0])
	})

	t.Run("disabled", func(t *testing.T) {
		boom := errors.New("boom")
		m := &mock.LanguageModel{StreamErrs: []error{boom}}
		res := StreamText(ctx, m, WithPrompt("hi"), WithMaxRetries(0))
		_, err := res.Text(ctx)
		require.ErrorIs(t, err, boom)
		assert.Len(t, m.StreamCalls(), 1)
	})
}

func TestStreamTextInvalidCalls(t *testing.T) {
	ctx := testContext(t)
	m := &mock.LanguageModel{Steps: [][]provider.StreamEvent{mock.TextChunks("ok")}}

	cases := []struct {
		name    string
		model   provider.LanguageModel
		options []CallOption
	}{
		{"no prompt", m, nil},
		{"prompt and messages", m, []CallOption{WithPrompt("hi"), WithMessages(provider.UserMessage("hi"))}},
		{"max steps", m, []CallOption{WithPrompt("hi"), WithMaxSteps(0)}},
		{"negative retries", m, []CallOption{WithPrompt("hi"), WithMaxRetries(-1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := StreamText(ctx, tc.model, tc.options...)
			_, err := res.Text(ctx)
			var invalid *InvalidArgumentError
			require.ErrorAs(t, err, &invalid)
			assert.Len(t, fullStream(res), 1)
		})
	}

	t.Run("unsupported version", func(t *testing.T) {
		old := &mock.LanguageModel{Version: "v1"}
		_, err := StreamText(ctx, old, WithPrompt("hi")).Text(ctx)
		var unsupported *UnsupportedModelVersionError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, "v1", unsupported.Version)
	})

	assert.Empty(t, m.StreamCalls())
}

func TestStreamTextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(testContext(t))
	m := &mock.LanguageModel{
		Steps: [][]provider.StreamEvent{mock.TextChunks("a", "b", "c", "d", "e")},
		Delay: 20 * time.Millisecond,
	}

	res := StreamText(ctx, m, WithPrompt("hi"))
	var events []provider.StreamEvent
	for ev := range res.FullStream() {
		if _, ok := ev.(provider.TextDelta); ok {
			cancel()
		}
		events = append(events, ev)
	}

	last, ok := events[len(events)-1].(provider.Error)
	require.True(t, ok, "the stream ends with an error event, got %T", events[len(events)-1])
	assert.True(t, IsAbort(last.Err))
	assert.ErrorIs(t, last.Err, context.Canceled)

	_, err := res.Text(context.Background())
	assert.True(t, IsAbort(err))
}
