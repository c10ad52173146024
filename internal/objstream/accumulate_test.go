package objstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/casualjim/weft/pkg/future"
	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type content struct {
	Content string `json:"content"`
}

var usage = provider.Usage{InputTokens: 3, OutputTokens: 10, TotalTokens: 13}

func deltas(texts ...string) []provider.StreamEvent {
	events := make([]provider.StreamEvent, 0, len(texts)+1)
	for _, text := range texts {
		events = append(events, provider.TextDelta{Text: text})
	}
	return events
}

func run(t *testing.T, strategy Strategy, events ...provider.StreamEvent) ([]provider.StreamEvent, future.Future[any]) {
	t.Helper()
	src := make(chan provider.StreamEvent, len(events))
	for _, ev := range events {
		src <- ev
	}
	close(src)

	sink := future.New[any]()
	var got []provider.StreamEvent
	for ev := range Accumulate(src, strategy, sink) {
		got = append(got, ev)
	}
	return got, sink
}

func partials(events []provider.StreamEvent) []any {
	var out []any
	for _, ev := range events {
		if od, ok := ev.(provider.ObjectDelta); ok {
			out = append(out, od.Object)
		}
	}
	return out
}

func await(t *testing.T, f future.Future[any]) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return f.Get(ctx)
}

func TestAccumulateMonotonicEmission(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop, Usage: usage}
	events := append(deltas(`{ `, `"content": `, `"Hello, `, `world`, `!"`, ` }`), finish)

	got, sink := run(t, Object(schema.For[content]()), events...)

	assert.Equal(t, []any{
		map[string]any{},
		map[string]any{"content": "Hello, "},
		map[string]any{"content": "Hello, world"},
		map[string]any{"content": "Hello, world!"},
	}, partials(got))

	assert.Equal(t, []provider.StreamEvent{
		provider.ObjectDelta{Object: map[string]any{}},
		provider.TextDelta{Text: `{ `},
		provider.ObjectDelta{Object: map[string]any{"content": "Hello, "}},
		provider.TextDelta{Text: `"content": "Hello, `},
		provider.ObjectDelta{Object: map[string]any{"content": "Hello, world"}},
		provider.TextDelta{Text: `world`},
		provider.ObjectDelta{Object: map[string]any{"content": "Hello, world!"}},
		provider.TextDelta{Text: `!"`},
		provider.TextDelta{Text: ` }`},
		finish,
	}, got)

	obj, err := await(t, sink)
	require.NoError(t, err)
	assert.Equal(t, content{Content: "Hello, world!"}, obj)
}

func TestAccumulateSchemaRejection(t *testing.T) {
	meta := provider.ResponseMetadata{ID: "resp-1", ModelID: "mock-model"}
	finish := provider.Finish{FinishReason: provider.FinishReasonStop, Usage: usage}
	events := append([]provider.StreamEvent{meta}, deltas(`{"invalid": `, `"X"}`)...)
	events = append(events, finish)

	got, sink := run(t, Object(schema.For[content]()), events...)

	require.NotEmpty(t, got)
	assert.Equal(t, finish, got[len(got)-1], "raw stream still completes")

	_, err := await(t, sink)
	var noObj *provider.NoObjectGeneratedError
	require.ErrorAs(t, err, &noObj)
	assert.Equal(t, `{"invalid": "X"}`, noObj.Text)
	assert.Equal(t, provider.FinishReasonStop, noObj.FinishReason)
	assert.Equal(t, usage, noObj.Usage)
	assert.Equal(t, "resp-1", noObj.Response.ID)
	assert.Equal(t, "mock-model", noObj.Response.ModelID)
	var tve *provider.TypeValidationError
	assert.ErrorAs(t, err, &tve)
}

func TestAccumulateUnparsable(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonLength}
	_, sink := run(t, Object(schema.Any()), append(deltas(`not json`), finish)...)
	_, err := await(t, sink)
	var noObj *provider.NoObjectGeneratedError
	require.ErrorAs(t, err, &noObj)
	assert.Equal(t, provider.FinishReasonLength, noObj.FinishReason)
	assert.Equal(t, "not json", noObj.Text)
}

func TestAccumulateEmpty(t *testing.T) {
	got, sink := run(t, Object(schema.Any()), provider.Finish{FinishReason: provider.FinishReasonStop})
	assert.Equal(t, []provider.StreamEvent{provider.Finish{FinishReason: provider.FinishReasonStop}}, got)
	_, err := await(t, sink)
	var noObj *provider.NoObjectGeneratedError
	assert.ErrorAs(t, err, &noObj)
}

func TestAccumulateErrorEvent(t *testing.T) {
	boom := errors.New("connection reset")
	got, sink := run(t, Object(schema.Any()), append(deltas(`{"a":`), provider.Error{Err: boom})...)
	assert.Equal(t, provider.Error{Err: boom}, got[len(got)-1])
	_, err := await(t, sink)
	assert.ErrorIs(t, err, boom)
}

func TestAccumulateNoFinish(t *testing.T) {
	_, sink := run(t, Object(schema.Any()), deltas(`{"a":1}`)...)
	_, err := await(t, sink)
	var noObj *provider.NoObjectGeneratedError
	require.ErrorAs(t, err, &noObj)
	assert.Equal(t, `{"a":1}`, noObj.Text)
}

func TestAccumulatePassthrough(t *testing.T) {
	call := provider.ToolCall{ToolCallID: "c1", ToolName: "x", Input: "{}"}
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	got, _ := run(t, NoSchema(), call, finish)
	assert.Equal(t, []provider.StreamEvent{call, finish}, got)
}

func TestAccumulateArray(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	events := append(deltas(
		`{"elements":[`,
		`{"content":"a"},`,
		`{"content":"b"`,
		`},{"content":`,
		`"c"}]}`,
	), finish)

	got, sink := run(t, Array(schema.For[content]()), events...)

	assert.Equal(t, []any{
		[]any{},
		[]any{map[string]any{"content": "a"}},
		[]any{map[string]any{"content": "a"}, map[string]any{"content": "b"}},
		[]any{map[string]any{"content": "a"}, map[string]any{"content": "b"}, map[string]any{"content": "c"}},
	}, partials(got))

	v, err := await(t, sink)
	require.NoError(t, err)
	assert.Equal(t, []any{content{Content: "a"}, content{Content: "b"}, content{Content: "c"}}, v)
}

func TestAccumulateArrayInvalidElement(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	_, sink := run(t, Array(schema.For[content]()), append(deltas(`{"elements":[{"content":1}]}`), finish)...)
	_, err := await(t, sink)
	var noObj *provider.NoObjectGeneratedError
	require.ErrorAs(t, err, &noObj)
	assert.ErrorContains(t, err, "element 0")
}

func TestAccumulateEnum(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	events := append(deltas(`{"result":"foo`, `bar"}`), finish)

	got, sink := run(t, Enum("foobar", "foobar2"), events...)
	assert.Equal(t, []any{"foo", "foobar"}, partials(got))

	v, err := await(t, sink)
	require.NoError(t, err)
	assert.Equal(t, "foobar", v)
}

func TestAccumulateEnumUnambiguous(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	events := append(deltas(`{"result":"`, `sun`, `ny"}`), finish)

	got, sink := run(t, Enum("sunny", "rainy"), events...)
	assert.Equal(t, []any{"", "sunny"}, partials(got))

	v, err := await(t, sink)
	require.NoError(t, err)
	assert.Equal(t, "sunny", v)
}

func TestAccumulateEnumRejectsPrefix(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	_, sink := run(t, Enum("sunny", "rainy"), append(deltas(`{"result":"sun"}`), finish)...)
	_, err := await(t, sink)
	assert.ErrorContains(t, err, "enum value must be one of: sunny, rainy")
}

func TestAccumulateNoSchema(t *testing.T) {
	finish := provider.Finish{FinishReason: provider.FinishReasonStop}
	got, sink := run(t, NoSchema(), append(deltas(`[1,`, `2]`), finish)...)
	assert.Equal(t, []any{[]any{1.0}, []any{1.0, 2.0}}, partials(got))
	v, err := await(t, sink)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, v)
}
