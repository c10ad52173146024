package wire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/casualjim/weft/pkg/slogx"
	"github.com/casualjim/weft/provider"
	"github.com/goccy/go-json"
)

// DataStreamHeader marks a response as a data stream.
const DataStreamHeader = "X-Vercel-AI-Data-Stream"

type usageFrame struct {
	PromptTokens     int64 `json:"promptTokens"`
	CompletionTokens int64 `json:"completionTokens"`
}

type toolCallStartFrame struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type toolCallDeltaFrame struct {
	ToolCallID    string `json:"toolCallId"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

type toolCallFrame struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type toolResultFrame struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type stepStartFrame struct {
	MessageID string `json:"messageId"`
}

type stepFinishFrame struct {
	FinishReason provider.FinishReason `json:"finishReason"`
	Usage        usageFrame            `json:"usage"`
	IsContinued  bool                  `json:"isContinued"`
}

type finishFrame struct {
	FinishReason provider.FinishReason `json:"finishReason"`
	Usage        usageFrame            `json:"usage"`
}

func frame(code byte, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %c frame: %w", code, err)
	}
	out := make([]byte, 0, len(b)+3)
	out = append(out, code, ':')
	out = append(out, b...)
	return append(out, '\n'), nil
}

func usageOf(u provider.Usage) usageFrame {
	return usageFrame{PromptTokens: u.InputTokens, CompletionTokens: u.OutputTokens}
}

// frameEncoder turns stream events into data stream frames. Tool call
// streaming starts are emitted once per call id.
type frameEncoder struct {
	errorMessage func(error) string
	started      map[string]bool
}

func newFrameEncoder(errorMessage func(error) string) *frameEncoder {
	return &frameEncoder{errorMessage: errorMessage, started: make(map[string]bool)}
}

func (e *frameEncoder) encode(ev provider.StreamEvent) ([][]byte, error) {
	var (
		f   []byte
		err error
	)
	switch ev := ev.(type) {
	case provider.TextDelta:
		if ev.Text == "" {
			return nil, nil
		}
		f, err = frame('0', ev.Text)

	case provider.ToolCallDelta:
		var frames [][]byte
		if !e.started[ev.ToolCallID] {
			e.started[ev.ToolCallID] = true
			start, err := frame('b', toolCallStartFrame{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName})
			if err != nil {
				return nil, err
			}
			frames = append(frames, start)
		}
		delta, err := frame('c', toolCallDeltaFrame{ToolCallID: ev.ToolCallID, ArgsTextDelta: ev.ArgsTextDelta})
		if err != nil {
			return nil, err
		}
		return append(frames, delta), nil

	case provider.ToolCall:
		f, err = frame('9', toolCallFrame{ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, Args: toolArgs(ev.Input)})

	case provider.ToolResult:
		if ev.Preliminary {
			return nil, nil
		}
		f, err = frame('a', toolResultFrame{ToolCallID: ev.ToolCallID, Result: ev.Output})

	case provider.Error:
		f, err = frame('3', e.errorMessage(ev.Err))

	case provider.StepStart:
		f, err = frame('f', stepStartFrame{MessageID: ev.MessageID})

	case provider.StepFinish:
		f, err = frame('e', stepFinishFrame{FinishReason: ev.FinishReason, Usage: usageOf(ev.Usage), IsContinued: ev.IsContinued})

	case provider.Finish:
		f, err = frame('d', finishFrame{FinishReason: ev.FinishReason, Usage: usageOf(ev.Usage)})

	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return [][]byte{f}, nil
}

// toolArgs passes valid JSON input through and quotes anything else.
func toolArgs(input string) json.RawMessage {
	if input == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(input)) {
		return json.RawMessage(input)
	}
	b, _ := json.Marshal(input)
	return b
}

// DataStreamWriter writes data stream frames to a response. Its methods are
// safe for concurrent use, so custom data can be interleaved with merged
// result streams.
type DataStreamWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	opts    Options
}

// NewDataStreamWriter writes the response headers and returns a writer for
// the body.
func NewDataStreamWriter(w http.ResponseWriter, options ...Option) (*DataStreamWriter, error) {
	o, err := newOptions(options)
	if err != nil {
		return nil, err
	}
	writeHeaders(w, o, map[string]string{
		"Content-Type":   "text/plain; charset=utf-8",
		DataStreamHeader: "v1",
	})
	flusher, _ := w.(http.Flusher)
	return &DataStreamWriter{w: w, flusher: flusher, opts: o}, nil
}

func (d *DataStreamWriter) write(frames ...[]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range frames {
		if _, err := d.w.Write(f); err != nil {
			return err
		}
	}
	if d.flusher != nil {
		d.flusher.Flush()
	}
	return nil
}

// WriteData sends a custom data frame.
func (d *DataStreamWriter) WriteData(values ...any) error {
	f, err := frame('2', values)
	if err != nil {
		return err
	}
	return d.write(f)
}

// WriteMessageAnnotation attaches annotations to the current message.
func (d *DataStreamWriter) WriteMessageAnnotation(values ...any) error {
	f, err := frame('8', values)
	if err != nil {
		return err
	}
	return d.write(f)
}

// WriteError sends an error frame, formatted by the configured error message
// function.
func (d *DataStreamWriter) WriteError(err error) error {
	f, ferr := frame('3', d.opts.ErrorMessage(err))
	if ferr != nil {
		return ferr
	}
	return d.write(f)
}

// Merge writes the frames of src until it ends or ctx is cancelled.
func (d *DataStreamWriter) Merge(ctx context.Context, src Source) error {
	enc := newFrameEncoder(d.opts.ErrorMessage)
	for ev := range src.FullStreamContext(ctx) {
		if pe, ok := ev.(provider.Error); ok {
			if provider.IsAbort(pe.Err) {
				d.opts.Logger.DebugContext(ctx, "stream aborted", slogx.Error(pe.Err))
			} else {
				d.opts.Logger.WarnContext(ctx, "stream error sent to client", slogx.Error(pe.Err))
			}
		}
		frames, err := enc.encode(ev)
		if err != nil {
			d.opts.Logger.ErrorContext(ctx, "failed to encode frame", slogx.Error(err))
			continue
		}
		if len(frames) == 0 {
			continue
		}
		if err := d.write(frames...); err != nil {
			return err
		}
	}
	return nil
}

// PipeDataStream writes every event of src to w as data stream frames.
func PipeDataStream(ctx context.Context, w http.ResponseWriter, src Source, options ...Option) error {
	d, err := NewDataStreamWriter(w, options...)
	if err != nil {
		return err
	}
	return d.Merge(ctx, src)
}
