package provider

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	TypeTextDelta        = "text-delta"
	TypeToolCallDelta    = "tool-call-delta"
	TypeToolCall         = "tool-call"
	TypeToolResult       = "tool-result"
	TypeResponseMetadata = "response-metadata"
	TypeFinish           = "finish"
	TypeError            = "error"
	TypeObject           = "object"
	TypeStepStart        = "step-start"
	TypeStepFinish       = "step-finish"
)

var (
	textDeltaJSON        = []byte(`{"type":"text-delta"}`)
	toolCallDeltaJSON    = []byte(`{"type":"tool-call-delta"}`)
	toolCallJSON         = []byte(`{"type":"tool-call"}`)
	toolResultJSON       = []byte(`{"type":"tool-result"}`)
	responseMetadataJSON = []byte(`{"type":"response-metadata"}`)
	finishJSON           = []byte(`{"type":"finish"}`)
	errorJSON            = []byte(`{"type":"error"}`)
	objectJSON           = []byte(`{"type":"object"}`)
	stepStartJSON        = []byte(`{"type":"step-start"}`)
	stepFinishJSON       = []byte(`{"type":"step-finish"}`)
)

// StreamEvent is one unit of a streaming response. A successful stream ends
// with exactly one Finish; a failed stream ends with an Error instead.
type StreamEvent interface {
	streamEvent()
}

type TextDelta struct {
	Text string `json:"text"`
}

func (TextDelta) streamEvent() {}

// ToolCallDelta carries a fragment of a tool call's argument text while the
// model is still producing it.
type ToolCallDelta struct {
	ToolCallID    string `json:"tool_call_id"`
	ToolName      string `json:"tool_name"`
	ArgsTextDelta string `json:"args_text_delta"`
}

func (ToolCallDelta) streamEvent() {}

// ToolCall is a complete tool call. Input is the raw JSON argument text.
// Invalid is set when the input could not be parsed or validated.
type ToolCall struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Input      string `json:"input"`
	Invalid    bool   `json:"invalid,omitempty"`
}

func (ToolCall) streamEvent() {}

// ToolResult is the settled outcome of a tool call. When IsError is set,
// Output holds the error message.
type ToolResult struct {
	ToolCallID  string `json:"tool_call_id"`
	ToolName    string `json:"tool_name"`
	Input       any    `json:"input"`
	Output      any    `json:"output"`
	IsError     bool   `json:"is_error,omitempty"`
	Preliminary bool   `json:"preliminary,omitempty"`
}

func (ToolResult) streamEvent() {}

type ResponseMetadata struct {
	ID        string          `json:"id,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
	ModelID   string          `json:"model_id,omitempty"`
}

func (ResponseMetadata) streamEvent() {}

type Finish struct {
	FinishReason     FinishReason `json:"finish_reason"`
	Usage            Usage        `json:"usage"`
	ProviderMetadata gjson.Result `json:"provider_metadata,omitempty"`
}

func (Finish) streamEvent() {}

type Error struct {
	Err error `json:"error"`
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// ObjectDelta carries the latest partial object of an object stream.
type ObjectDelta struct {
	Object any `json:"object"`
}

func (ObjectDelta) streamEvent() {}

// StepStart opens one model round trip of a multi-step call.
type StepStart struct {
	MessageID string    `json:"message_id"`
	Warnings  []Warning `json:"warnings,omitempty"`
}

func (StepStart) streamEvent() {}

// StepFinish closes one model round trip. IsContinued is set when another
// step follows.
type StepFinish struct {
	FinishReason     FinishReason `json:"finish_reason"`
	Usage            Usage        `json:"usage"`
	ResponseID       string       `json:"response_id,omitempty"`
	ModelID          string       `json:"model_id,omitempty"`
	IsContinued      bool         `json:"is_continued"`
	ProviderMetadata gjson.Result `json:"provider_metadata,omitempty"`
}

func (StepFinish) streamEvent() {}

type eventWriter struct {
	buf []byte
	err error
}

func newEventWriter(prefix []byte) *eventWriter {
	buf := make([]byte, len(prefix))
	copy(buf, prefix)
	return &eventWriter{buf: buf}
}

func (w *eventWriter) set(path string, v any) {
	if w.err != nil {
		return
	}
	w.buf, w.err = sjson.SetBytes(w.buf, path, v)
}

func (w *eventWriter) setRaw(path string, raw []byte) {
	if w.err != nil {
		return
	}
	w.buf, w.err = sjson.SetRawBytes(w.buf, path, raw)
}

func (w *eventWriter) setJSON(path string, v any) {
	if w.err != nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("failed to marshal %s: %w", path, err)
		return
	}
	w.setRaw(path, b)
}

func (w *eventWriter) result() ([]byte, error) {
	return w.buf, w.err
}

func readEvent(data []byte, tpe string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("invalid json: %s", data)
	}
	doc := gjson.ParseBytes(data)
	msgType := doc.Get("type")
	if !msgType.Exists() || msgType.String() != tpe {
		return gjson.Result{}, fmt.Errorf("missing or invalid type, expected '%s'", tpe)
	}
	return doc, nil
}

func requireField(doc gjson.Result, path string) (gjson.Result, error) {
	v := doc.Get(path)
	if !v.Exists() {
		return v, fmt.Errorf("missing required field '%s'", path)
	}
	return v, nil
}

func decodeRaw(v gjson.Result) (any, error) {
	if !v.Exists() {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(v.Raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalJSON implements custom JSON marshaling for TextDelta
func (t TextDelta) MarshalJSON() ([]byte, error) {
	w := newEventWriter(textDeltaJSON)
	w.set("text", t.Text)
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for TextDelta
func (t *TextDelta) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeTextDelta)
	if err != nil {
		return err
	}
	text, err := requireField(doc, "text")
	if err != nil {
		return err
	}
	t.Text = text.String()
	return nil
}

// MarshalJSON implements custom JSON marshaling for ToolCallDelta
func (t ToolCallDelta) MarshalJSON() ([]byte, error) {
	w := newEventWriter(toolCallDeltaJSON)
	w.set("tool_call_id", t.ToolCallID)
	w.set("tool_name", t.ToolName)
	w.set("args_text_delta", t.ArgsTextDelta)
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolCallDelta
func (t *ToolCallDelta) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeToolCallDelta)
	if err != nil {
		return err
	}
	id, err := requireField(doc, "tool_call_id")
	if err != nil {
		return err
	}
	t.ToolCallID = id.String()
	t.ToolName = doc.Get("tool_name").String()
	t.ArgsTextDelta = doc.Get("args_text_delta").String()
	return nil
}

// MarshalJSON implements custom JSON marshaling for ToolCall
func (t ToolCall) MarshalJSON() ([]byte, error) {
	w := newEventWriter(toolCallJSON)
	w.set("tool_call_id", t.ToolCallID)
	w.set("tool_name", t.ToolName)
	w.set("input", t.Input)
	if t.Invalid {
		w.set("invalid", true)
	}
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolCall
func (t *ToolCall) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeToolCall)
	if err != nil {
		return err
	}
	id, err := requireField(doc, "tool_call_id")
	if err != nil {
		return err
	}
	name, err := requireField(doc, "tool_name")
	if err != nil {
		return err
	}
	t.ToolCallID = id.String()
	t.ToolName = name.String()
	t.Input = doc.Get("input").String()
	t.Invalid = doc.Get("invalid").Bool()
	return nil
}

// MarshalJSON implements custom JSON marshaling for ToolResult
func (t ToolResult) MarshalJSON() ([]byte, error) {
	w := newEventWriter(toolResultJSON)
	w.set("tool_call_id", t.ToolCallID)
	w.set("tool_name", t.ToolName)
	w.setJSON("input", t.Input)
	w.setJSON("output", t.Output)
	if t.IsError {
		w.set("is_error", true)
	}
	if t.Preliminary {
		w.set("preliminary", true)
	}
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for ToolResult
func (t *ToolResult) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeToolResult)
	if err != nil {
		return err
	}
	id, err := requireField(doc, "tool_call_id")
	if err != nil {
		return err
	}
	name, err := requireField(doc, "tool_name")
	if err != nil {
		return err
	}
	t.ToolCallID = id.String()
	t.ToolName = name.String()
	if t.Input, err = decodeRaw(doc.Get("input")); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	if t.Output, err = decodeRaw(doc.Get("output")); err != nil {
		return fmt.Errorf("invalid output: %w", err)
	}
	t.IsError = doc.Get("is_error").Bool()
	t.Preliminary = doc.Get("preliminary").Bool()
	return nil
}

// MarshalJSON implements custom JSON marshaling for ResponseMetadata
func (r ResponseMetadata) MarshalJSON() ([]byte, error) {
	w := newEventWriter(responseMetadataJSON)
	if r.ID != "" {
		w.set("id", r.ID)
	}
	if !r.Timestamp.IsZero() {
		w.set("timestamp", r.Timestamp.String())
	}
	if r.ModelID != "" {
		w.set("model_id", r.ModelID)
	}
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for ResponseMetadata
func (r *ResponseMetadata) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeResponseMetadata)
	if err != nil {
		return err
	}
	r.ID = doc.Get("id").String()
	r.ModelID = doc.Get("model_id").String()
	if timestamp := doc.Get("timestamp"); timestamp.Exists() {
		if err := r.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for Finish
func (f Finish) MarshalJSON() ([]byte, error) {
	w := newEventWriter(finishJSON)
	w.set("finish_reason", string(f.FinishReason))
	w.setJSON("usage", f.Usage)
	if f.ProviderMetadata.Exists() {
		w.setRaw("provider_metadata", []byte(f.ProviderMetadata.Raw))
	}
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for Finish
func (f *Finish) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeFinish)
	if err != nil {
		return err
	}
	reason, err := requireField(doc, "finish_reason")
	if err != nil {
		return err
	}
	f.FinishReason = FinishReason(reason.String())
	if usage := doc.Get("usage"); usage.Exists() {
		if err := json.Unmarshal([]byte(usage.Raw), &f.Usage); err != nil {
			return fmt.Errorf("invalid usage: %w", err)
		}
	}
	if meta := doc.Get("provider_metadata"); meta.Exists() {
		f.ProviderMetadata = meta
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	w := newEventWriter(errorJSON)
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	w.set("error", msg)
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeError)
	if err != nil {
		return err
	}
	msg, err := requireField(doc, "error")
	if err != nil {
		return err
	}
	e.Err = errors.New(msg.String())
	return nil
}

// MarshalJSON implements custom JSON marshaling for ObjectDelta
func (o ObjectDelta) MarshalJSON() ([]byte, error) {
	w := newEventWriter(objectJSON)
	w.setJSON("object", o.Object)
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for ObjectDelta
func (o *ObjectDelta) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeObject)
	if err != nil {
		return err
	}
	obj, err := requireField(doc, "object")
	if err != nil {
		return err
	}
	if o.Object, err = decodeRaw(obj); err != nil {
		return fmt.Errorf("invalid object: %w", err)
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for StepStart
func (s StepStart) MarshalJSON() ([]byte, error) {
	w := newEventWriter(stepStartJSON)
	w.set("message_id", s.MessageID)
	if len(s.Warnings) > 0 {
		w.setJSON("warnings", s.Warnings)
	}
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for StepStart
func (s *StepStart) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeStepStart)
	if err != nil {
		return err
	}
	s.MessageID = doc.Get("message_id").String()
	if warnings := doc.Get("warnings"); warnings.Exists() {
		if err := json.Unmarshal([]byte(warnings.Raw), &s.Warnings); err != nil {
			return fmt.Errorf("invalid warnings: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements custom JSON marshaling for StepFinish
func (s StepFinish) MarshalJSON() ([]byte, error) {
	w := newEventWriter(stepFinishJSON)
	w.set("finish_reason", string(s.FinishReason))
	w.setJSON("usage", s.Usage)
	if s.ResponseID != "" {
		w.set("response_id", s.ResponseID)
	}
	if s.ModelID != "" {
		w.set("model_id", s.ModelID)
	}
	w.set("is_continued", s.IsContinued)
	if s.ProviderMetadata.Exists() {
		w.setRaw("provider_metadata", []byte(s.ProviderMetadata.Raw))
	}
	return w.result()
}

// UnmarshalJSON implements custom JSON unmarshaling for StepFinish
func (s *StepFinish) UnmarshalJSON(data []byte) error {
	doc, err := readEvent(data, TypeStepFinish)
	if err != nil {
		return err
	}
	reason, err := requireField(doc, "finish_reason")
	if err != nil {
		return err
	}
	s.FinishReason = FinishReason(reason.String())
	if usage := doc.Get("usage"); usage.Exists() {
		if err := json.Unmarshal([]byte(usage.Raw), &s.Usage); err != nil {
			return fmt.Errorf("invalid usage: %w", err)
		}
	}
	s.ResponseID = doc.Get("response_id").String()
	s.ModelID = doc.Get("model_id").String()
	s.IsContinued = doc.Get("is_continued").Bool()
	if meta := doc.Get("provider_metadata"); meta.Exists() {
		s.ProviderMetadata = meta
	}
	return nil
}

// EventToJSON serializes any stream event with its type discriminator.
func EventToJSON(event StreamEvent) ([]byte, error) {
	if event == nil {
		return nil, errors.New("event is nil")
	}
	return json.Marshal(event)
}

// EventFromJSON decodes an event produced by EventToJSON.
func EventFromJSON(data []byte) (StreamEvent, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}

	var (
		event StreamEvent
		err   error
	)
	switch tpe := gjson.GetBytes(data, "type").String(); tpe {
	case TypeTextDelta:
		var e TextDelta
		err = e.UnmarshalJSON(data)
		event = e
	case TypeToolCallDelta:
		var e ToolCallDelta
		err = e.UnmarshalJSON(data)
		event = e
	case TypeToolCall:
		var e ToolCall
		err = e.UnmarshalJSON(data)
		event = e
	case TypeToolResult:
		var e ToolResult
		err = e.UnmarshalJSON(data)
		event = e
	case TypeResponseMetadata:
		var e ResponseMetadata
		err = e.UnmarshalJSON(data)
		event = e
	case TypeFinish:
		var e Finish
		err = e.UnmarshalJSON(data)
		event = e
	case TypeError:
		var e Error
		err = e.UnmarshalJSON(data)
		event = e
	case TypeObject:
		var e ObjectDelta
		err = e.UnmarshalJSON(data)
		event = e
	case TypeStepStart:
		var e StepStart
		err = e.UnmarshalJSON(data)
		event = e
	case TypeStepFinish:
		var e StepFinish
		err = e.UnmarshalJSON(data)
		event = e
	default:
		return nil, fmt.Errorf("unknown event type: %q", tpe)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
