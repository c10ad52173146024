// Package mock provides scripted models for tests and examples.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/casualjim/weft/provider"
	"github.com/go-openapi/strfmt"
	"github.com/tidwall/gjson"
)

const (
	DefaultProvider = "mock"
	DefaultModelID  = "mock-model"
)

// LanguageModel replays scripted responses. Each call to Stream uses the
// next entry of Steps and each call to Generate the next entry of Results;
// the last entry is reused once the script runs out. Every call is recorded.
type LanguageModel struct {
	ProviderName string
	Model        string
	// Version overrides the specification version, for testing version checks.
	Version string

	Steps   [][]provider.StreamEvent
	Results []*provider.GenerateResult
	// StreamErrs and GenerateErrs fail the call with that index when non-nil.
	StreamErrs   []error
	GenerateErrs []error
	// Delay is slept before each streamed event.
	Delay    time.Duration
	Warnings []provider.Warning

	mu            sync.Mutex
	streamCalls   []provider.CallOptions
	generateCalls []provider.CallOptions
}

func (m *LanguageModel) SpecificationVersion() string {
	if m.Version != "" {
		return m.Version
	}
	return provider.SpecificationV2
}

func (m *LanguageModel) Provider() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return DefaultProvider
}

func (m *LanguageModel) ModelID() string {
	if m.Model != "" {
		return m.Model
	}
	return DefaultModelID
}

func (m *LanguageModel) Generate(ctx context.Context, options provider.CallOptions) (*provider.GenerateResult, error) {
	m.mu.Lock()
	i := len(m.generateCalls)
	m.generateCalls = append(m.generateCalls, options)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < len(m.GenerateErrs) && m.GenerateErrs[i] != nil {
		return nil, m.GenerateErrs[i]
	}
	if len(m.Results) == 0 {
		return &provider.GenerateResult{FinishReason: provider.FinishReasonStop}, nil
	}
	res := *m.Results[min(i, len(m.Results)-1)]
	return &res, nil
}

func (m *LanguageModel) Stream(ctx context.Context, options provider.CallOptions) (*provider.StreamResponse, error) {
	m.mu.Lock()
	i := len(m.streamCalls)
	m.streamCalls = append(m.streamCalls, options)
	m.mu.Unlock()

	if i < len(m.StreamErrs) && m.StreamErrs[i] != nil {
		return nil, m.StreamErrs[i]
	}

	var events []provider.StreamEvent
	if len(m.Steps) > 0 {
		events = m.Steps[min(i, len(m.Steps)-1)]
	}

	ch := make(chan provider.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return &provider.StreamResponse{
		Stream:   ch,
		Warnings: m.Warnings,
		Request:  provider.RequestMetadata{Body: gjson.Parse(`{"stream":true}`)},
		Response: provider.ResponseInfo{Headers: map[string]string{"x-mock": "true"}},
	}, nil
}

// StreamCalls returns the options of every Stream call so far.
func (m *LanguageModel) StreamCalls() []provider.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CallOptions(nil), m.streamCalls...)
}

// GenerateCalls returns the options of every Generate call so far.
func (m *LanguageModel) GenerateCalls() []provider.CallOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]provider.CallOptions(nil), m.generateCalls...)
}

// DefaultUsage is the usage reported by the helpers in this package.
var DefaultUsage = provider.Usage{InputTokens: 3, OutputTokens: 10, TotalTokens: 13}

// Timestamp is the fixed response time reported by the helpers.
var Timestamp = strfmt.DateTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

// Metadata is the response metadata event reported by the helpers.
func Metadata(id string) provider.ResponseMetadata {
	return provider.ResponseMetadata{ID: id, Timestamp: Timestamp, ModelID: DefaultModelID}
}

// TextChunks scripts a step that streams chunks and stops.
func TextChunks(chunks ...string) []provider.StreamEvent {
	events := []provider.StreamEvent{Metadata("resp-text")}
	for _, c := range chunks {
		events = append(events, provider.TextDelta{Text: c})
	}
	return append(events, provider.Finish{FinishReason: provider.FinishReasonStop, Usage: DefaultUsage})
}

// ToolCalls scripts a step that calls tools and finishes with tool-calls.
func ToolCalls(calls ...provider.ToolCall) []provider.StreamEvent {
	events := []provider.StreamEvent{Metadata("resp-tools")}
	for _, c := range calls {
		events = append(events, c)
	}
	return append(events, provider.Finish{FinishReason: provider.FinishReasonToolCalls, Usage: DefaultUsage})
}

// Fail scripts a step that streams chunks and then breaks with err.
func Fail(err error, chunks ...string) []provider.StreamEvent {
	events := []provider.StreamEvent{Metadata("resp-fail")}
	for _, c := range chunks {
		events = append(events, provider.TextDelta{Text: c})
	}
	return append(events, provider.Error{Err: err})
}

// TextResult scripts a generate call returning text.
func TextResult(text string) *provider.GenerateResult {
	return &provider.GenerateResult{
		Text:         text,
		FinishReason: provider.FinishReasonStop,
		Usage:        DefaultUsage,
		Response:     provider.ResponseInfo{ID: "resp-text", Timestamp: Timestamp, ModelID: DefaultModelID},
	}
}

// ToolCallResult scripts a generate call requesting tools.
func ToolCallResult(calls ...provider.ToolCall) *provider.GenerateResult {
	return &provider.GenerateResult{
		ToolCalls:    calls,
		FinishReason: provider.FinishReasonToolCalls,
		Usage:        DefaultUsage,
		Response:     provider.ResponseInfo{ID: "resp-tools", Timestamp: Timestamp, ModelID: DefaultModelID},
	}
}

// Split cuts text into chunks of at most size bytes, keeping runes intact.
func Split(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	var chunks []string
	var sb strings.Builder
	for _, r := range text {
		sb.WriteRune(r)
		if sb.Len() >= size {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}
	return chunks
}
