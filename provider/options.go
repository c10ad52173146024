package provider

import (
	"github.com/go-openapi/strfmt"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// CallOptions is everything a language model receives for one call.
type CallOptions struct {
	Prompt []Message

	// MaxOutputTokens is unset when 0.
	MaxOutputTokens  int64
	Temperature      *float64
	TopP             *float64
	TopK             *int64
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Seed             *int64
	StopSequences    []string

	ResponseFormat *ResponseFormat
	Tools          []FunctionTool
	ToolChoice     ToolChoice

	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

type ResponseFormatType string

const (
	ResponseFormatText ResponseFormatType = "text"
	ResponseFormatJSON ResponseFormatType = "json"
)

// ResponseFormat asks the model for a particular output shape. Schema is only
// meaningful for ResponseFormatJSON and may be nil for free-form JSON.
type ResponseFormat struct {
	Type        ResponseFormatType
	Schema      *jsonschema.Schema
	Name        string
	Description string
}

// FunctionTool is the model facing description of a tool.
type FunctionTool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceTool     ToolChoiceType = "tool"
)

// ToolChoice controls whether and which tool the model should call. The zero
// value leaves the choice to the provider.
type ToolChoice struct {
	Type     ToolChoiceType
	ToolName string
}

// FinishReason tells why a model stopped generating.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content-filter"
	FinishReasonToolCalls     FinishReason = "tool-calls"
	FinishReasonError         FinishReason = "error"
	FinishReasonOther         FinishReason = "other"
	FinishReasonUnknown       FinishReason = "unknown"
)

// Usage counts tokens for a call.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Add sums two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
	}
}

// Warning reports a setting the provider ignored or could not honour.
type Warning struct {
	Type    string `json:"type"`
	Setting string `json:"setting,omitempty"`
	Message string `json:"message,omitempty"`
}

// RequestMetadata describes what was sent to the provider.
type RequestMetadata struct {
	Body gjson.Result
}

// ResponseInfo describes what came back from the provider.
type ResponseInfo struct {
	ID        string
	Timestamp strfmt.DateTime
	ModelID   string
	Headers   map[string]string
	Body      gjson.Result
}

// GenerateResult is the outcome of a non-streaming language model call.
type GenerateResult struct {
	Text             string
	ToolCalls        []ToolCall
	FinishReason     FinishReason
	Usage            Usage
	Warnings         []Warning
	Request          RequestMetadata
	Response         ResponseInfo
	ProviderMetadata gjson.Result
}

// StreamResponse is the outcome of starting a streaming call.
type StreamResponse struct {
	Stream   <-chan StreamEvent
	Warnings []Warning
	Request  RequestMetadata
	Response ResponseInfo
}

type EmbedOptions struct {
	Values          []string
	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

type EmbeddingUsage struct {
	Tokens int64 `json:"tokens"`
}

type EmbedResult struct {
	Embeddings [][]float64
	Usage      EmbeddingUsage
	Response   ResponseInfo
}

// File is generated binary content.
type File struct {
	Data      []byte
	MediaType string
}

type ImageOptions struct {
	Prompt          string
	N               int
	Size            string
	AspectRatio     string
	Seed            *int64
	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

type ImageResult struct {
	Images   []File
	Warnings []Warning
	Response ResponseInfo
}

type SpeechOptions struct {
	Text            string
	Voice           string
	OutputFormat    string
	Instructions    string
	Speed           *float64
	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

type SpeechResult struct {
	Audio    File
	Warnings []Warning
	Response ResponseInfo
}

type TranscriptionOptions struct {
	Audio           []byte
	MediaType       string
	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

type TranscriptionSegment struct {
	Text        string
	StartSecond float64
	EndSecond   float64
}

type TranscriptionResult struct {
	Text              string
	Segments          []TranscriptionSegment
	Language          string
	DurationInSeconds float64
	Warnings          []Warning
	Response          ResponseInfo
}

type RerankOptions struct {
	Query           string
	Documents       []string
	TopN            int
	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

// RankedDocument points into RerankOptions.Documents.
type RankedDocument struct {
	Index int
	Score float64
}

type RerankResult struct {
	Ranking  []RankedDocument
	Warnings []Warning
	Response ResponseInfo
}

type VideoOptions struct {
	Prompt          string
	N               int
	AspectRatio     string
	DurationSeconds float64
	Seed            *int64
	Headers         map[string]string
	ProviderOptions map[string]map[string]any
}

type VideoResult struct {
	Videos   []File
	Warnings []Warning
	Response ResponseInfo
}
