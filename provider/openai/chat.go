package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/casualjim/weft/pkg/jsonx"
	"github.com/casualjim/weft/provider"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

var _ provider.LanguageModel = (*ChatModel)(nil)

// ChatModel drives the chat completions API.
type ChatModel struct {
	id     string
	client *openai.Client
}

func (m *ChatModel) SpecificationVersion() string { return provider.SpecificationV2 }
func (m *ChatModel) Provider() string             { return Name }
func (m *ChatModel) ModelID() string              { return m.id }

func (m *ChatModel) Generate(ctx context.Context, opts provider.CallOptions) (*provider.GenerateResult, error) {
	params, warnings, err := m.buildRequest(opts)
	if err != nil {
		return nil, err
	}

	var httpResp *http.Response
	reqOpts := append(requestOptions(opts.Headers, opts.ProviderOptions), option.WithResponseInto(&httpResp))
	chat, err := m.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, apiError(err)
	}

	result := &provider.GenerateResult{
		FinishReason: provider.FinishReasonUnknown,
		Usage:        usage(chat.Usage),
		Warnings:     warnings,
		Request:      requestMetadata(params),
		Response: provider.ResponseInfo{
			ID:        chat.ID,
			Timestamp: timestamp(chat.Created),
			ModelID:   chat.Model,
			Headers:   responseHeaders(httpResp),
			Body:      gjson.Parse(chat.JSON.RawJSON()),
		},
	}
	if len(chat.Choices) > 0 {
		choice := chat.Choices[0]
		result.Text = choice.Message.Content
		result.FinishReason = finishReason(string(choice.FinishReason))
		for _, tc := range choice.Message.ToolCalls {
			result.ToolCalls = append(result.ToolCalls, provider.ToolCall{
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
				Input:      tc.Function.Arguments,
			})
		}
	}
	return result, nil
}

func (m *ChatModel) Stream(ctx context.Context, opts provider.CallOptions) (*provider.StreamResponse, error) {
	params, warnings, err := m.buildRequest(opts)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.F(openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	})

	var httpResp *http.Response
	reqOpts := append(requestOptions(opts.Headers, opts.ProviderOptions), option.WithResponseInto(&httpResp))
	strm := m.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	if err := strm.Err(); err != nil {
		strm.Close()
		return nil, apiError(err)
	}

	events := make(chan provider.StreamEvent)
	go func() {
		defer close(events)
		defer strm.Close()

		send := func(ev provider.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			started bool
			calls   = newToolCallAccumulator()
			finish  = provider.Finish{FinishReason: provider.FinishReasonUnknown}
		)
		for strm.Next() {
			chunk := strm.Current()
			if !started {
				started = true
				if !send(provider.ResponseMetadata{ID: chunk.ID, Timestamp: timestamp(chunk.Created), ModelID: chunk.Model}) {
					return
				}
			}
			if chunk.Usage.TotalTokens > 0 {
				finish.Usage = usage(chunk.Usage)
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					if !send(provider.TextDelta{Text: choice.Delta.Content}) {
						return
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					for _, ev := range calls.add(tc) {
						if !send(ev) {
							return
						}
					}
				}
				if choice.FinishReason != "" {
					finish.FinishReason = finishReason(string(choice.FinishReason))
				}
			}
		}

		if err := strm.Err(); err != nil {
			if ctx.Err() == nil {
				send(provider.Error{Err: &provider.StreamError{Err: apiError(err)}})
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		for _, call := range calls.flush() {
			if !send(call) {
				return
			}
		}
		send(finish)
	}()

	return &provider.StreamResponse{
		Stream:   events,
		Warnings: warnings,
		Request:  requestMetadata(params),
		Response: provider.ResponseInfo{Headers: responseHeaders(httpResp)},
	}, nil
}

func (m *ChatModel) buildRequest(opts provider.CallOptions) (openai.ChatCompletionNewParams, []provider.Warning, error) {
	var warnings []provider.Warning

	msgs, err := toMessages(opts.Prompt)
	if err != nil {
		return openai.ChatCompletionNewParams{}, nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(m.id),
	}
	if opts.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(opts.MaxOutputTokens)
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = openai.Float(*opts.TopP)
	}
	if opts.TopK != nil {
		warnings = append(warnings, provider.Warning{Type: "unsupported-setting", Setting: "topK"})
	}
	if opts.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*opts.PresencePenalty)
	}
	if opts.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*opts.FrequencyPenalty)
	}
	if opts.Seed != nil {
		params.Seed = openai.Int(*opts.Seed)
	}
	if len(opts.StopSequences) > 0 {
		params.Stop = openai.F[openai.ChatCompletionNewParamsStopUnion](openai.ChatCompletionNewParamsStopArray(opts.StopSequences))
	}

	if rf := opts.ResponseFormat; rf != nil && rf.Type == provider.ResponseFormatJSON {
		format, err := responseFormat(rf)
		if err != nil {
			return openai.ChatCompletionNewParams{}, nil, err
		}
		params.ResponseFormat = openai.F(format)
	}

	if len(opts.Tools) > 0 {
		tools, err := toTools(opts.Tools)
		if err != nil {
			return openai.ChatCompletionNewParams{}, nil, err
		}
		params.Tools = openai.F(tools)
		if choice, ok := toToolChoice(opts.ToolChoice); ok {
			params.ToolChoice = openai.F(choice)
		}
	}

	return params, warnings, nil
}

func responseFormat(rf *provider.ResponseFormat) (openai.ChatCompletionNewParamsResponseFormatUnion, error) {
	if rf.Schema == nil {
		return shared.ResponseFormatJSONObjectParam{
			Type: openai.F(shared.ResponseFormatJSONObjectTypeJSONObject),
		}, nil
	}

	sch, err := jsonx.ToMap(rf.Schema)
	if err != nil {
		return nil, &provider.InvalidArgumentError{Argument: "responseFormat", Message: err.Error()}
	}
	name := rf.Name
	if name == "" {
		name = "response"
	}
	def := shared.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:   openai.String(name),
		Schema: openai.F[any](sch),
	}
	if strings.TrimSpace(rf.Description) != "" {
		def.Description = openai.String(rf.Description)
	}
	return shared.ResponseFormatJSONSchemaParam{
		Type:       openai.F(shared.ResponseFormatJSONSchemaTypeJSONSchema),
		JSONSchema: openai.F(def),
	}, nil
}

func toTools(tools []provider.FunctionTool) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		parameters, err := jsonx.ToMap(t.InputSchema)
		if err != nil {
			return nil, &provider.InvalidArgumentError{Argument: "tools", Message: "tool " + t.Name + ": " + err.Error()}
		}
		def := openai.FunctionDefinitionParam{
			Name:       openai.String(t.Name),
			Parameters: openai.F(shared.FunctionParameters(parameters)),
		}
		if strings.TrimSpace(t.Description) != "" {
			def.Description = openai.String(t.Description)
		}
		out[i] = openai.ChatCompletionToolParam{
			Type:     openai.F(openai.ChatCompletionToolTypeFunction),
			Function: openai.F(def),
		}
	}
	return out, nil
}

func toToolChoice(tc provider.ToolChoice) (openai.ChatCompletionToolChoiceOptionUnionParam, bool) {
	switch tc.Type {
	case provider.ToolChoiceAuto:
		return openai.ChatCompletionToolChoiceOptionAutoAuto, true
	case provider.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionAutoNone, true
	case provider.ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionAutoRequired, true
	case provider.ToolChoiceTool:
		return openai.ChatCompletionNamedToolChoiceParam{
			Type: openai.F(openai.ChatCompletionNamedToolChoiceTypeFunction),
			Function: openai.F(openai.ChatCompletionNamedToolChoiceFunctionParam{
				Name: openai.String(tc.ToolName),
			}),
		}, true
	default:
		return nil, false
	}
}

// toolCallAccumulator assembles streamed tool calls, which arrive as argument
// fragments keyed by the index of the call in the response.
type toolCallAccumulator struct {
	calls map[int64]*pendingCall
	order []int64
}

type pendingCall struct {
	id, name string
	args     strings.Builder
	emitted  bool
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int64]*pendingCall)}
}

func (a *toolCallAccumulator) add(tc openai.ChatCompletionChunkChoicesDeltaToolCall) []provider.StreamEvent {
	call, ok := a.calls[tc.Index]
	if !ok {
		call = &pendingCall{id: tc.ID, name: tc.Function.Name}
		a.calls[tc.Index] = call
		a.order = append(a.order, tc.Index)
	}
	if call.emitted || tc.Function.Arguments == "" {
		return nil
	}

	call.args.WriteString(tc.Function.Arguments)
	events := []provider.StreamEvent{provider.ToolCallDelta{
		ToolCallID:    call.id,
		ToolName:      call.name,
		ArgsTextDelta: tc.Function.Arguments,
	}}
	if json.Valid([]byte(call.args.String())) {
		call.emitted = true
		events = append(events, call.toolCall())
	}
	return events
}

// flush returns the calls whose arguments never became valid JSON.
func (a *toolCallAccumulator) flush() []provider.StreamEvent {
	var events []provider.StreamEvent
	for _, idx := range a.order {
		if call := a.calls[idx]; !call.emitted {
			call.emitted = true
			events = append(events, call.toolCall())
		}
	}
	return events
}

func (c *pendingCall) toolCall() provider.ToolCall {
	return provider.ToolCall{ToolCallID: c.id, ToolName: c.name, Input: c.args.String()}
}
