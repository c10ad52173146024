package openai

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casualjim/weft/pkg/jsonx"
	"github.com/casualjim/weft/provider"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"
)

func toMessages(prompt []provider.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt))
	for _, msg := range prompt {
		switch msg.Role {
		case provider.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Text()))

		case provider.RoleUser:
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Content))
			for _, part := range msg.Content {
				switch part := part.(type) {
				case provider.TextPart:
					parts = append(parts, openai.TextPart(part.Text))
				case provider.FilePart:
					fp, err := filePart(part)
					if err != nil {
						return nil, err
					}
					parts = append(parts, fp)
				}
			}
			result = append(result, openai.UserMessageParts(parts...))

		case provider.RoleAssistant:
			am := openai.ChatCompletionAssistantMessageParam{
				Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
			}
			var content []openai.ChatCompletionAssistantMessageParamContentUnion
			var calls []openai.ChatCompletionMessageToolCallParam
			for _, part := range msg.Content {
				switch part := part.(type) {
				case provider.TextPart:
					content = append(content, openai.TextPart(part.Text))
				case provider.ToolCallPart:
					calls = append(calls, openai.ChatCompletionMessageToolCallParam{
						ID:   openai.String(part.ToolCallID),
						Type: openai.F(openai.ChatCompletionMessageToolCallTypeFunction),
						Function: openai.F(openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      openai.String(part.ToolName),
							Arguments: openai.String(part.Input),
						}),
					})
				}
			}
			if len(content) > 0 {
				am.Content = openai.F(content)
			}
			if len(calls) > 0 {
				am.ToolCalls = openai.F(calls)
			}
			result = append(result, am)

		case provider.RoleTool:
			for _, part := range msg.Content {
				tr, ok := part.(provider.ToolResultPart)
				if !ok {
					continue
				}
				content, err := jsonx.Stringify(tr.Output)
				if err != nil {
					return nil, fmt.Errorf("tool result %s: %w", tr.ToolCallID, err)
				}
				result = append(result, openai.ToolMessage(tr.ToolCallID, content))
			}

		default:
			return nil, &provider.InvalidArgumentError{Argument: "prompt", Message: "unsupported role " + string(msg.Role)}
		}
	}
	return result, nil
}

func filePart(part provider.FilePart) (openai.ChatCompletionContentPartUnionParam, error) {
	switch {
	case strings.HasPrefix(part.MediaType, "image/"):
		url := part.URL
		if url == "" {
			url = "data:" + part.MediaType + ";base64," + base64.StdEncoding.EncodeToString(part.Data)
		}
		return openai.ImagePart(url), nil

	case part.MediaType == "audio/wav" || part.MediaType == "audio/mpeg" || part.MediaType == "audio/mp3":
		format := openai.ChatCompletionContentPartInputAudioInputAudioFormatWAV
		if part.MediaType != "audio/wav" {
			format = openai.ChatCompletionContentPartInputAudioInputAudioFormatMP3
		}
		return openai.ChatCompletionContentPartInputAudioParam{
			InputAudio: openai.F(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   openai.String(base64.StdEncoding.EncodeToString(part.Data)),
				Format: openai.F(format),
			}),
			Type: openai.F(openai.ChatCompletionContentPartInputAudioTypeInputAudio),
		}, nil

	default:
		return nil, &provider.InvalidArgumentError{Argument: "prompt", Message: "unsupported file media type " + part.MediaType}
	}
}

func finishReason(reason string) provider.FinishReason {
	switch reason {
	case "stop":
		return provider.FinishReasonStop
	case "length":
		return provider.FinishReasonLength
	case "content_filter":
		return provider.FinishReasonContentFilter
	case "tool_calls", "function_call":
		return provider.FinishReasonToolCalls
	case "":
		return provider.FinishReasonUnknown
	default:
		return provider.FinishReasonOther
	}
}

func usage(u openai.CompletionUsage) provider.Usage {
	return provider.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	}
}

func timestamp(created int64) strfmt.DateTime {
	return strfmt.DateTime(time.Unix(created, 0).UTC())
}

func requestMetadata(params openai.ChatCompletionNewParams) provider.RequestMetadata {
	b, err := params.MarshalJSON()
	if err != nil {
		return provider.RequestMetadata{}
	}
	return provider.RequestMetadata{Body: gjson.ParseBytes(b)}
}

func requestOptions(headers map[string]string, providerOptions map[string]map[string]any) []option.RequestOption {
	var opts []option.RequestOption
	for k, v := range headers {
		opts = append(opts, option.WithHeader(k, v))
	}
	for k, v := range providerOptions[Name] {
		opts = append(opts, option.WithJSONSet(k, v))
	}
	return opts
}

func responseHeaders(resp *http.Response) map[string]string {
	if resp == nil {
		return nil
	}
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}
	return headers
}

func apiError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	callErr := &provider.APICallError{
		StatusCode:  apiErr.StatusCode,
		Body:        apiErr.Message,
		IsRetryable: provider.RetryableStatus(apiErr.StatusCode),
		Cause:       err,
	}
	if apiErr.Request != nil && apiErr.Request.URL != nil {
		callErr.URL = apiErr.Request.URL.String()
	}
	return callErr
}
