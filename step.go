package weft

import (
	"github.com/casualjim/weft/provider"
	"github.com/tidwall/gjson"
)

// StepResult describes one model round trip of a call.
type StepResult struct {
	Text             string
	ToolCalls        []provider.ToolCall
	ToolResults      []provider.ToolResult
	FinishReason     provider.FinishReason
	Usage            provider.Usage
	Warnings         []provider.Warning
	Request          provider.RequestMetadata
	Response         provider.ResponseInfo
	ProviderMetadata gjson.Result
	// IsContinued is set when the call continues with another step.
	IsContinued bool
}

// FinishEvent is passed to the OnFinish callback.
type FinishEvent struct {
	StepResult
	TotalUsage provider.Usage
	Steps      []StepResult
}

// continues reports whether the step ended in tool calls that all produced
// results, which is when the conversation can go on.
func (s *StepResult) continues(step, maxSteps int) bool {
	if step+1 >= maxSteps || len(s.ToolCalls) == 0 {
		return false
	}
	return len(s.ToolResults) == len(s.ToolCalls)
}

// responseMessages are the messages appended to the prompt of the next step.
func (s *StepResult) responseMessages() []provider.Message {
	parts := make([]provider.Part, 0, len(s.ToolCalls)+1)
	if s.Text != "" {
		parts = append(parts, provider.TextPart{Text: s.Text})
	}
	for _, tc := range s.ToolCalls {
		parts = append(parts, provider.ToolCallPart{ToolCallID: tc.ToolCallID, ToolName: tc.ToolName, Input: tc.Input})
	}
	msgs := []provider.Message{provider.AssistantMessage(parts...)}
	if len(s.ToolResults) == 0 {
		return msgs
	}

	results := make([]provider.ToolResultPart, len(s.ToolResults))
	for i, tr := range s.ToolResults {
		results[i] = provider.ToolResultPart{ToolCallID: tr.ToolCallID, ToolName: tr.ToolName, Output: tr.Output, IsError: tr.IsError}
	}
	return append(msgs, provider.ToolMessage(results...))
}

func totalUsage(steps []StepResult) provider.Usage {
	var u provider.Usage
	for _, s := range steps {
		u = u.Add(s.Usage)
	}
	return u
}
