package temporalx

import (
	"github.com/casualjim/weft/provider"
)

// Message is the serializable form of a prompt message carried in workflow
// history. Only text, tool call and tool result content survive the
// conversion; file parts are dropped.
type Message struct {
	Role        provider.Role         `json:"role"`
	Text        string                `json:"text,omitempty"`
	ToolCalls   []provider.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []provider.ToolResult `json:"tool_results,omitempty"`
}

func (m Message) message() provider.Message {
	msg := provider.Message{Role: m.Role}
	if m.Text != "" {
		msg.Content = append(msg.Content, provider.TextPart{Text: m.Text})
	}
	for _, tc := range m.ToolCalls {
		msg.Content = append(msg.Content, provider.ToolCallPart{ToolCallID: tc.ToolCallID, ToolName: tc.ToolName, Input: tc.Input})
	}
	for _, tr := range m.ToolResults {
		msg.Content = append(msg.Content, provider.ToolResultPart{ToolCallID: tr.ToolCallID, ToolName: tr.ToolName, Output: tr.Output, IsError: tr.IsError})
	}
	return msg
}

// FromMessage converts a prompt message into its serializable form.
func FromMessage(msg provider.Message) Message {
	m := Message{Role: msg.Role, Text: msg.Text()}
	for _, p := range msg.Content {
		switch part := p.(type) {
		case provider.ToolCallPart:
			m.ToolCalls = append(m.ToolCalls, provider.ToolCall{ToolCallID: part.ToolCallID, ToolName: part.ToolName, Input: part.Input})
		case provider.ToolResultPart:
			m.ToolResults = append(m.ToolResults, provider.ToolResult{ToolCallID: part.ToolCallID, ToolName: part.ToolName, Output: part.Output, IsError: part.IsError})
		}
	}
	return m
}

func FromMessages(msgs []provider.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = FromMessage(m)
	}
	return out
}

func toProvider(msgs []Message) []provider.Message {
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.message()
	}
	return out
}
