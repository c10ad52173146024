package provider

// Role identifies the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a standardized prompt.
type Message struct {
	Role    Role
	Content []Part
}

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	var s string
	for _, p := range m.Content {
		if tp, ok := p.(TextPart); ok {
			s += tp.Text
		}
	}
	return s
}

// Part is a piece of message content.
type Part interface {
	part()
}

type TextPart struct {
	Text string
}

func (TextPart) part() {}

// FilePart carries binary content such as an image, either inline or by URL.
type FilePart struct {
	Data      []byte
	URL       string
	MediaType string
	Filename  string
}

func (FilePart) part() {}

// ToolCallPart records a tool call made by the assistant.
type ToolCallPart struct {
	ToolCallID string
	ToolName   string
	Input      string
}

func (ToolCallPart) part() {}

// ToolResultPart records the outcome of a tool call.
type ToolResultPart struct {
	ToolCallID string
	ToolName   string
	Output     any
	IsError    bool
}

func (ToolResultPart) part() {}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []Part{TextPart{Text: text}}}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []Part{TextPart{Text: text}}}
}

func UserMessageParts(parts ...Part) Message {
	return Message{Role: RoleUser, Content: parts}
}

func AssistantMessage(parts ...Part) Message {
	return Message{Role: RoleAssistant, Content: parts}
}

func ToolMessage(results ...ToolResultPart) Message {
	parts := make([]Part, len(results))
	for i, r := range results {
		parts[i] = r
	}
	return Message{Role: RoleTool, Content: parts}
}
