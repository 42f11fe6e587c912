package llms

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned by backends for a role they cannot encode.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role identifies the author of a message.
type Role string

// Roles of a thread.
const (
	RoleAI     Role = "ai"
	RoleHuman  Role = "human"
	RoleSystem Role = "system"
	RoleTool   Role = "tool"
)

// Message is one turn of a thread.
// An assistant turn asking for tools carries ToolCall parts.
// A tool turn carries exactly one ToolCallResponse part.
// Usage is set only on assistant turns returned by a backend.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
	Usage *Usage        `json:"usage,omitempty"`
}

// ContentPart is a text, tool call or tool response part.
type ContentPart interface {
	isPart()
}

// TextContent is a plain text part.
type TextContent struct {
	Text string `json:"text"`
}

// TextPart wraps s as a part.
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

func (tc TextContent) String() string { return tc.Text }

func (TextContent) isPart() {}

// FunctionCall names the tool and carries the raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID string `json:"id"`
	// Type is "function".
	Type         string        `json:"type"`
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (tc ToolCall) String() string {
	if tc.FunctionCall == nil {
		return "ToolCall: " + tc.ID
	}
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
}

func (ToolCall) isPart() {}

// ToolCallResponse is the outcome of one tool call.
// IsError marks Content as a failure description.
type ToolCallResponse struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

func (tr ToolCallResponse) String() string {
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tr.ToolCallID, tr.Name, len(tr.Content))
}

func (ToolCallResponse) isPart() {}

// ContentResponse is what a backend returns for one call.
type ContentResponse struct {
	Choices []*ContentChoice
	// Usage is nil when the backend does not report token counts.
	Usage *Usage
}

// ContentChoice is a candidate assistant turn.
type ContentChoice struct {
	Content        string         `json:"content"`
	StopReason     string         `json:"stop_reason"`
	GenerationInfo map[string]any `json:"generation_info"`
	ToolCalls      []ToolCall     `json:"tool_calls"`
}

// MessageFromParts builds a message from parts as given.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{Role: role, Parts: parts}
}

// MessageFromTextParts builds a message with one text part per string.
func MessageFromTextParts(role Role, texts ...string) Message {
	parts := make([]ContentPart, len(texts))
	for i, s := range texts {
		parts[i] = TextPart(s)
	}
	return Message{Role: role, Parts: parts}
}

// MessageFromToolCalls builds an assistant turn from copies of calls.
func MessageFromToolCalls(role Role, calls ...ToolCall) Message {
	parts := make([]ContentPart, len(calls))
	for i, c := range calls {
		if c.FunctionCall != nil {
			fc := *c.FunctionCall
			c.FunctionCall = &fc
		}
		parts[i] = c
	}
	return Message{Role: role, Parts: parts}
}

// MessageFromToolResponse builds a tool turn.
func MessageFromToolResponse(role Role, resp ToolCallResponse) Message {
	return MessageFromParts(role, resp)
}

// GetText joins the non-empty text parts with newlines.
func (m Message) GetText() string {
	var texts []string
	for _, p := range m.Parts {
		if tc, ok := p.(TextContent); ok && tc.Text != "" {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// EmptyTurnText is sent in place of an empty human turn.
// Gemini and Anthropic reject requests without user content.
const EmptyTurnText = "(empty message)"

// GetTurnText is GetText with EmptyTurnText for a turn without text.
func (m Message) GetTurnText() string {
	if text := m.GetText(); text != "" {
		return text
	}
	return EmptyTurnText
}

// GetToolCalls returns the tool call parts in order.
func (m Message) GetToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCall); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// GetToolResponse returns the first tool response part.
func (m Message) GetToolResponse() (ToolCallResponse, bool) {
	for _, p := range m.Parts {
		if tr, ok := p.(ToolCallResponse); ok {
			return tr, true
		}
	}
	return ToolCallResponse{}, false
}
