package llms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llmutils"
)

// ResponseKind tags the ModelResponse variant.
type ResponseKind string

const (
	// FinalAnswer is a terminal response with text and no tool calls.
	FinalAnswer ResponseKind = "final_answer"
	// ToolRequest is a response requesting one or more tool calls.
	ToolRequest ResponseKind = "tool_request"
)

// ToolCallRequest is a single tool invocation requested by the model.
type ToolCallRequest struct {
	// CallID correlates the request with its tool result, unique within a response.
	CallID string `json:"call_id"`
	// ToolName is the name of the requested tool.
	ToolName string `json:"tool_name"`
	// Arguments are the decoded call arguments.
	Arguments map[string]any `json:"arguments"`
	// RawArguments is the arguments text as produced by the model.
	RawArguments string `json:"raw_arguments,omitempty"`
	// ArgumentsErr is set when RawArguments could not be decoded into an object.
	ArgumentsErr error `json:"-"`
}

// ModelResponse is either a FinalAnswer or a ToolRequest.
type ModelResponse struct {
	Kind ResponseKind `json:"kind"`
	// Text is the answer for FinalAnswer, or optional commentary for ToolRequest.
	Text string `json:"text,omitempty"`
	// Calls are the requested tool calls in the order the model produced them.
	Calls []ToolCallRequest `json:"calls,omitempty"`
	// Usage is nil when the backend omitted it.
	Usage *Usage `json:"usage,omitempty"`
}

// IsFinal returns true for FinalAnswer.
func (r *ModelResponse) IsFinal() bool {
	return r.Kind == FinalAnswer
}

// AssistantMessage returns the assistant Message that records this response
// in a thread. Tool call arguments are normalized to a JSON object so the
// thread can be replayed to any backend.
func (r *ModelResponse) AssistantMessage() Message {
	msg := Message{
		Role:  RoleAI,
		Usage: r.Usage,
	}
	if r.Text != "" {
		msg.Parts = append(msg.Parts, TextPart(r.Text))
	}
	for _, call := range r.Calls {
		args := "{}"
		if call.ArgumentsErr == nil && call.Arguments != nil {
			if js, err := json.Marshal(call.Arguments); err == nil {
				args = string(js)
			}
		}
		msg.Parts = append(msg.Parts, ToolCall{
			ID:   call.CallID,
			Type: "function",
			FunctionCall: &FunctionCall{
				Name:      call.ToolName,
				Arguments: args,
			},
		})
	}
	return msg
}

// ParseContentResponse converts a backend response into a ModelResponse.
// Text of all choices is joined, tool calls are collected in choice order.
func ParseContentResponse(resp *ContentResponse) (*ModelResponse, error) {
	if resp == nil {
		return nil, &ModelProtocolError{Reason: "response has no choices"}
	}
	if len(resp.Choices) == 0 {
		return nil, &ModelProtocolError{Reason: "response has no choices", Usage: resp.Usage}
	}

	res := &ModelResponse{
		Usage: resp.Usage,
	}
	if res.Usage == nil {
		res.Usage = UsageFromGenerationInfo(resp.Choices)
	}

	var texts []string
	seen := map[string]bool{}
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		if strings.TrimSpace(choice.Content) != "" {
			texts = append(texts, choice.Content)
		}
		for _, tc := range choice.ToolCalls {
			if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
				return nil, &ModelProtocolError{Reason: fmt.Sprintf("tool call %q has no function name", tc.ID), Usage: res.Usage}
			}
			id := tc.ID
			if id == "" {
				id = fmt.Sprintf("%s_%d", tc.FunctionCall.Name, len(res.Calls))
			}
			if seen[id] {
				return nil, &ModelProtocolError{Reason: fmt.Sprintf("duplicate tool call id %q", id), Usage: res.Usage}
			}
			seen[id] = true

			args, err := ParseArguments(tc.FunctionCall.Arguments)
			res.Calls = append(res.Calls, ToolCallRequest{
				CallID:       id,
				ToolName:     tc.FunctionCall.Name,
				Arguments:    args,
				RawArguments: tc.FunctionCall.Arguments,
				ArgumentsErr: err,
			})
		}
	}

	res.Text = strings.Join(texts, "\n")
	if len(res.Calls) > 0 {
		res.Kind = ToolRequest
	} else {
		res.Kind = FinalAnswer
	}
	return res, nil
}

// ParseArguments decodes tool call arguments into an object.
// Empty input is an empty object. Malformed JSON is cleaned of fences
// and surrounding text, then retried with a lenient parser.
func ParseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}

	var args map[string]any
	err := json.Unmarshal([]byte(raw), &args)
	if err == nil {
		if args == nil {
			args = map[string]any{}
		}
		return args, nil
	}

	cleaned := llmutils.ExtractJSON(raw)
	var lenient map[string]any
	if lerr := ljson.Unmarshal(cleaned, &lenient); lerr == nil && lenient != nil {
		return lenient, nil
	}
	return nil, errors.Wrap(err, "arguments are not a JSON object")
}
