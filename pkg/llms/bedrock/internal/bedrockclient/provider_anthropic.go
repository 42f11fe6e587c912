package bedrockclient

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
)

// Ref: https://docs.aws.amazon.com/bedrock/latest/userguide/model-parameters-anthropic-claude-messages.html

// anthropicContent is a single content block of a message.
type anthropicContent struct {
	// One of: "text", "tool_use", "tool_result"
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`
	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	// One of: "user", "assistant"
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicTool struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	InputSchema anthropicInputSchema `json:"input_schema"`
}

type anthropicInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required,omitempty"`
}

type anthropicInput struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []*anthropicMessage `json:"messages"`
	Temperature      float64             `json:"temperature,omitempty"`
	TopP             float64             `json:"top_p,omitempty"`
	TopK             int                 `json:"top_k,omitempty"`
	StopSequences    []string            `json:"stop_sequences,omitempty"`
	Tools            []anthropicTool     `json:"tools,omitempty"`
}

type anthropicOutputContent struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicOutput struct {
	ID         string                   `json:"id"`
	Type       string                   `json:"type"`
	Role       string                   `json:"role"`
	Content    []anthropicOutputContent `json:"content"`
	StopReason string                   `json:"stop_reason"`
	Usage      struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicLatestVersion is the Bedrock messages API version.
const AnthropicLatestVersion = "bedrock-2023-05-31"

const (
	AnthropicRoleUser      = "user"
	AnthropicRoleAssistant = "assistant"
)

const (
	AnthropicMessageTypeText       = "text"
	AnthropicMessageTypeToolUse    = "tool_use"
	AnthropicMessageTypeToolResult = "tool_result"
	AnthropicMessageTypeThinking   = "thinking"
)

func createAnthropicCompletion(ctx context.Context,
	client InvokeModelAPI,
	modelID string,
	messages []llms.Message,
	options llms.CallOptions,
) (*llms.ContentResponse, error) {
	inputMessages, systemPrompt, err := processInputMessagesAnthropic(messages)
	if err != nil {
		return nil, err
	}

	input := anthropicInput{
		AnthropicVersion: AnthropicLatestVersion,
		MaxTokens:        getMaxTokens(options.MaxTokens, 2048),
		System:           systemPrompt,
		Messages:         inputMessages,
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		TopK:             options.TopK,
		StopSequences:    options.StopWords,
		Tools:            anthropicTools(options.Tools),
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to encode request")
	}

	resp, err := client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "bedrock: failed to invoke model")
	}

	var output anthropicOutput
	if err = json.Unmarshal(resp.Body, &output); err != nil {
		return nil, llms.NewProtocolError(err, "bedrock: invalid response body")
	}
	return toContentResponse(&output)
}

func toContentResponse(output *anthropicOutput) (*llms.ContentResponse, error) {
	choice := &llms.ContentChoice{
		StopReason: output.StopReason,
		GenerationInfo: map[string]any{
			"InputTokens":  output.Usage.InputTokens,
			"OutputTokens": output.Usage.OutputTokens,
			"TotalTokens":  output.Usage.InputTokens + output.Usage.OutputTokens,
			"ID":           output.ID,
		},
	}

	var texts []string
	for _, c := range output.Content {
		switch c.Type {
		case AnthropicMessageTypeText:
			texts = append(texts, c.Text)
		case AnthropicMessageTypeToolUse:
			args := strings.TrimSpace(string(c.Input))
			if args == "" || args == "null" {
				args = "{}"
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   c.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      c.Name,
					Arguments: args,
				},
			})
		case AnthropicMessageTypeThinking:
		default:
			return nil, llms.NewProtocolError(nil, "bedrock: unsupported content block %q", c.Type)
		}
	}
	choice.Content = strings.Join(texts, "\n")

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
		Usage:   llms.NewUsage(output.Usage.InputTokens, output.Usage.OutputTokens),
	}, nil
}

func anthropicTools(tools []llms.Tool) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	res := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		properties := tool.Function.SchemaProperties()
		if properties == nil {
			properties = map[string]any{}
		}
		res = append(res, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: anthropicInputSchema{
				Type:       "object",
				Properties: properties,
				Required:   tool.Function.SchemaRequired(),
			},
		})
	}
	return res
}

// processInputMessagesAnthropic converts the thread to the Bedrock Anthropic
// messages and returns the joined system prompt.
// Consecutive tool results are sent together in one user turn.
func processInputMessagesAnthropic(messages []llms.Message) ([]*anthropicMessage, string, error) {
	res := make([]*anthropicMessage, 0, len(messages))
	var system []string
	var pendingResults []anthropicContent

	flush := func() {
		if len(pendingResults) > 0 {
			res = append(res, &anthropicMessage{Role: AnthropicRoleUser, Content: pendingResults})
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		if len(msg.Parts) == 0 && msg.Role != llms.RoleHuman {
			continue
		}
		if msg.Role != llms.RoleTool {
			flush()
		}
		switch msg.Role {
		case llms.RoleSystem:
			system = append(system, msg.GetText())
		case llms.RoleHuman:
			res = append(res, &anthropicMessage{
				Role:    AnthropicRoleUser,
				Content: []anthropicContent{{Type: AnthropicMessageTypeText, Text: msg.GetTurnText()}},
			})
		case llms.RoleAI:
			content, err := assistantContent(msg)
			if err != nil {
				return nil, "", err
			}
			if len(content) == 0 {
				continue
			}
			res = append(res, &anthropicMessage{Role: AnthropicRoleAssistant, Content: content})
		case llms.RoleTool:
			tr, ok := msg.GetToolResponse()
			if !ok {
				return nil, "", errors.New("bedrock: tool message without response")
			}
			pendingResults = append(pendingResults, anthropicContent{
				Type:      AnthropicMessageTypeToolResult,
				ToolUseID: tr.ToolCallID,
				Content:   tr.Content,
				IsError:   tr.IsError,
			})
		default:
			return nil, "", errors.Wrapf(llms.ErrUnexpectedRole, "bedrock: role %v not supported", msg.Role)
		}
	}
	flush()

	return res, strings.Join(system, "\n"), nil
}

func assistantContent(msg llms.Message) ([]anthropicContent, error) {
	var content []anthropicContent
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			if p.Text != "" {
				content = append(content, anthropicContent{Type: AnthropicMessageTypeText, Text: p.Text})
			}
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return nil, errors.Errorf("bedrock: tool call %s without function", p.ID)
			}
			var input map[string]any
			if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &input); err != nil || input == nil {
				input = map[string]any{}
			}
			content = append(content, anthropicContent{
				Type:  AnthropicMessageTypeToolUse,
				ID:    p.ID,
				Name:  p.FunctionCall.Name,
				Input: input,
			})
		}
	}
	return content, nil
}
