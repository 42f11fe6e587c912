package googleai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llms/googleai/internal/genaiutils"
	"google.golang.org/genai"
)

var (
	ErrNoContentInResponse   = errors.New("googleai: no content in generation response")
	ErrUnknownPartInResponse = errors.New("googleai: unknown part type in generation response")
)

const (
	CITATIONS = "citations"
	SAFETY    = "safety"
)

// GetName implements the Model interface.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(
	ctx context.Context,
	messages []llms.Message,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
		TopP:        g.opts.DefaultTopP,
		TopK:        g.opts.DefaultTopK,
	}, options...)

	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		CandidateCount:  1,
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
		TopK:            genaiutils.Float32Ptr(float32(opts.TopK)),
		Seed:            genaiutils.Int32Ptr(int32(opts.Seed)),
	}

	for _, category := range []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	} {
		callCfg.SafetySettings = append(callCfg.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: g.opts.HarmThreshold,
		})
	}

	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(opts.Tools); err != nil {
		return nil, err
	}

	history, system, err := ConvertMessages(messages)
	if err != nil {
		return nil, err
	}
	callCfg.SystemInstruction = system

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	if err != nil {
		return nil, errors.Wrap(err, "googleai: failed to generate content")
	}
	if len(resp.Candidates) == 0 {
		return nil, llms.NewProtocolError(ErrNoContentInResponse, "googleai: empty response")
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

// convertCandidates converts a sequence of genai.Candidate to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		var texts []string
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.Thought:
				case part.FunctionCall != nil:
					args := part.FunctionCall.Args
					if args == nil {
						args = map[string]any{}
					}
					b, err := json.Marshal(args)
					if err != nil {
						return nil, llms.NewProtocolError(err, "googleai: function call %q arguments", part.FunctionCall.Name)
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   part.FunctionCall.ID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				case part.Text != "":
					texts = append(texts, part.Text)
				default:
					return nil, llms.NewProtocolError(ErrUnknownPartInResponse, "googleai: not text or function call")
				}
			}
		}

		metadata := map[string]any{
			CITATIONS: candidate.CitationMetadata,
			SAFETY:    candidate.SafetyRatings,
		}
		if usage != nil {
			metadata["InputTokens"] = usage.PromptTokenCount
			metadata["CacheReadTokens"] = usage.CachedContentTokenCount
			metadata["OutputTokens"] = usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount
			metadata["TotalTokens"] = usage.TotalTokenCount
		}

		contentResponse.Choices = append(contentResponse.Choices,
			&llms.ContentChoice{
				Content:        strings.Join(texts, ""),
				StopReason:     string(candidate.FinishReason),
				GenerationInfo: metadata,
				ToolCalls:      toolCalls,
			})
	}

	if usage != nil {
		contentResponse.Usage = llms.NewUsage(
			int64(usage.PromptTokenCount),
			int64(usage.CandidatesTokenCount+usage.ToolUsePromptTokenCount+usage.ThoughtsTokenCount),
		)
	}
	return &contentResponse, nil
}

// ConvertMessages converts the thread to genai contents and the system instruction.
// Consecutive tool messages are merged into a single user turn of function responses.
func ConvertMessages(messages []llms.Message) ([]*genai.Content, *genai.Content, error) {
	history := make([]*genai.Content, 0, len(messages))
	var system []*genai.Part
	var pendingResults []*genai.Part

	flush := func() {
		if len(pendingResults) > 0 {
			history = append(history, &genai.Content{Role: genai.RoleUser, Parts: pendingResults})
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
			if text := msg.GetText(); text != "" {
				system = append(system, &genai.Part{Text: text})
			}
		case llms.RoleHuman:
			history = append(history, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.GetTurnText()}},
			})
		case llms.RoleAI:
			parts, err := convertModelParts(msg.Parts)
			if err != nil {
				return nil, nil, err
			}
			if len(parts) == 0 {
				continue
			}
			history = append(history, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case llms.RoleTool:
			tr, ok := msg.GetToolResponse()
			if !ok {
				return nil, nil, errors.New("googleai: tool message without response")
			}
			key := "response"
			if tr.IsError {
				key = "error"
			}
			pendingResults = append(pendingResults, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       tr.ToolCallID,
					Name:     tr.Name,
					Response: map[string]any{key: tr.Content},
				},
			})
		default:
			return nil, nil, errors.Wrapf(llms.ErrUnexpectedRole, "googleai: role %v not supported", msg.Role)
		}
	}
	flush()

	var systemInstruction *genai.Content
	if len(system) > 0 {
		systemInstruction = &genai.Content{Parts: system}
	}
	return history, systemInstruction, nil
}

func convertModelParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	converted := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case llms.TextContent:
			if p.Text != "" {
				converted = append(converted, &genai.Part{Text: p.Text})
			}
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return nil, errors.Errorf("googleai: tool call %s without function", p.ID)
			}
			var args map[string]any
			if err := json.Unmarshal([]byte(p.FunctionCall.Arguments), &args); err != nil || args == nil {
				args = map[string]any{}
			}
			converted = append(converted, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   p.ID,
					Name: p.FunctionCall.Name,
					Args: args,
				},
			})
		}
	}
	return converted, nil
}
