package openai

import (
	"context"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/x/values"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

var (
	ErrMissingToken     = errors.New("openai: missing API key, set it in the OPENAI_API_KEY environment variable")
	ErrUnsupportedRole  = errors.New("openai: unsupported message role")
	ErrMissingAzureBase = errors.New("openai: base URL is required for Azure")
)

type LLM struct {
	client   openai.Client
	model    string
	provider ProviderType
}

var _ llms.Model = (*LLM)(nil)

// New returns a new OpenAI LLM.
// The same backend serves Azure OpenAI deployments and OpenAI compatible endpoints.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:        os.Getenv(tokenEnvVarName),
		model:        os.Getenv(modelEnvVarName),
		baseURL:      os.Getenv(baseURLEnvVarName),
		organization: os.Getenv(organizationEnvVarName),
		provider:     ProviderOpenAI,
		maxRetries:   2,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.token == "" {
		return nil, ErrMissingToken
	}
	o.model = values.StringsCoalesce(o.model, DefaultChatModel)

	sdkOpts := []option.RequestOption{
		option.WithMaxRetries(o.maxRetries),
	}
	switch o.provider {
	case ProviderAzure, ProviderAzureAD:
		if o.baseURL == "" {
			return nil, ErrMissingAzureBase
		}
		// azure example url:
		// /openai/deployments/{model}/chat/completions?api-version={api_version}
		base := strings.TrimRight(o.baseURL, "/") + "/openai/deployments/" + o.model
		sdkOpts = append(sdkOpts,
			option.WithBaseURL(base),
			option.WithQuery("api-version", values.StringsCoalesce(o.apiVersion, DefaultAPIVersion)),
		)
		if o.provider == ProviderAzureAD {
			sdkOpts = append(sdkOpts, option.WithAPIKey(o.token))
		} else {
			sdkOpts = append(sdkOpts, option.WithHeader("api-key", o.token))
		}
	default:
		sdkOpts = append(sdkOpts,
			option.WithAPIKey(o.token),
			option.WithBaseURL(values.StringsCoalesce(o.baseURL, DefaultBaseURL)),
		)
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	return &LLM{
		client:   openai.NewClient(sdkOpts...),
		model:    o.model,
		provider: o.provider,
	}, nil
}

// GetName implements the Model interface.
func (o *LLM) GetName() string {
	return o.model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	switch o.provider {
	case ProviderAzure, ProviderAzureAD:
		return llms.ProviderAzure
	default:
		return llms.ProviderOpenAI
	}
}

// GenerateContent implements the Model interface.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.NewCallOptions(llms.CallOptions{Model: o.model}, options...)

	chatMsgs, err := ToChatMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(opts.Model),
		Messages: chatMsgs,
		Tools:    ToTools(opts.Tools),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		params.Temperature = openai.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = openai.Float(opts.TopP)
	}
	if opts.Seed != 0 {
		params.Seed = openai.Int(int64(opts.Seed))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if opts.ToolChoice != "" && len(params.Tools) > 0 {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(opts.ToolChoice)}
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to create chat completion")
	}
	return toContentResponse(result), nil
}

func toContentResponse(result *openai.ChatCompletion) *llms.ContentResponse {
	choices := make([]*llms.ContentChoice, 0, len(result.Choices))
	for _, c := range result.Choices {
		choice := &llms.ContentChoice{
			Content:    c.Message.Content,
			StopReason: c.FinishReason,
			GenerationInfo: map[string]any{
				"InputTokens":     result.Usage.PromptTokens,
				"OutputTokens":    result.Usage.CompletionTokens,
				"TotalTokens":     result.Usage.TotalTokens,
				"ReasoningTokens": result.Usage.CompletionTokensDetails.ReasoningTokens,
			},
		}
		for _, tc := range c.Message.ToolCalls {
			if tc.Type != "" && tc.Type != "function" {
				continue
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   tc.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		choices = append(choices, choice)
	}

	resp := &llms.ContentResponse{Choices: choices}
	if result.Usage.PromptTokens > 0 || result.Usage.CompletionTokens > 0 {
		resp.Usage = &llms.Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
			TotalTokens:  result.Usage.TotalTokens,
		}
	}
	return resp
}

// ToChatMessages converts messages to Chat Completions messages.
func ToChatMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	res := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			res = append(res, openai.SystemMessage(msg.GetText()))
		case llms.RoleHuman:
			res = append(res, openai.UserMessage(msg.GetText()))
		case llms.RoleAI:
			res = append(res, assistantMessage(msg))
		case llms.RoleTool:
			tr, ok := msg.GetToolResponse()
			if !ok {
				return nil, errors.New("openai: tool message without response")
			}
			res = append(res, openai.ToolMessage(tr.Content, tr.ToolCallID))
		default:
			return nil, errors.WithMessagef(ErrUnsupportedRole, "openai: %v", msg.Role)
		}
	}
	return res, nil
}

func assistantMessage(msg llms.Message) openai.ChatCompletionMessageParamUnion {
	am := &openai.ChatCompletionAssistantMessageParam{}
	if text := msg.GetText(); text != "" {
		am.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}
	for _, tc := range msg.GetToolCalls() {
		if tc.FunctionCall == nil {
			continue
		}
		am.ToolCalls = append(am.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.FunctionCall.Name,
					Arguments: values.StringsCoalesce(tc.FunctionCall.Arguments, "{}"),
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: am}
}

// ToTools converts tool definitions to Chat Completions function tools.
func ToTools(tools []llms.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	res := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		props := tool.Function.SchemaProperties()
		if props == nil {
			props = map[string]any{}
		}
		params := shared.FunctionParameters{
			"type":       "object",
			"properties": props,
		}
		if req := tool.Function.SchemaRequired(); len(req) > 0 {
			params["required"] = req
		}
		def := shared.FunctionDefinitionParam{
			Name:       tool.Function.Name,
			Parameters: params,
		}
		if tool.Function.Description != "" {
			def.Description = openai.String(tool.Function.Description)
		}
		res = append(res, openai.ChatCompletionFunctionTool(def))
	}
	return res
}
