package bedrockclient

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProvider(t *testing.T) {
	for id, exp := range map[string]string{
		"anthropic.claude-3-sonnet-20240229-v1:0":      "anthropic",
		"us.anthropic.claude-3-5-sonnet-20241022-v2:0": "anthropic",
		"eu.anthropic.claude-3-haiku-20240307-v1:0":    "anthropic",
		"us.amazon.nova-micro-v1:0":                    "amazon",
		"meta.llama3-2-1b-instruct-v1:0":               "meta",
		"anthropic":                                    "anthropic",
	} {
		assert.Equal(t, exp, GetProvider(id), id)
	}
}

func TestProcessInputMessages(t *testing.T) {
	thread := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be brief"),
		llms.MessageFromTextParts(llms.RoleSystem, "use tools"),
		llms.MessageFromTextParts(llms.RoleHuman, "time?"),
		llms.MessageFromToolCalls(llms.RoleAI,
			llms.ToolCall{ID: "c1", Type: "function", FunctionCall: &llms.FunctionCall{Name: "get_current_time", Arguments: "not json"}},
		),
		llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{ToolCallID: "c1", Name: "get_current_time", Content: "noon"}),
		llms.MessageFromTextParts(llms.RoleAI, "It is noon."),
	}

	msgs, system, err := processInputMessagesAnthropic(thread)
	require.NoError(t, err)
	assert.Equal(t, "be brief\nuse tools", system)
	require.Len(t, msgs, 4)
	assert.Equal(t, AnthropicRoleUser, msgs[0].Role)
	assert.Equal(t, AnthropicRoleAssistant, msgs[1].Role)
	assert.Equal(t, map[string]any{}, msgs[1].Content[0].Input)
	assert.Equal(t, AnthropicRoleUser, msgs[2].Role)
	assert.Equal(t, AnthropicMessageTypeToolResult, msgs[2].Content[0].Type)
	assert.Equal(t, "c1", msgs[2].Content[0].ToolUseID)
	assert.Equal(t, "It is noon.", msgs[3].Content[0].Text)

	_, _, err = processInputMessagesAnthropic([]llms.Message{llms.MessageFromTextParts("generic", "x")})
	assert.True(t, errors.Is(err, llms.ErrUnexpectedRole))

	_, _, err = processInputMessagesAnthropic([]llms.Message{llms.MessageFromTextParts(llms.RoleTool, "x")})
	assert.EqualError(t, err, "bedrock: tool message without response")
}

func TestProcessInputMessages_EmptyHumanTurn(t *testing.T) {
	msgs, system, err := processInputMessagesAnthropic([]llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be brief"),
		llms.MessageFromTextParts(llms.RoleHuman, ""),
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief", system)
	require.Len(t, msgs, 1)
	assert.Equal(t, AnthropicRoleUser, msgs[0].Role)
	assert.Equal(t, llms.EmptyTurnText, msgs[0].Content[0].Text)
}

func TestGetMaxTokens(t *testing.T) {
	assert.Equal(t, 2048, getMaxTokens(0, 2048))
	assert.Equal(t, 100, getMaxTokens(100, 2048))
}
