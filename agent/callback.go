package agent

import (
	"context"

	"github.com/effective-security/toolagent/pkg/llms"
)

// Callback receives the events of the answer loop.
// Tool events may be delivered concurrently when tools run in parallel.
type Callback interface {
	OnAnswerStart(ctx context.Context, agent, threadID, input string)
	OnAnswerEnd(ctx context.Context, agent string, res *Result)
	OnModelCallStart(ctx context.Context, agent, model string, messages []llms.Message)
	OnModelCallEnd(ctx context.Context, agent, model string, resp *llms.ModelResponse, err error)
	OnToolStart(ctx context.Context, agent string, call llms.ToolCallRequest)
	OnToolEnd(ctx context.Context, agent string, call llms.ToolCallRequest, output string)
	OnToolError(ctx context.Context, agent string, call llms.ToolCallRequest, err error)
}
