package callbacks_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/callbacks"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/xlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	toolCall = llms.ToolCallRequest{CallID: "c1", ToolName: "get_current_time", Arguments: map[string]any{"tz": "UTC"}}
	messages = []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, "be brief"),
		llms.MessageFromTextParts(llms.RoleHuman, "time?"),
	}
	toolResp = &llms.ModelResponse{Kind: llms.ToolRequest, Text: "checking", Calls: []llms.ToolCallRequest{toolCall}, Usage: llms.NewUsage(10, 2)}
	finalRes = &agent.Result{Status: agent.StatusSuccess, Response: "noon", Iterations: 2, InputTokens: 20, OutputTokens: 4}
)

func emit(ctx context.Context, cb agent.Callback) {
	cb.OnAnswerStart(ctx, "Helsinki", "t1", "time?")
	cb.OnModelCallStart(ctx, "Helsinki", "gpt-4o", messages)
	cb.OnModelCallEnd(ctx, "Helsinki", "gpt-4o", toolResp, nil)
	cb.OnToolStart(ctx, "Helsinki", toolCall)
	cb.OnToolEnd(ctx, "Helsinki", toolCall, "noon")
	cb.OnToolError(ctx, "Helsinki", toolCall, errors.New("test error"))
	cb.OnModelCallEnd(ctx, "Helsinki", "gpt-4o", nil, errors.New("unavailable"))
	cb.OnAnswerEnd(ctx, "Helsinki", finalRes)
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeVerbose))

	res := buf.String()
	assert.Contains(t, res, "Answer Start: Helsinki, thread t1")
	assert.Contains(t, res, "Input: time?")
	assert.Contains(t, res, "Model Call: Helsinki: gpt-4o model, 2 messages")
	assert.Contains(t, res, "Model Call End: Helsinki: gpt-4o model, tool_request, 1 tool calls")
	assert.Contains(t, res, "checking")
	assert.Contains(t, res, "Tool Start: get_current_time (Helsinki)")
	assert.Contains(t, res, `Input: {"tz":"UTC"}`)
	assert.Contains(t, res, "Tool End: get_current_time (Helsinki)")
	assert.Contains(t, res, "Output: noon")
	assert.Contains(t, res, "Tool Error: get_current_time (Helsinki): test error")
	assert.Contains(t, res, "Model Call Error: Helsinki: gpt-4o model: unavailable")
	assert.Contains(t, res, "Answer End: Helsinki: success, 2 iterations, 20 input tokens, 4 output tokens")

	buf.Reset()
	emit(context.Background(), callbacks.NewPrinter(&buf, callbacks.ModeDefault))
	assert.NotContains(t, buf.String(), "Output: noon")
	assert.NotContains(t, buf.String(), "Input: time?")
}

func TestFanout(t *testing.T) {
	var b1, b2 bytes.Buffer
	f := callbacks.NewFanout(callbacks.NewPrinter(&b1, callbacks.ModeDefault))
	f.Add(callbacks.NewPrinter(&b2, callbacks.ModeDefault))
	f.Add(callbacks.NewNoop())
	f.Add(callbacks.NewPackageLogger(xlog.NewPackageLogger("github.com/effective-security/toolagent", "callbacks_test")))

	emit(context.Background(), f)
	assert.NotEmpty(t, b1.String())
	assert.Equal(t, b1.String(), b2.String())
}

func TestScratchpad(t *testing.T) {
	sp := callbacks.NewScratchpad(callbacks.ModeVerbose)

	// no run in context
	emit(context.Background(), sp)
	stats, out := sp.EndRun(context.Background())
	assert.Nil(t, stats)
	assert.Nil(t, out)

	ctx := chatmodel.WithThreadContext(context.Background(), chatmodel.NewThreadContext("t1"))
	sp.StartRun(ctx)
	emit(ctx, sp)

	stats, out = sp.EndRun(ctx)
	require.NotNil(t, stats)
	assert.Equal(t, "t1", stats.ThreadID)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, agent.StatusSuccess, stats.Status)
	assert.Equal(t, uint32(1), stats.ModelCalls)
	assert.Equal(t, uint32(1), stats.ModelCallsFailed)
	assert.Equal(t, uint32(2), stats.MessagesSent)
	assert.Equal(t, uint64(10), stats.InputTokens)
	assert.Equal(t, uint64(2), stats.OutputTokens)
	assert.Equal(t, uint32(1), stats.ToolCalls)
	assert.Equal(t, uint32(1), stats.ToolCallsSucceeded)
	assert.Equal(t, uint32(1), stats.ToolCallsFailed)

	text := string(out)
	assert.Contains(t, text, "*** Run Started ***")
	assert.Contains(t, text, "[1] human:")
	assert.Contains(t, text, "Output: noon")
	assert.Contains(t, text, "Tool calls: 1, Succeeded: 1, Failed: 1")
	assert.Contains(t, text, "*** Run Ended.")

	// the run is forgotten
	stats, _ = sp.EndRun(ctx)
	assert.Nil(t, stats)
}
