// Package callbacks provides agent.Callback implementations for
// printing, logging and collecting run statistics.
package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/xlog"
)

var (
	_ agent.Callback = (*Noop)(nil)
	_ agent.Callback = (*Printer)(nil)
	_ agent.Callback = (*PackageLogger)(nil)
	_ agent.Callback = (*Fanout)(nil)
	_ agent.Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault prints the events
	ModeDefault Mode = iota
	// ModeVerbose prints the events with tool outputs and model texts
	ModeVerbose
)

// Fanout forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []agent.Callback
}

func NewFanout(callbacks ...agent.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback agent.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnAnswerStart(ctx context.Context, agentName, threadID, input string) {
	for _, cb := range l.callbacks {
		cb.OnAnswerStart(ctx, agentName, threadID, input)
	}
}

func (l *Fanout) OnAnswerEnd(ctx context.Context, agentName string, res *agent.Result) {
	for _, cb := range l.callbacks {
		cb.OnAnswerEnd(ctx, agentName, res)
	}
}

func (l *Fanout) OnModelCallStart(ctx context.Context, agentName, model string, messages []llms.Message) {
	for _, cb := range l.callbacks {
		cb.OnModelCallStart(ctx, agentName, model, messages)
	}
}

func (l *Fanout) OnModelCallEnd(ctx context.Context, agentName, model string, resp *llms.ModelResponse, err error) {
	for _, cb := range l.callbacks {
		cb.OnModelCallEnd(ctx, agentName, model, resp, err)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, agentName string, call llms.ToolCallRequest) {
	for _, cb := range l.callbacks {
		cb.OnToolStart(ctx, agentName, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, agentName string, call llms.ToolCallRequest, output string) {
	for _, cb := range l.callbacks {
		cb.OnToolEnd(ctx, agentName, call, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, agentName string, call llms.ToolCallRequest, err error) {
	for _, cb := range l.callbacks {
		cb.OnToolError(ctx, agentName, call, err)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnAnswerStart(context.Context, string, string, string) {}
func (l *Noop) OnAnswerEnd(context.Context, string, *agent.Result) {}
func (l *Noop) OnModelCallStart(context.Context, string, string, []llms.Message) {}
func (l *Noop) OnModelCallEnd(context.Context, string, string, *llms.ModelResponse, error) {}
func (l *Noop) OnToolStart(context.Context, string, llms.ToolCallRequest) {}
func (l *Noop) OnToolEnd(context.Context, string, llms.ToolCallRequest, string) {}
func (l *Noop) OnToolError(context.Context, string, llms.ToolCallRequest, error) {}

// Printer prints the events to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnAnswerStart(_ context.Context, agentName, threadID, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Answer Start: %s, thread %s\n", agentName, threadID)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", input)
	}
}

func (l *Printer) OnAnswerEnd(_ context.Context, agentName string, res *agent.Result) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Answer End: %s: %s, %d iterations, %d input tokens, %d output tokens\n",
		agentName, res.Status, res.Iterations, res.InputTokens, res.OutputTokens)
}

func (l *Printer) OnModelCallStart(_ context.Context, agentName, model string, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Call: %s: %s model, %d messages\n", agentName, model, len(messages))
}

func (l *Printer) OnModelCallEnd(_ context.Context, agentName, model string, resp *llms.ModelResponse, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if err != nil {
		fmt.Fprintf(l.Out, "Model Call Error: %s: %s model: %s\n", agentName, model, err.Error())
		return
	}
	fmt.Fprintf(l.Out, "Model Call End: %s: %s model, %s, %d tool calls\n", agentName, model, resp.Kind, len(resp.Calls))
	if l.Mode == ModeVerbose && resp.Text != "" && !resp.IsFinal() {
		fmt.Fprintln(l.Out, resp.Text)
	}
}

func (l *Printer) OnToolStart(_ context.Context, agentName string, call llms.ToolCallRequest) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", call.ToolName, agentName)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Input: %s\n", llmutils.ToJSON(call.Arguments))
	}
}

func (l *Printer) OnToolEnd(_ context.Context, agentName string, call llms.ToolCallRequest, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", call.ToolName, agentName)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", llmutils.Truncate(output, 512))
	}
}

func (l *Printer) OnToolError(_ context.Context, agentName string, call llms.ToolCallRequest, err error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s\n", call.ToolName, agentName, err.Error())
}

// PackageLogger logs the events.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnAnswerStart(ctx context.Context, agentName, threadID, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "answer_start",
		"agent", agentName,
		"thread_id", threadID,
		"input", llmutils.Truncate(input, 64),
	)
}

func (l *PackageLogger) OnAnswerEnd(ctx context.Context, agentName string, res *agent.Result) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "answer_end",
		"agent", agentName,
		"status", res.Status,
		"iterations", res.Iterations,
	)
}

func (l *PackageLogger) OnModelCallStart(ctx context.Context, agentName, model string, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_start",
		"agent", agentName,
		"model", model,
		"messages", len(messages),
	)
}

func (l *PackageLogger) OnModelCallEnd(ctx context.Context, agentName, model string, resp *llms.ModelResponse, err error) {
	if err != nil {
		l.logger.ContextKV(ctx, xlog.ERROR,
			"event", "model_call_error",
			"agent", agentName,
			"model", model,
			"err", err.Error(),
		)
		return
	}
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_call_end",
		"agent", agentName,
		"model", model,
		"kind", resp.Kind,
		"calls", len(resp.Calls),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, agentName string, call llms.ToolCallRequest) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"agent", agentName,
		"tool", call.ToolName,
		"call_id", call.CallID,
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, agentName string, call llms.ToolCallRequest, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"agent", agentName,
		"tool", call.ToolName,
		"call_id", call.CallID,
		"output", llmutils.Truncate(output, 64),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, agentName string, call llms.ToolCallRequest, err error) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"agent", agentName,
		"tool", call.ToolName,
		"call_id", call.CallID,
		"err", err.Error(),
	)
}
