package agent

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

// Tool error kinds reported to the model.
const (
	ToolErrorUnknownTool      = "unknown_tool"
	ToolErrorInvalidArguments = "invalid_arguments"
	ToolErrorTimeout          = "timeout"
	ToolErrorFailed           = "tool_failed"
)

// ToolError is the content of a tool result for a failed call.
type ToolError struct {
	Error     string   `json:"error"`
	Tool      string   `json:"tool"`
	Message   string   `json:"message"`
	Available []string `json:"available_tools,omitempty"`
}

// dispatch executes the calls and returns one tool message per call, in request order.
func (a *Agent) dispatch(ctx context.Context, calls []llms.ToolCallRequest) []llms.Message {
	results := make([]llms.ToolCallResponse, len(calls))

	if a.cfg.ParallelTools && len(calls) > 1 {
		var wg sync.WaitGroup
		wg.Add(len(calls))
		for i, call := range calls {
			go func() {
				defer wg.Done()
				results[i] = a.execute(ctx, call)
			}()
		}
		wg.Wait()
	} else {
		for i, call := range calls {
			results[i] = a.execute(ctx, call)
		}
	}

	msgs := make([]llms.Message, len(results))
	for i, r := range results {
		msgs[i] = llms.MessageFromToolResponse(llms.RoleTool, r)
	}
	return msgs
}

// execute runs one call. Every failure is returned as an error result.
func (a *Agent) execute(ctx context.Context, call llms.ToolCallRequest) (res llms.ToolCallResponse) {
	res = llms.ToolCallResponse{
		ToolCallID: call.CallID,
		Name:       call.ToolName,
	}
	cb := a.cfg.Callback

	fail := func(kind string, err error, available ...string) llms.ToolCallResponse {
		if cb != nil {
			cb.OnToolError(ctx, a.cfg.Name, call, err)
		}
		logger.ContextKV(ctx, xlog.WARNING,
			"agent", a.cfg.Name,
			"status", "tool_call_failed",
			"tool", call.ToolName,
			"call_id", call.CallID,
			"kind", kind,
			"err", err.Error(),
		)
		res.IsError = true
		res.Content = llmutils.ToJSON(ToolError{
			Error:     kind,
			Tool:      call.ToolName,
			Message:   err.Error(),
			Available: available,
		})
		return res
	}

	if call.ArgumentsErr != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, call.ToolName)
		return fail(ToolErrorInvalidArguments, errors.WithMessagef(call.ArgumentsErr, "invalid arguments for %s", call.ToolName))
	}

	d, err := a.registry.Resolve(call.ToolName)
	if err != nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, call.ToolName)
		var unknown *tools.UnknownToolError
		if errors.As(err, &unknown) {
			return fail(ToolErrorUnknownTool, err, unknown.Available...)
		}
		return fail(ToolErrorUnknownTool, err)
	}

	if cb != nil {
		cb.OnToolStart(ctx, a.cfg.Name, call)
	}

	started := time.Now()
	out, err := a.call(ctx, d, call.Arguments)
	metricskey.PerfToolCall.MeasureSince(started, call.ToolName)

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			metricskey.StatsToolCallsTimedOut.IncrCounter(1, call.ToolName)
			after := a.cfg.ToolTimeout
			var terr *tools.TimeoutError
			if errors.As(err, &terr) && terr.After < after {
				after = terr.After
			}
			return fail(ToolErrorTimeout, errors.Newf("tool %s timed out after %s", call.ToolName, after))
		case errors.Is(err, tools.ErrInvalidArguments):
			metricskey.StatsToolCallsFailed.IncrCounter(1, call.ToolName)
			return fail(ToolErrorInvalidArguments, err)
		default:
			metricskey.StatsToolCallsFailed.IncrCounter(1, call.ToolName)
			return fail(ToolErrorFailed, err)
		}
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, call.ToolName)
	if cb != nil {
		cb.OnToolEnd(ctx, a.cfg.Name, call, out)
	}
	res.Content = out
	return res
}

// call invokes the tool within the tool timeout.
// The call is abandoned when the timeout expires, even if the tool ignores ctx.
func (a *Agent) call(ctx context.Context, d *tools.Descriptor, args map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ToolTimeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Newf("tool %s panicked: %v", d.Name, r)}
			}
		}()
		out, err := d.Call(ctx, args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() != nil {
			return "", errors.Wrapf(ctx.Err(), "tool %s: %s", d.Name, o.err.Error())
		}
		return o.out, o.err
	case <-ctx.Done():
		return "", errors.Wrapf(ctx.Err(), "tool %s", d.Name)
	}
}
