package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
)

// RunStats are the counters of one answer.
type RunStats struct {
	ThreadID string
	RunID    string

	Duration           time.Duration
	Status             agent.Status
	ModelCalls         uint32
	ModelCallsFailed   uint32
	MessagesSent       uint32
	InputTokens        uint64
	OutputTokens       uint64
	ToolCalls          uint32
	ToolCallsSucceeded uint32
	ToolCallsFailed    uint32
}

// Scratchpad collects RunStats and a transcript per thread.
// The run is identified by the thread context of ctx.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

type run struct {
	stats   RunStats
	started time.Time
	lock    sync.Mutex
	w       bytes.Buffer
}

func (r *run) update(fn func(*RunStats)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	fn(&r.stats)
}

func (r *run) print(args ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.w.WriteString(strings.Join(args, " "))
	r.w.WriteString("\n")
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

// StartRun starts collecting for the thread of ctx.
func (l *Scratchpad) StartRun(ctx context.Context) {
	tc := chatmodel.GetThreadContext(ctx)
	if tc == nil {
		return
	}

	r := &run{
		stats: RunStats{
			ThreadID: tc.GetThreadID(),
			RunID:    tc.RunID(),
		},
		started: time.Now(),
	}
	l.lock.Lock()
	l.runs[tc.GetThreadID()] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
}

// EndRun returns the stats and the transcript of the run, and forgets it.
func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	r := l.getRun(ctx)
	if r == nil {
		return nil, nil
	}

	r.lock.Lock()
	stats := r.stats
	r.lock.Unlock()
	stats.Duration = time.Since(r.started)

	r.print(fmt.Sprintf("Model calls: %d, Failed: %d, Messages: %d, Input Tokens: %d, Output Tokens: %d",
		stats.ModelCalls,
		stats.ModelCallsFailed,
		stats.MessagesSent,
		stats.InputTokens,
		stats.OutputTokens,
	))
	r.print(fmt.Sprintf("Tool calls: %d, Succeeded: %d, Failed: %d",
		stats.ToolCalls,
		stats.ToolCallsSucceeded,
		stats.ToolCallsFailed,
	))
	r.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, stats.ThreadID)
	l.lock.Unlock()

	return &stats, r.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	id := chatmodel.GetThreadID(ctx)
	if id == "" {
		return nil
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.runs[id]
}

func (l *Scratchpad) OnAnswerStart(ctx context.Context, agentName, _ string, input string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.print(agentName, "*** Answer Start ***")
	r.print(agentName, "Input:", input)
}

func (l *Scratchpad) OnAnswerEnd(ctx context.Context, agentName string, res *agent.Result) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.Status = res.Status })

	if l.mode == ModeVerbose {
		r.print(agentName, "Output:", res.Response)
	}
	r.print(agentName, "*** Answer End ***", string(res.Status))
}

func (l *Scratchpad) OnModelCallStart(ctx context.Context, agentName, model string, messages []llms.Message) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) {
		s.ModelCalls++
		s.MessagesSent += uint32(len(messages))
	})

	r.print(agentName, "*** Model Call ***", fmt.Sprintf("%s model, %d messages", model, len(messages)))
	if l.mode == ModeVerbose {
		r.print(agentName, printMessages(messages))
	}
}

func (l *Scratchpad) OnModelCallEnd(ctx context.Context, agentName, model string, resp *llms.ModelResponse, err error) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	if err != nil {
		r.update(func(s *RunStats) { s.ModelCallsFailed++ })
		r.print(agentName, "*** Model Call Error ***", err.Error())
		return
	}

	var in, out int64
	if resp.Usage != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
	}
	r.update(func(s *RunStats) {
		s.InputTokens += uint64(max(in, 0))
		s.OutputTokens += uint64(max(out, 0))
	})

	r.print(agentName, "*** Model Call End ***", fmt.Sprintf("%s model, %s, %d input tokens, %d output tokens", model, resp.Kind, in, out))
}

func (l *Scratchpad) OnToolStart(ctx context.Context, agentName string, call llms.ToolCallRequest) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.ToolCalls++ })
	r.print(agentName, call.ToolName, "*** Tool Start ***", call.CallID)
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, agentName string, call llms.ToolCallRequest, output string) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.ToolCallsSucceeded++ })
	if l.mode == ModeVerbose {
		r.print(agentName, call.ToolName, "Output:", output)
	}
	r.print(agentName, call.ToolName, "*** Tool End ***", call.CallID)
}

func (l *Scratchpad) OnToolError(ctx context.Context, agentName string, call llms.ToolCallRequest, err error) {
	r := l.getRun(ctx)
	if r == nil {
		return
	}
	r.update(func(s *RunStats) { s.ToolCallsFailed++ })
	r.print(agentName, call.ToolName, "*** Tool Error ***", err.Error())
}

func printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Role)
		texts := 0
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.TextContent:
				texts++
			case llms.ToolCall:
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}
		if texts > 0 {
			fmt.Fprintf(&buf, "  - %d texts\n", texts)
		}
	}
	return buf.String()
}
