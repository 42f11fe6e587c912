package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/mocks/mockllms"
	"github.com/effective-security/toolagent/mocks/mocktools"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func final(text string, in, out int64) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
		Usage:   llms.NewUsage(in, out),
	}
}

func request(in, out int64, calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{ToolCalls: calls}},
		Usage:   llms.NewUsage(in, out),
	}
}

func call(id, name, args string) llms.ToolCall {
	return llms.ToolCall{ID: id, Type: "function", FunctionCall: &llms.FunctionCall{Name: name, Arguments: args}}
}

func local(name string, fn tools.CallableFunc) *tools.Descriptor {
	return &tools.Descriptor{Name: name, Description: "test tool " + name, Origin: tools.OriginLocal, Callable: fn}
}

func ok(out string) tools.CallableFunc {
	return func(context.Context, map[string]any) (string, error) { return out, nil }
}

func newModel(t *testing.T) *mockllms.MockModel {
	ctrl := gomock.NewController(t)
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("test-model").AnyTimes()
	return m
}

// recorder captures the messages of every model call
type recorder struct {
	lock  sync.Mutex
	calls [][]llms.Message
}

func (r *recorder) returns(resp *llms.ContentResponse, err error) func(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
	return func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
		r.lock.Lock()
		defer r.lock.Unlock()
		r.calls = append(r.calls, append([]llms.Message(nil), msgs...))
		return resp, err
	}
}

func roles(msgs []llms.Message) []llms.Role {
	res := make([]llms.Role, len(msgs))
	for i, m := range msgs {
		res[i] = m.Role
	}
	return res
}

func toolResponses(msgs []llms.Message) []llms.ToolCallResponse {
	var res []llms.ToolCallResponse
	for _, m := range msgs {
		if tr, ok := m.GetToolResponse(); ok {
			res = append(res, tr)
		}
	}
	return res
}

func newAgent(t *testing.T, m llms.Model, reg *tools.Registry, opts ...agent.Option) *agent.Agent {
	a, err := agent.New(llms.NewAdapter(m, time.Second), reg, opts...)
	require.NoError(t, err)
	return a
}

func loadThread(t *testing.T, a *agent.Agent, id string) []llms.Message {
	th, err := a.Store().Load(context.Background(), id)
	require.NoError(t, err)
	return th.Snapshot()
}

func TestNew(t *testing.T) {
	m := newModel(t)
	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	_, err = agent.New(nil, reg)
	assert.True(t, errors.Is(err, tools.ErrConfiguration))
	_, err = agent.New(llms.NewAdapter(m, 0), nil)
	assert.True(t, errors.Is(err, tools.ErrConfiguration))
	_, err = agent.New(llms.NewAdapter(m, 0), reg, agent.WithMaxIterations(0))
	assert.EqualError(t, err, "max iterations must be positive: 0: configuration error")

	a, err := agent.New(llms.NewAdapter(m, 0), reg, agent.WithName(""), agent.WithToolTimeout(-1))
	require.NoError(t, err)
	assert.Equal(t, agent.DefaultName, a.Name())
	assert.Equal(t, agent.DefaultToolTimeout, a.Config().ToolTimeout)
	assert.Equal(t, agent.DefaultMaxIterations, a.Config().MaxIterations)
	assert.True(t, a.Config().ParallelTools)
	assert.Equal(t, store.PolicyRetained, a.Store().Policy())
}

func TestAnswer_FinalAnswer(t *testing.T) {
	m := newModel(t)
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	rec := &recorder{}
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(rec.returns(final("Hello!", 12, 3), nil))

	sp, err := prompts.NewSystemPrompt("instructions", "You are {{ .AgentName }}. Tools: {{ join \", \" .Tools }}")
	require.NoError(t, err)
	a := newAgent(t, m, reg, agent.WithSystemPrompt(sp))

	res := a.Answer(context.Background(), "hi", "t1")
	require.NotNil(t, res)
	assert.Equal(t, agent.StatusSuccess, res.Status)
	assert.True(t, res.IsSuccess())
	assert.NoError(t, res.Err)
	assert.Equal(t, "Hello!", res.Response)
	assert.Equal(t, "t1", res.ThreadID)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, llms.Usage{InputTokens: 12, OutputTokens: 3, TotalTokens: 15}, res.Usage())

	require.Len(t, rec.calls, 1)
	sent := rec.calls[0]
	require.Len(t, sent, 2)
	assert.Equal(t, llms.RoleSystem, sent[0].Role)
	assert.Equal(t, "You are Helsinki. Tools: get_current_time", sent[0].GetText())
	assert.Equal(t, "hi", sent[1].GetText())

	// the system prompt is not stored
	stored := loadThread(t, a, "t1")
	assert.Empty(t, cmp.Diff([]llms.Role{llms.RoleHuman, llms.RoleAI}, roles(stored)))
	assert.Equal(t, "Hello!", stored[1].GetText())

	js, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"status": "success",
		"total_input_tokens_used": 12,
		"total_output_tokens": 3,
		"response": "Hello!",
		"thread_id": "t1",
		"iterations": 1
	}`, string(js))
}

func TestAnswer_NewThreadID(t *testing.T) {
	m := newModel(t)
	reg, err := tools.NewRegistry()
	require.NoError(t, err)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).Return(final("ok", 1, 1), nil)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "hi", "")
	assert.Equal(t, agent.StatusSuccess, res.Status)
	assert.NotEmpty(t, res.ThreadID)
}

func TestAnswer_EmptyMessage(t *testing.T) {
	m := newModel(t)
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	// empty text without tool calls is still a final answer
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).Return(final("", 0, 0), nil)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "", "t1")
	require.NotNil(t, res)
	assert.Equal(t, agent.StatusSuccess, res.Status)
	assert.Equal(t, "", res.Response)
	assert.Equal(t, llms.Usage{}, res.Usage())
}

func TestAnswer_UsageIsSumOfAllTurns(t *testing.T) {
	m := newModel(t)
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(10, 2, call("a", "get_current_time", "{}")), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{{ToolCalls: []llms.ToolCall{call("b", "get_current_time", "")}}}}, nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(final("It is noon.", 30, 7), nil),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "what time is it?", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)
	assert.Equal(t, 3, res.Iterations)

	var in, out int64
	for _, msg := range loadThread(t, a, "t1") {
		if msg.Role == llms.RoleAI && msg.Usage != nil {
			in += msg.Usage.InputTokens
			out += msg.Usage.OutputTokens
		}
	}
	assert.Equal(t, int64(40), in)
	assert.Equal(t, int64(9), out)
	assert.Equal(t, in, res.InputTokens)
	assert.Equal(t, out, res.OutputTokens)
}

func TestAnswer_ToolResultsInRequestOrder(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			var (
				inFlight atomic.Int32
				maxSeen  atomic.Int32
			)
			slow := func(name string, delay time.Duration) *tools.Descriptor {
				return local(name, func(ctx context.Context, _ map[string]any) (string, error) {
					n := inFlight.Add(1)
					defer inFlight.Add(-1)
					for {
						cur := maxSeen.Load()
						if n <= cur || maxSeen.CompareAndSwap(cur, n) {
							break
						}
					}
					time.Sleep(delay)
					return name + " done", nil
				})
			}

			reg, err := tools.NewRegistry(
				slow("t0", 60*time.Millisecond),
				slow("t1", 30*time.Millisecond),
				slow("t2", 1*time.Millisecond),
			)
			require.NoError(t, err)

			m := newModel(t)
			rec := &recorder{}
			gomock.InOrder(
				m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(rec.returns(request(1, 1,
						call("c0", "t0", "{}"),
						call("c1", "t1", "{}"),
						call("c2", "t2", "{}"),
					), nil)),
				m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(rec.returns(final("done", 1, 1), nil)),
			)

			a := newAgent(t, m, reg, agent.WithParallelTools(parallel))
			res := a.Answer(context.Background(), "run all", "t1")
			require.Equal(t, agent.StatusSuccess, res.Status, res.Response)

			require.Len(t, rec.calls, 2)
			second := rec.calls[1]
			assert.Empty(t, cmp.Diff(
				[]llms.Role{llms.RoleHuman, llms.RoleAI, llms.RoleTool, llms.RoleTool, llms.RoleTool},
				roles(second)))

			trs := toolResponses(second)
			require.Len(t, trs, 3)
			for i, tr := range trs {
				assert.Equal(t, fmt.Sprintf("c%d", i), tr.ToolCallID)
				assert.Equal(t, fmt.Sprintf("t%d done", i), tr.Content)
				assert.False(t, tr.IsError)
			}

			if parallel {
				assert.Greater(t, maxSeen.Load(), int32(1))
			} else {
				assert.Equal(t, int32(1), maxSeen.Load())
			}
		})
	}
}

func TestAnswer_ToolFailureDoesNotAbort(t *testing.T) {
	ctrl := gomock.NewController(t)
	x := mocktools.NewMockCallable(ctrl)
	x.EXPECT().Call(gomock.Any(), map[string]any{"q": "a"}).Return("", errors.New("backend is down"))

	reg, err := tools.NewRegistry(
		&tools.Descriptor{Name: "x", Origin: tools.OriginLocal, Callable: x},
		local("y", ok("42")),
	)
	require.NoError(t, err)

	m := newModel(t)
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(1, 1, call("c1", "x", `{"q":"a"}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(1, 1, call("c2", "y", `{}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(final("The answer is 42.", 1, 1), nil),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "question", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)
	assert.Equal(t, "The answer is 42.", res.Response)

	thread := loadThread(t, a, "t1")
	assert.Empty(t, cmp.Diff(
		[]llms.Role{llms.RoleHuman, llms.RoleAI, llms.RoleTool, llms.RoleAI, llms.RoleTool, llms.RoleAI},
		roles(thread)))

	trs := toolResponses(thread)
	require.Len(t, trs, 2)
	assert.True(t, trs[0].IsError)
	assert.Equal(t, "c1", trs[0].ToolCallID)
	var te agent.ToolError
	require.NoError(t, json.Unmarshal([]byte(trs[0].Content), &te))
	assert.Equal(t, agent.ToolErrorFailed, te.Error)
	assert.Equal(t, "x", te.Tool)
	assert.Equal(t, "backend is down", te.Message)

	assert.False(t, trs[1].IsError)
	assert.Equal(t, "42", trs[1].Content)
}

func TestAnswer_UnknownTool(t *testing.T) {
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(request(1, 1, call("c1", "nonexistent_tool", `{}`)), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(final("Sorry, I cannot do that.", 1, 1), nil)),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "do it", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)

	trs := toolResponses(rec.calls[1])
	require.Len(t, trs, 1)
	assert.True(t, trs[0].IsError)
	assert.Equal(t, "c1", trs[0].ToolCallID)
	assert.JSONEq(t, `{
		"error": "unknown_tool",
		"tool": "nonexistent_tool",
		"message": "unknown tool \"nonexistent_tool\", available tools: get_current_time",
		"available_tools": ["get_current_time"]
	}`, trs[0].Content)
}

type lookup struct {
	Name string `json:"name"`
}

func TestAnswer_InvalidArguments(t *testing.T) {
	fn, err := tools.NewFunction("lookup", "Look up a name",
		func(_ context.Context, in *lookup) (*string, error) {
			s := "found " + in.Name
			return &s, nil
		})
	require.NoError(t, err)
	reg, err := tools.NewRegistry(fn)
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(request(1, 1,
				call("c1", "lookup", `{"name": {"first": "x"}}`),
				call("c2", "lookup", `{"name": "bob"}`),
			), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(final("bob is found", 1, 1), nil)),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "find bob", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)

	trs := toolResponses(rec.calls[1])
	require.Len(t, trs, 2)
	assert.True(t, trs[0].IsError)
	var te agent.ToolError
	require.NoError(t, json.Unmarshal([]byte(trs[0].Content), &te))
	assert.Equal(t, agent.ToolErrorInvalidArguments, te.Error)
	assert.False(t, trs[1].IsError)
	assert.Equal(t, "found bob", trs[1].Content)
}

func TestAnswer_ToolTimeout(t *testing.T) {
	blocking := local("slow", func(ctx context.Context, _ map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	stuck := local("stuck", func(context.Context, map[string]any) (string, error) {
		time.Sleep(time.Second)
		return "late", nil
	})
	reg, err := tools.NewRegistry(blocking, stuck)
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(request(1, 1, call("c1", "slow", `{}`), call("c2", "stuck", `{}`)), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(final("timed out", 1, 1), nil)),
	)

	a := newAgent(t, m, reg, agent.WithToolTimeout(20*time.Millisecond))
	started := time.Now()
	res := a.Answer(context.Background(), "go", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)
	assert.Less(t, time.Since(started), 500*time.Millisecond)

	trs := toolResponses(rec.calls[1])
	require.Len(t, trs, 2)
	for _, tr := range trs {
		assert.True(t, tr.IsError)
		var te agent.ToolError
		require.NoError(t, json.Unmarshal([]byte(tr.Content), &te))
		assert.Equal(t, agent.ToolErrorTimeout, te.Error, tr.Name)
	}
}

func TestAnswer_ToolOwnTimeout(t *testing.T) {
	remote := local("dt_execute_dql", func(context.Context, map[string]any) (string, error) {
		return "", &tools.TimeoutError{Tool: "execute_dql", After: 20 * time.Millisecond}
	})
	reg, err := tools.NewRegistry(remote)
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(request(1, 1, call("c1", "dt_execute_dql", `{}`)), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(final("slow server", 1, 1), nil)),
	)

	a := newAgent(t, m, reg, agent.WithToolTimeout(time.Minute))
	res := a.Answer(context.Background(), "run query", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)

	trs := toolResponses(rec.calls[1])
	require.Len(t, trs, 1)
	var te agent.ToolError
	require.NoError(t, json.Unmarshal([]byte(trs[0].Content), &te))
	assert.Equal(t, agent.ToolErrorTimeout, te.Error)
	assert.Equal(t, "tool dt_execute_dql timed out after 20ms", te.Message)
}

func TestAnswer_ToolPanic(t *testing.T) {
	reg, err := tools.NewRegistry(local("boom", func(context.Context, map[string]any) (string, error) {
		panic("unexpected")
	}))
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(request(1, 1, call("c1", "boom", `{}`)), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(rec.returns(final("failed", 1, 1), nil)),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "go", "t1")
	require.Equal(t, agent.StatusSuccess, res.Status, res.Response)
	trs := toolResponses(rec.calls[1])
	require.Len(t, trs, 1)
	assert.True(t, trs[0].IsError)
	assert.Contains(t, trs[0].Content, "tool boom panicked: unexpected")
}

func TestAnswer_MaxIterations(t *testing.T) {
	reg, err := tools.NewRegistry(local("again", ok("more")))
	require.NoError(t, err)

	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("cap=%d", n), func(t *testing.T) {
			m := newModel(t)
			var calls atomic.Int32
			m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(context.Context, []llms.Message, ...llms.CallOption) (*llms.ContentResponse, error) {
					i := calls.Add(1)
					return request(2, 1, call(fmt.Sprintf("c%d", i), "again", `{}`)), nil
				}).
				Times(n)

			a := newAgent(t, m, reg, agent.WithMaxIterations(n))
			res := a.Answer(context.Background(), "loop", "t1")
			assert.Equal(t, agent.StatusMaxIterationsExceeded, res.Status)
			assert.True(t, errors.Is(res.Err, agent.ErrMaxIterationsExceeded))
			assert.Equal(t, res.Err.Error(), res.Response)
			assert.Equal(t, n, res.Iterations)
			assert.Equal(t, int32(n), calls.Load())
			assert.Equal(t, int64(2*n), res.InputTokens)
			assert.Equal(t, int64(n), res.OutputTokens)

			// complete cycles are kept
			thread := loadThread(t, a, "t1")
			assert.Len(t, thread, 1+2*n)
			assert.Equal(t, llms.RoleTool, thread[len(thread)-1].Role)
		})
	}
}

func TestAnswer_ModelError(t *testing.T) {
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	m := newModel(t)
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(5, 2, call("c1", "get_current_time", `{}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("connection refused")),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "time?", "t1")
	assert.Equal(t, agent.StatusError, res.Status)
	assert.True(t, errors.Is(res.Err, llms.ErrModelUnavailable))
	assert.Contains(t, res.Response, "connection refused")
	assert.Equal(t, 2, res.Iterations)
	// usage accumulated before the failure is kept
	assert.Equal(t, int64(5), res.InputTokens)
	assert.Equal(t, int64(2), res.OutputTokens)

	// the failed answer is not stored
	assert.Empty(t, loadThread(t, a, "t1"))
}

func TestAnswer_ProtocolError(t *testing.T) {
	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	m := newModel(t)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).
		Return(&llms.ContentResponse{}, nil)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "hi", "t1")
	assert.Equal(t, agent.StatusError, res.Status)
	assert.True(t, errors.Is(res.Err, llms.ErrModelProtocol))
}

func TestAnswer_ProtocolErrorKeepsUsage(t *testing.T) {
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	m := newModel(t)
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(10, 2, call("a", "get_current_time", `{}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(7, 3,
				call("x", "get_current_time", `{}`),
				call("x", "get_current_time", `{}`),
			), nil),
	)

	a := newAgent(t, m, reg)
	res := a.Answer(context.Background(), "time?", "t1")
	assert.Equal(t, agent.StatusError, res.Status)
	assert.True(t, errors.Is(res.Err, llms.ErrModelProtocol))
	assert.Contains(t, res.Response, `duplicate tool call id "x"`)
	assert.Equal(t, int64(17), res.InputTokens)
	assert.Equal(t, int64(5), res.OutputTokens)
	assert.Empty(t, loadThread(t, a, "t1"))
}

func TestAnswer_RetainedThread(t *testing.T) {
	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(rec.returns(final("Hi Ann", 1, 1), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(rec.returns(final("Your name is Ann", 1, 1), nil)),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(rec.returns(final("Who?", 1, 1), nil)),
	)

	a := newAgent(t, m, reg)
	ctx := context.Background()
	require.True(t, a.Answer(ctx, "I am Ann", "t1").IsSuccess())
	require.True(t, a.Answer(ctx, "What is my name?", "t1").IsSuccess())
	require.True(t, a.Answer(ctx, "What is my name?", "t2").IsSuccess())

	require.Len(t, rec.calls, 3)
	assert.Len(t, rec.calls[0], 1)
	assert.Len(t, rec.calls[1], 3)
	assert.Equal(t, "I am Ann", rec.calls[1][0].GetText())
	assert.Len(t, rec.calls[2], 1)
}

func TestAnswer_PerRequestThread(t *testing.T) {
	reg, err := tools.NewRegistry()
	require.NoError(t, err)

	st, err := store.NewThreadStore(store.PolicyPerRequest)
	require.NoError(t, err)

	m := newModel(t)
	rec := &recorder{}
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any()).DoAndReturn(rec.returns(final("ok", 1, 1), nil)).Times(2)

	a := newAgent(t, m, reg, agent.WithThreadStore(st))
	ctx := context.Background()
	require.True(t, a.Answer(ctx, "one", "t1").IsSuccess())
	require.True(t, a.Answer(ctx, "two", "t1").IsSuccess())

	require.Len(t, rec.calls, 2)
	assert.Len(t, rec.calls[1], 1)
	assert.Equal(t, "two", rec.calls[1][0].GetText())
}

func TestAnswer_SerializesThread(t *testing.T) {
	reg, err := tools.NewRegistry(local("wait", func(context.Context, map[string]any) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "waited", nil
	}))
	require.NoError(t, err)

	m := newModel(t)
	m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msgs []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			if msgs[len(msgs)-1].Role == llms.RoleHuman {
				return request(1, 1, call(fmt.Sprintf("c%d", len(msgs)), "wait", `{}`)), nil
			}
			return final("done", 1, 1), nil
		}).
		AnyTimes()

	a := newAgent(t, m, reg)

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := a.Answer(context.Background(), fmt.Sprintf("q%d", i), "shared")
			assert.Equal(t, agent.StatusSuccess, res.Status, res.Response)
		}()
	}
	wg.Wait()

	thread := loadThread(t, a, "shared")
	require.Len(t, thread, 4*n)
	for i := 0; i < n; i++ {
		cycle := thread[i*4 : i*4+4]
		assert.Empty(t, cmp.Diff(
			[]llms.Role{llms.RoleHuman, llms.RoleAI, llms.RoleTool, llms.RoleAI},
			roles(cycle)))
		calls := cycle[1].GetToolCalls()
		require.Len(t, calls, 1)
		tr, ok := cycle[2].GetToolResponse()
		require.True(t, ok)
		assert.Equal(t, calls[0].ID, tr.ToolCallID)
	}
}

func TestAnswer_LockTimeout(t *testing.T) {
	reg, err := tools.NewRegistry()
	require.NoError(t, err)
	m := newModel(t)

	locker := store.NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "t1")
	require.NoError(t, err)
	defer unlock()

	a := newAgent(t, m, reg, agent.WithLocker(locker))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := a.Answer(ctx, "hi", "t1")
	assert.Equal(t, agent.StatusError, res.Status)
	assert.True(t, errors.Is(res.Err, context.DeadlineExceeded))
	assert.Zero(t, res.Iterations)
}

type events struct {
	lock sync.Mutex
	list []string
}

func (e *events) add(s string) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.list = append(e.list, s)
}

func (e *events) OnAnswerStart(_ context.Context, _, _, input string) { e.add("start:" + input) }
func (e *events) OnAnswerEnd(_ context.Context, _ string, res *agent.Result) {
	e.add("end:" + string(res.Status))
}
func (e *events) OnModelCallStart(context.Context, string, string, []llms.Message) { e.add("model") }
func (e *events) OnModelCallEnd(_ context.Context, _, _ string, resp *llms.ModelResponse, _ error) {
	e.add("model_end:" + string(resp.Kind))
}
func (e *events) OnToolStart(_ context.Context, _ string, c llms.ToolCallRequest) {
	e.add("tool:" + c.ToolName)
}
func (e *events) OnToolEnd(_ context.Context, _ string, c llms.ToolCallRequest, _ string) {
	e.add("tool_end:" + c.ToolName)
}
func (e *events) OnToolError(_ context.Context, _ string, c llms.ToolCallRequest, _ error) {
	e.add("tool_error:" + c.ToolName)
}

func TestAnswer_Callback(t *testing.T) {
	reg, err := tools.NewRegistry(local("get_current_time", ok("noon")))
	require.NoError(t, err)

	m := newModel(t)
	gomock.InOrder(
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(1, 1, call("c1", "get_current_time", `{}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(request(1, 1, call("c2", "missing", `{}`)), nil),
		m.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(final("noon", 1, 1), nil),
	)

	ev := &events{}
	a := newAgent(t, m, reg, agent.WithCallback(ev))
	res := a.Answer(context.Background(), "time?", "t1")
	require.True(t, res.IsSuccess())

	assert.Equal(t, []string{
		"start:time?",
		"model", "model_end:tool_request",
		"tool:get_current_time", "tool_end:get_current_time",
		"model", "model_end:tool_request",
		"tool_error:missing",
		"model", "model_end:final_answer",
		"end:success",
	}, ev.list)
}
