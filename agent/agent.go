package agent

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/llmutils"
	"github.com/effective-security/toolagent/pkg/metricskey"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/xlog"
)

// Registry provides the tools to the Agent.
type Registry interface {
	Resolve(name string) (*tools.Descriptor, error)
	Catalog() []llms.Tool
	Names() []string
}

// Agent answers user messages with the model and the tools.
// It is safe for concurrent use; answers of one thread are serialized.
type Agent struct {
	adapter  *llms.Adapter
	registry Registry
	cfg      *Config
}

// New returns Agent
func New(adapter *llms.Adapter, registry Registry, opts ...Option) (*Agent, error) {
	cfg := NewConfig(opts...)
	if adapter == nil {
		return nil, errors.Wrap(tools.ErrConfiguration, "model adapter is required")
	}
	if registry == nil {
		return nil, errors.Wrap(tools.ErrConfiguration, "tool registry is required")
	}
	if cfg.MaxIterations < 1 {
		return nil, errors.Wrapf(tools.ErrConfiguration, "max iterations must be positive: %d", cfg.MaxIterations)
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore()
	}
	if cfg.Locker == nil {
		cfg.Locker = store.NewLocalLocker()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Agent{
		adapter:  adapter,
		registry: registry,
		cfg:      cfg,
	}, nil
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.cfg.Name
}

// Config returns the agent configuration.
func (a *Agent) Config() *Config {
	return a.cfg
}

// Store returns the thread store.
func (a *Agent) Store() store.ThreadStore {
	return a.cfg.Store
}

// Answer runs the loop for the user message in the thread.
// An empty threadID starts a new thread, its ID is returned in the Result.
// Answer never returns nil and never panics on model or tool failures.
func (a *Agent) Answer(ctx context.Context, message, threadID string) *Result {
	started := time.Now()
	if threadID == "" {
		threadID = chatmodel.NewThreadID()
	}
	if chatmodel.GetThreadID(ctx) != threadID {
		ctx = chatmodel.WithThreadContext(ctx, chatmodel.NewThreadContext(threadID))
	}

	res := &Result{ThreadID: threadID}
	acct := NewAccountant()

	if cb := a.cfg.Callback; cb != nil {
		cb.OnAnswerStart(ctx, a.cfg.Name, threadID, message)
	}

	err := a.run(ctx, message, threadID, acct, res)
	res.setUsage(acct.Total())
	if err != nil {
		res.fail(err)
	} else {
		res.Status = StatusSuccess
	}

	metricskey.StatsAgentAnswers.IncrCounter(1, a.cfg.Name, string(res.Status))
	metricskey.PerfAgentAnswer.MeasureSince(started, a.cfg.Name)

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", a.cfg.Name,
		"thread_id", threadID,
		"status", res.Status,
		"iterations", res.Iterations,
		"model_calls", acct.Records(),
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"elapsed", time.Since(started).String(),
	)

	if cb := a.cfg.Callback; cb != nil {
		cb.OnAnswerEnd(ctx, a.cfg.Name, res)
	}
	return res
}

func (a *Agent) run(ctx context.Context, message, threadID string, acct *Accountant, res *Result) error {
	unlock, err := a.cfg.Locker.Lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()

	thread, err := a.cfg.Store.Load(ctx, threadID)
	if err != nil {
		return errors.WithMessage(err, "failed to load thread")
	}

	system, err := a.systemMessage(threadID)
	if err != nil {
		return err
	}

	thread.Append(llms.MessageFromTextParts(llms.RoleHuman, message))

	for res.Iterations < a.cfg.MaxIterations {
		res.Iterations++
		metricskey.StatsAgentIterations.IncrCounter(1, a.cfg.Name)

		messages := thread.Snapshot()
		if system != nil {
			messages = append([]llms.Message{*system}, messages...)
		}

		resp, err := a.invoke(ctx, messages)
		if err != nil {
			var perr *llms.ModelProtocolError
			if errors.As(err, &perr) && perr.Usage != nil {
				acct.Record(perr.Usage)
			}
			// the thread is discarded, so the stored thread never ends with an unanswered turn
			return err
		}
		acct.Record(resp.Usage)
		thread.Append(resp.AssistantMessage())

		if resp.IsFinal() {
			res.Response = resp.Text
			a.save(ctx, thread)
			return nil
		}

		thread.Append(a.dispatch(ctx, resp.Calls)...)
	}

	logger.ContextKV(ctx, xlog.WARNING,
		"agent", a.cfg.Name,
		"status", "max_iterations_exceeded",
		"max_iterations", a.cfg.MaxIterations,
	)
	a.save(ctx, thread)
	return errors.Wrapf(ErrMaxIterationsExceeded, "agent %s: no final answer after %d model calls", a.cfg.Name, a.cfg.MaxIterations)
}

func (a *Agent) invoke(ctx context.Context, messages []llms.Message) (*llms.ModelResponse, error) {
	model := a.adapter.Model().GetName()
	if cb := a.cfg.Callback; cb != nil {
		cb.OnModelCallStart(ctx, a.cfg.Name, model, messages)
	}

	started := time.Now()
	resp, err := a.adapter.Invoke(ctx, messages, a.registry.Catalog())
	metricskey.PerfLLMCall.MeasureSince(started, a.cfg.Name, model)
	metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messages)), a.cfg.Name, model)

	if cb := a.cfg.Callback; cb != nil {
		cb.OnModelCallEnd(ctx, a.cfg.Name, model, resp, err)
	}

	if err != nil {
		metricskey.StatsLLMCallsFailed.IncrCounter(1, a.cfg.Name, model)
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", a.cfg.Name,
			"reason", "invoke",
			"model", model,
			"err", err.Error(),
		)
		return nil, err
	}

	if resp.Usage != nil {
		metricskey.StatsLLMInputTokens.IncrCounter(float64(resp.Usage.InputTokens), a.cfg.Name, model)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(resp.Usage.OutputTokens), a.cfg.Name, model)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"agent", a.cfg.Name,
		"status", "model_response",
		"kind", resp.Kind,
		"calls", len(resp.Calls),
		"text", llmutils.Truncate(resp.Text, 64),
	)
	return resp, nil
}

func (a *Agent) systemMessage(threadID string) (*llms.Message, error) {
	if a.cfg.SystemPrompt == nil {
		return nil, nil
	}
	text, err := a.cfg.SystemPrompt.Render(prompts.Data{
		AgentName:   a.cfg.Name,
		Description: a.cfg.Description,
		ThreadID:    threadID,
		Now:         a.cfg.Now(),
		Tools:       a.registry.Names(),
	})
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	msg := llms.MessageFromTextParts(llms.RoleSystem, text)
	return &msg, nil
}

func (a *Agent) save(ctx context.Context, thread *store.Thread) {
	if err := a.cfg.Store.Save(ctx, thread); err != nil {
		logger.ContextKV(ctx, xlog.ERROR,
			"agent", a.cfg.Name,
			"reason", "save_thread",
			"thread_id", thread.ID(),
			"err", err.Error(),
		)
	}
}
