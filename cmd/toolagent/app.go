package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/internal/config"
	"github.com/effective-security/toolagent/mcpclient"
	"github.com/effective-security/toolagent/pkg/llmfactory"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/toolagent/tools/clock"
	"github.com/effective-security/toolagent/tools/tavily"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"
)

// app holds the wired components.
type app struct {
	cfg       *config.Config
	registry  *tools.Registry
	refresher *mcpclient.Refresher
	store     store.ThreadStore
	agent     *agent.Agent
	redis     *redis.Client
}

// newLLMFactory is replaced in tests.
var newLLMFactory = llmfactory.Load

// newApp wires the agent from the configuration and discovers the remote tools.
func newApp(ctx context.Context, cfg *config.Config, callback agent.Callback) (*app, error) {
	a := &app{cfg: cfg}

	model, err := a.model()
	if err != nil {
		return nil, err
	}

	var callOpts []llms.CallOption
	if cfg.Agent.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(cfg.Agent.MaxTokens))
	}
	if cfg.Agent.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(cfg.Agent.Temperature))
	}
	adapter := llms.NewAdapter(model, cfg.Agent.ModelTimeout.D(), callOpts...)

	if err = a.initTools(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.store, err = store.NewThreadStore(store.Policy(cfg.Agent.Memory))
	if err != nil {
		a.Close()
		return nil, errors.Wrap(tools.ErrConfiguration, err.Error())
	}

	sp, err := prompts.NewFileSystemPrompt(cfg.Agent.Instructions)
	if err != nil {
		a.Close()
		return nil, errors.Wrap(tools.ErrConfiguration, err.Error())
	}

	opts := append(cfg.AgentOptions(),
		agent.WithSystemPrompt(sp),
		agent.WithThreadStore(a.store),
		agent.WithLocker(a.locker()),
	)
	if callback != nil {
		opts = append(opts, agent.WithCallback(callback))
	}

	a.agent, err = agent.New(adapter, a.registry, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.ContextKV(ctx, xlog.INFO,
		"status", "started",
		"agent", a.agent.Name(),
		"model", model.GetName(),
		"memory", cfg.Agent.Memory,
		"tools", a.registry.Len())
	return a, nil
}

func (a *app) model() (llms.Model, error) {
	factory, err := newLLMFactory(a.cfg.LLM.Config)
	if err != nil {
		return nil, err
	}
	switch {
	case a.cfg.LLM.Model != "":
		return factory.ModelByName(a.cfg.LLM.Model)
	case a.cfg.LLM.Provider != "":
		return factory.ModelByType(a.cfg.LLM.Provider)
	default:
		return factory.AgentModel(a.cfg.Agent.Name)
	}
}

func (a *app) initTools(ctx context.Context) error {
	clockTool, err := clock.Descriptor()
	if err != nil {
		return err
	}
	locals := []*tools.Descriptor{clockTool}

	if a.cfg.Tavily.Enabled {
		search, err := tavily.New(a.cfg.Tavily.APIKey)
		if err != nil {
			return err
		}
		d, err := search.Descriptor()
		if err != nil {
			return err
		}
		locals = append(locals, d)
	}

	if a.registry, err = tools.NewRegistry(locals...); err != nil {
		return err
	}

	servers := a.cfg.ServerConfigs()
	if len(servers) == 0 {
		return nil
	}
	client, err := mcpclient.New(servers)
	if err != nil {
		return err
	}
	a.refresher = mcpclient.NewRefresher(client, a.registry, a.cfg.MCP.RequireAll)
	cat, err := a.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	if ferr := cat.Err(); ferr != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "partial_catalog", "err", ferr.Error())
	}
	return nil
}

func (a *app) locker() store.Locker {
	local := store.NewLocalLocker()
	if a.cfg.Redis.Addr == "" {
		return local
	}
	logger.KV(xlog.NOTICE,
		"status", "redis_lock",
		"addr", a.cfg.Redis.Addr,
		"note", "thread memory is process local, the lease only guards a thread id moved between replicas by sticky routing")
	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	return store.Chain(local, store.NewRedisLocker(a.redis, a.cfg.Redis.Prefix, a.cfg.Redis.LockTTL.D()))
}

// Close releases the MCP sessions and the Redis client.
func (a *app) Close() {
	if a.refresher != nil {
		if err := a.refresher.Close(); err != nil {
			logger.KV(xlog.DEBUG, "reason", "close_mcp", "err", err.Error())
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
