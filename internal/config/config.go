// Package config defines the application configuration file.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/agent"
	"github.com/effective-security/toolagent/mcpclient"
	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/store"
	"github.com/effective-security/toolagent/tools"
	"github.com/effective-security/x/configloader"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

// Defaults
const (
	DefaultListen       = ":8080"
	DefaultModelTimeout = 2 * time.Minute
	DefaultIdleTTL      = time.Hour
	DefaultRedisPrefix  = "toolagent:"
)

// Config is the application configuration.
type Config struct {
	// LogLevel is one of TRACE, DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL
	LogLevel string       `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	Agent    AgentConfig  `json:"agent" yaml:"agent"`
	LLM      LLMConfig    `json:"llm" yaml:"llm"`
	MCP      MCPConfig    `json:"mcp" yaml:"mcp"`
	Redis    RedisConfig  `json:"redis" yaml:"redis"`
	HTTP     HTTPConfig   `json:"http" yaml:"http"`
	Tavily   TavilyConfig `json:"tavily" yaml:"tavily"`
}

// AgentConfig configures the answer loop.
type AgentConfig struct {
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Instructions is the path of the system instructions file.
	Instructions  string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	MaxIterations int      `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty" validate:"gte=0"`
	ModelTimeout  Duration `json:"model_timeout,omitempty" yaml:"model_timeout,omitempty"`
	ToolTimeout   Duration `json:"tool_timeout,omitempty" yaml:"tool_timeout,omitempty"`
	// ParallelTools defaults to true.
	ParallelTools *bool `json:"parallel_tools,omitempty" yaml:"parallel_tools,omitempty"`
	// Memory is per_request or retained.
	Memory string `json:"memory,omitempty" yaml:"memory,omitempty" validate:"omitempty,oneof=per_request retained"`
	// IdleTTL evicts retained threads not updated within the period.
	IdleTTL     Duration `json:"idle_ttl,omitempty" yaml:"idle_ttl,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" validate:"gte=0"`
	Temperature float64  `json:"temperature,omitempty" yaml:"temperature,omitempty" validate:"gte=0,lte=2"`
}

// LLMConfig selects the model backend.
type LLMConfig struct {
	// Config is the path of the providers file.
	Config string `json:"config,omitempty" yaml:"config,omitempty"`
	// Provider selects the provider by type, e.g. OPENAI, ANTHROPIC.
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model selects the model by name.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

// MCPConfig lists the remote tool servers.
type MCPConfig struct {
	Servers []*MCPServer `json:"servers,omitempty" yaml:"servers,omitempty" validate:"dive"`
	// RefreshInterval re-discovers the tools periodically when set.
	RefreshInterval Duration `json:"refresh_interval,omitempty" yaml:"refresh_interval,omitempty"`
	// RequireAll fails startup when any server is not reachable.
	RequireAll bool `json:"require_all,omitempty" yaml:"require_all,omitempty"`
}

// MCPServer describes a remote tool server.
type MCPServer struct {
	Name        string            `json:"name" yaml:"name" validate:"required"`
	Transport   string            `json:"transport,omitempty" yaml:"transport,omitempty" validate:"omitempty,oneof=streamable_http sse stdio"`
	URL         string            `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	BearerToken string            `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
	Command     string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         []string          `json:"env,omitempty" yaml:"env,omitempty"`
	Timeout     Duration          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ToolPrefix  string            `json:"tool_prefix,omitempty" yaml:"tool_prefix,omitempty"`
}

// RedisConfig enables the thread lock shared by replicas.
type RedisConfig struct {
	Addr     string   `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int      `json:"db,omitempty" yaml:"db,omitempty"`
	Prefix   string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	LockTTL  Duration `json:"lock_ttl,omitempty" yaml:"lock_ttl,omitempty"`
}

// HTTPConfig configures the server.
type HTTPConfig struct {
	Listen          string   `json:"listen,omitempty" yaml:"listen,omitempty"`
	ReadTimeout     Duration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`
	ShutdownTimeout Duration `json:"shutdown_timeout,omitempty" yaml:"shutdown_timeout,omitempty"`
}

// TavilyConfig enables the web_search tool.
type TavilyConfig struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Load returns the configuration from the file, with defaults applied.
// Environment variables in the file are expanded.
func Load(file string) (*Config, error) {
	cfg := new(Config)
	if err := configloader.UnmarshalAndExpand(file, cfg); err != nil {
		return nil, errors.WithMessagef(err, "failed to load config %s", file)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	cfg := new(Config)
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills the empty values.
func (c *Config) SetDefaults() {
	c.LogLevel = values.StringsCoalesce(c.LogLevel, "INFO")

	a := &c.Agent
	a.Name = values.StringsCoalesce(a.Name, agent.DefaultName)
	a.Instructions = values.StringsCoalesce(a.Instructions, prompts.DefaultInstructionsFile)
	a.MaxIterations = values.NumbersCoalesce(a.MaxIterations, agent.DefaultMaxIterations)
	a.ModelTimeout = durationOr(a.ModelTimeout, DefaultModelTimeout)
	a.ToolTimeout = durationOr(a.ToolTimeout, agent.DefaultToolTimeout)
	a.Memory = values.StringsCoalesce(a.Memory, string(store.PolicyRetained))
	a.IdleTTL = durationOr(a.IdleTTL, DefaultIdleTTL)
	if a.ParallelTools == nil {
		parallel := true
		a.ParallelTools = &parallel
	}

	c.Redis.Prefix = values.StringsCoalesce(c.Redis.Prefix, DefaultRedisPrefix)
	c.HTTP.Listen = values.StringsCoalesce(c.HTTP.Listen, os.Getenv("TOOLAGENT_LISTEN"), DefaultListen)
	c.HTTP.ShutdownTimeout = durationOr(c.HTTP.ShutdownTimeout, 10*time.Second)
}

// Validate returns ConfigurationError for invalid values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrapf(tools.ErrConfiguration, "invalid configuration: %s", err.Error())
	}

	seen := map[string]bool{}
	for _, s := range c.ServerConfigs() {
		if seen[s.Name] {
			return errors.Wrapf(tools.ErrConfiguration, "duplicate MCP server %q", s.Name)
		}
		seen[s.Name] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ServerConfigs returns the remote tool server configurations.
func (c *Config) ServerConfigs() []*mcpclient.ServerConfig {
	list := make([]*mcpclient.ServerConfig, 0, len(c.MCP.Servers))
	for _, s := range c.MCP.Servers {
		list = append(list, &mcpclient.ServerConfig{
			Name:        s.Name,
			Transport:   mcpclient.Transport(s.Transport),
			URL:         s.URL,
			Headers:     s.Headers,
			BearerToken: s.BearerToken,
			Command:     s.Command,
			Args:        s.Args,
			Env:         s.Env,
			Timeout:     s.Timeout.D(),
			ToolPrefix:  s.ToolPrefix,
		})
	}
	return list
}

// AgentOptions returns the agent options for the configuration.
func (c *Config) AgentOptions() []agent.Option {
	a := c.Agent
	opts := []agent.Option{
		agent.WithName(a.Name),
		agent.WithDescription(a.Description),
		agent.WithMaxIterations(a.MaxIterations),
		agent.WithToolTimeout(a.ToolTimeout.D()),
	}
	if a.ParallelTools != nil {
		opts = append(opts, agent.WithParallelTools(*a.ParallelTools))
	}
	return opts
}

func durationOr(d Duration, def time.Duration) Duration {
	if d > 0 {
		return d
	}
	return Duration(def)
}
