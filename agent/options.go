package agent

import (
	"time"

	"github.com/effective-security/toolagent/pkg/prompts"
	"github.com/effective-security/toolagent/store"
)

// Defaults
const (
	DefaultName          = "Helsinki"
	DefaultMaxIterations = 10
	DefaultToolTimeout   = 30 * time.Second
)

// Option configures the Agent.
type Option func(*Config)

// Config of the Agent
type Config struct {
	Name        string
	Description string
	// SystemPrompt is prepended to every model call and never stored in the thread.
	SystemPrompt *prompts.SystemPrompt
	Store        store.ThreadStore
	Locker       store.Locker
	// MaxIterations caps the model invocations of one answer.
	MaxIterations int
	// ToolTimeout bounds each tool call.
	ToolTimeout time.Duration
	// ParallelTools dispatches the calls of one model turn concurrently.
	ParallelTools bool
	Callback      Callback
	// Now is used for the system prompt data.
	Now func() time.Time
}

// NewConfig returns the Config with defaults and the options applied.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		Name:          DefaultName,
		MaxIterations: DefaultMaxIterations,
		ToolTimeout:   DefaultToolTimeout,
		ParallelTools: true,
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithName sets the agent name.
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithDescription sets the agent description, available to the system prompt.
func WithDescription(desc string) Option {
	return func(c *Config) {
		c.Description = desc
	}
}

// WithSystemPrompt sets the system instructions.
func WithSystemPrompt(p *prompts.SystemPrompt) Option {
	return func(c *Config) {
		c.SystemPrompt = p
	}
}

// WithThreadStore sets the thread memory.
func WithThreadStore(s store.ThreadStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithLocker sets the per-thread locker.
func WithLocker(l store.Locker) Option {
	return func(c *Config) {
		c.Locker = l
	}
}

// WithMaxIterations sets the iteration cap.
func WithMaxIterations(n int) Option {
	return func(c *Config) {
		c.MaxIterations = n
	}
}

// WithToolTimeout sets the per tool call timeout.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ToolTimeout = d
	}
}

// WithParallelTools enables or disables concurrent tool dispatch.
func WithParallelTools(parallel bool) Option {
	return func(c *Config) {
		c.ParallelTools = parallel
	}
}

// WithCallback sets the callback.
func WithCallback(cb Callback) Option {
	return func(c *Config) {
		c.Callback = cb
	}
}

// WithNow sets the clock.
func WithNow(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}
