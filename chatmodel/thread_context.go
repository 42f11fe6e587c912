package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ThreadContext identifies the conversation thread and the run
// of one answer on that thread.
type ThreadContext interface {
	// GetThreadID returns the conversation thread ID
	GetThreadID() string
	// RunID returns the ID of the answer being produced
	RunID() string
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type threadContext struct {
	threadID string
	runID    string
	metadata sync.Map
}

func (c *threadContext) GetThreadID() string {
	return c.threadID
}

func (c *threadContext) RunID() string {
	return c.runID
}

func (c *threadContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *threadContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewThreadContext returns ThreadContext with a new run ID.
// A new thread ID is generated when threadID is empty.
func NewThreadContext(threadID string) ThreadContext {
	return &threadContext{
		threadID: values.StringsCoalesce(threadID, NewThreadID()),
		runID:    NewThreadID(),
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithThreadContext returns a new context with ThreadContext value
func WithThreadContext(ctx context.Context, tc ThreadContext) context.Context {
	return context.WithValue(ctx, keyContext, tc)
}

// GetThreadContext retrieves the ThreadContext from the context
func GetThreadContext(ctx context.Context) ThreadContext {
	if v, ok := ctx.Value(keyContext).(ThreadContext); ok {
		return v
	}
	return nil
}

// GetThreadID retrieves the thread ID from the provided context.
// If the context does not contain a ThreadContext, it returns an empty string.
func GetThreadID(ctx context.Context) string {
	if v := GetThreadContext(ctx); v != nil {
		return v.GetThreadID()
	}
	return ""
}

// RequireThreadID returns the thread ID, or error if the context has none.
func RequireThreadID(ctx context.Context) (string, error) {
	id := GetThreadID(ctx)
	if id == "" {
		return "", errors.New("thread context not found")
	}
	return id, nil
}

// NewFromContext returns a background context that carries
// the ThreadContext of ctx, if any.
func NewFromContext(ctx context.Context) context.Context {
	if tc := GetThreadContext(ctx); tc != nil {
		return WithThreadContext(context.Background(), tc)
	}
	return context.Background()
}

// NewThreadID generates a new thread ID using the flake ID generator.
func NewThreadID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
