// Package clock provides the get_current_time local tool.
package clock

import (
	"context"
	"time"

	"github.com/effective-security/toolagent/tools"
)

// ToolName is the name of the tool in the catalog.
const ToolName = "get_current_time"

// Layout formats the time as YYYY-MM-DD HH:MM:SS ZONE+hhmm
const Layout = "2006-01-02 15:04:05 MST-0700"

// Request has no arguments.
type Request struct{}

// Response is returned to the model.
type Response struct {
	Status string `json:"status"`
	Report string `json:"report"`
}

// Tool reports the current date and time.
type Tool struct {
	now      func() time.Time
	location *time.Location
}

// Option configures the Tool
type Option func(*Tool)

// WithNow sets the clock source.
func WithNow(now func() time.Time) Option {
	return func(t *Tool) {
		t.now = now
	}
}

// WithLocation sets the location, the local time zone is used by default.
func WithLocation(loc *time.Location) Option {
	return func(t *Tool) {
		t.location = loc
	}
}

// New returns the Tool.
func New(opts ...Option) *Tool {
	t := &Tool{
		now:      time.Now,
		location: time.Local,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements tools.Tool
func (t *Tool) Name() string {
	return ToolName
}

// Description implements tools.Tool
func (t *Tool) Description() string {
	return "Returns the current date and time in the local time zone."
}

// Run implements tools.Tool
func (t *Tool) Run(_ context.Context, _ *Request) (*Response, error) {
	now := t.now()
	if t.location != nil {
		now = now.In(t.location)
	}
	return &Response{
		Status: "success",
		Report: "The current date and time is " + now.Format(Layout),
	}, nil
}

// Descriptor returns the local tool descriptor.
func Descriptor(opts ...Option) (*tools.Descriptor, error) {
	return tools.FromTool[Request, Response](New(opts...))
}
