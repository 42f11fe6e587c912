package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration is the sentinel of configuration errors, fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnknownTool is the sentinel of UnknownToolError.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when the arguments do not match the tool parameters.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// DuplicateToolError is returned when a tool name is already registered.
// It is a configuration error.
type DuplicateToolError struct {
	Name     string
	Origin   Origin
	Existing Origin
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("duplicate tool %q: %s tool collides with %s tool", e.Name, e.Origin, e.Existing)
}

// Is returns true for ErrConfiguration
func (e *DuplicateToolError) Is(target error) bool {
	return target == ErrConfiguration
}

// UnknownToolError is returned when the requested tool is not in the Registry.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown tool %q: no tools available", e.Name)
	}
	return fmt.Sprintf("unknown tool %q, available tools: %s", e.Name, strings.Join(e.Available, ", "))
}

// Is returns true for ErrUnknownTool
func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// TimeoutError is returned by a tool that enforces its own deadline.
type TimeoutError struct {
	Tool  string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %s", e.Tool, e.After)
}

// Is returns true for context.DeadlineExceeded
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}
