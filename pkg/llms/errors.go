package llms

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrModelUnavailable is the reference error for ModelUnavailableError.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelProtocol is the reference error for ModelProtocolError.
	ErrModelProtocol = errors.New("model protocol error")
)

// ModelUnavailableError is returned when the backend could not be reached,
// failed, or did not respond in time.
type ModelUnavailableError struct {
	Model string
	Cause error
}

func (e *ModelUnavailableError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("model unavailable: %v", e.Cause)
	}
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Cause)
}

// Unwrap returns the cause.
func (e *ModelUnavailableError) Unwrap() error { return e.Cause }

// Is reports ErrModelUnavailable.
func (e *ModelUnavailableError) Is(target error) bool { return target == ErrModelUnavailable }

// ModelProtocolError is returned when the backend response cannot be
// interpreted as a final answer or a set of tool calls.
// Usage is what the backend reported for the rejected response, if any.
type ModelProtocolError struct {
	Reason string
	Cause  error
	Usage  *Usage
}

func (e *ModelProtocolError) Error() string {
	if e.Cause == nil {
		return "model protocol error: " + e.Reason
	}
	return fmt.Sprintf("model protocol error: %s: %v", e.Reason, e.Cause)
}

// Unwrap returns the cause.
func (e *ModelProtocolError) Unwrap() error { return e.Cause }

// Is reports ErrModelProtocol.
func (e *ModelProtocolError) Is(target error) bool { return target == ErrModelProtocol }

// NewProtocolError returns ModelProtocolError with the reason.
// Backends use it when a provider response does not fit the message model.
func NewProtocolError(cause error, format string, args ...any) error {
	return &ModelProtocolError{
		Reason: fmt.Sprintf(format, args...),
		Cause:  cause,
	}
}
