package agent

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
)

// ErrMaxIterationsExceeded is the cause of a result with StatusMaxIterationsExceeded.
var ErrMaxIterationsExceeded = errors.New("max iterations exceeded")

// Status is the terminal status of an answer.
type Status string

const (
	StatusSuccess               Status = "success"
	StatusError                 Status = "error"
	StatusMaxIterationsExceeded Status = "max_iterations_exceeded"
)

// Result is returned by Agent.Answer.
// Response holds the final answer, or the error message when Status is not success.
type Result struct {
	Status       Status `json:"status" yaml:"status"`
	InputTokens  int64  `json:"total_input_tokens_used" yaml:"total_input_tokens_used"`
	OutputTokens int64  `json:"total_output_tokens" yaml:"total_output_tokens"`
	Response     string `json:"response" yaml:"response"`
	ThreadID     string `json:"thread_id,omitempty" yaml:"thread_id,omitempty"`
	Iterations   int    `json:"iterations" yaml:"iterations"`

	// Err is the cause for StatusError and StatusMaxIterationsExceeded.
	Err error `json:"-" yaml:"-"`
}

// IsSuccess returns true for StatusSuccess.
func (r *Result) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Usage returns the token totals.
func (r *Result) Usage() llms.Usage {
	return llms.Usage{
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		TotalTokens:  r.InputTokens + r.OutputTokens,
	}
}

func (r *Result) setUsage(u llms.Usage) {
	r.InputTokens = u.InputTokens
	r.OutputTokens = u.OutputTokens
}

func (r *Result) fail(err error) {
	r.Err = err
	r.Response = err.Error()
	if errors.Is(err, ErrMaxIterationsExceeded) {
		r.Status = StatusMaxIterationsExceeded
	} else {
		r.Status = StatusError
	}
}
