package llms

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "llms")

// DefaultModelTimeout is used when the Adapter is created with zero timeout.
const DefaultModelTimeout = 2 * time.Minute

// Adapter invokes a Model with the thread and the tool catalog,
// and returns a ModelResponse.
type Adapter struct {
	model   Model
	timeout time.Duration
	options []CallOption
}

// NewAdapter returns Adapter for the model.
// The timeout bounds each call, the options are applied to every call.
func NewAdapter(model Model, timeout time.Duration, options ...CallOption) *Adapter {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &Adapter{
		model:   model,
		timeout: timeout,
		options: options,
	}
}

// Model returns the underlying model.
func (a *Adapter) Model() Model {
	return a.model
}

// Timeout returns the per call timeout.
func (a *Adapter) Timeout() time.Duration {
	return a.timeout
}

// Invoke sends the messages and the tool catalog to the model.
// Transport failures and timeouts are returned as ModelUnavailableError,
// responses that cannot be interpreted as ModelProtocolError.
func (a *Adapter) Invoke(ctx context.Context, messages []Message, catalog []Tool) (*ModelResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	opts := make([]CallOption, 0, len(a.options)+1)
	opts = append(opts, a.options...)
	if len(catalog) > 0 {
		opts = append(opts, WithTools(catalog))
	}

	name := a.model.GetName()
	resp, err := a.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"reason", "generate_content",
			"model", name,
			"err", err.Error())
		if errors.Is(err, ErrModelProtocol) {
			return nil, err
		}
		if errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
		return nil, &ModelUnavailableError{Model: name, Cause: err}
	}

	res, err := ParseContentResponse(resp)
	if err != nil {
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", name,
		"kind", res.Kind,
		"calls", len(res.Calls),
	)
	return res, nil
}
