package tools

import (
	"context"
	"regexp"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/invopop/jsonschema"
)

//go:generate mockgen -source=tool.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// Callable is the invocation capability of a tool.
// The result is the serialized tool output returned to the model.
type Callable interface {
	Call(ctx context.Context, args map[string]any) (string, error)
}

// CallableFunc is an adapter to use a function as Callable.
type CallableFunc func(ctx context.Context, args map[string]any) (string, error)

// Call implements Callable
func (f CallableFunc) Call(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// Origin is where the tool is implemented.
type Origin string

const (
	// OriginLocal is an in-process function.
	OriginLocal Origin = "local"
	// OriginRemote is a tool discovered on a remote tool server.
	OriginRemote Origin = "remote"
)

// Descriptor describes a tool available to the model.
type Descriptor struct {
	// Name is unique within the Registry.
	Name string `json:"name" yaml:"name"`
	// Description is sent to the model with the catalog.
	Description string `json:"description" yaml:"description"`
	// Parameters is the JSON schema of the arguments object.
	Parameters *jsonschema.Schema `json:"parameters,omitempty" yaml:"-"`
	// Origin is local or remote.
	Origin Origin `json:"origin" yaml:"origin"`
	// Server is the name of the remote server, empty for local tools.
	Server string `json:"server,omitempty" yaml:"server,omitempty"`

	Callable Callable `json:"-" yaml:"-"`
}

// Call invokes the tool.
func (d *Descriptor) Call(ctx context.Context, args map[string]any) (string, error) {
	if d.Callable == nil {
		return "", errors.Errorf("tool %q is not callable", d.Name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return d.Callable.Call(ctx, args)
}

// Definition returns the tool definition for the model catalog.
func (d *Descriptor) Definition() llms.Tool {
	return llms.Tool{
		Type: "function",
		Function: &llms.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		},
	}
}

var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Validate returns ConfigurationError if the descriptor cannot be registered.
func (d *Descriptor) Validate() error {
	if !validName.MatchString(d.Name) {
		return errors.Wrapf(ErrConfiguration, "invalid tool name %q", d.Name)
	}
	if d.Callable == nil {
		return errors.Wrapf(ErrConfiguration, "tool %q has no callable", d.Name)
	}
	if d.Origin != OriginLocal && d.Origin != OriginRemote {
		return errors.Wrapf(ErrConfiguration, "tool %q has invalid origin %q", d.Name, d.Origin)
	}
	return nil
}
