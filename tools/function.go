package tools

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/schema"
	"github.com/mitchellh/mapstructure"
)

// Tool is a typed local tool.
type Tool[I any, O any] interface {
	Name() string
	Description() string
	Run(ctx context.Context, req *I) (*O, error)
}

// Function is a local Callable for a typed Go function.
// Arguments are decoded into I by the json tags, the result is
// returned as JSON, or as is when O is a string.
type Function[I any, O any] struct {
	name string
	fn   func(context.Context, *I) (*O, error)
}

// NewFunction returns a local Descriptor for the function.
// The parameter schema is reflected from I.
func NewFunction[I any, O any](name, description string, fn func(context.Context, *I) (*O, error)) (*Descriptor, error) {
	sc, err := schema.For[I]()
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create schema for tool %q", name)
	}
	d := &Descriptor{
		Name:        name,
		Description: description,
		Parameters:  sc.Parameters,
		Origin:      OriginLocal,
		Callable: &Function[I, O]{
			name: name,
			fn:   fn,
		},
	}
	if err = d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// FromTool returns a local Descriptor for the typed tool.
func FromTool[I any, O any](t Tool[I, O]) (*Descriptor, error) {
	return NewFunction(t.Name(), t.Description(), t.Run)
}

// Call implements Callable
func (f *Function[I, O]) Call(ctx context.Context, args map[string]any) (string, error) {
	var req I
	if err := Decode(args, &req); err != nil {
		return "", err
	}

	res, err := f.fn(ctx, &req)
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", nil
	}
	if s, ok := any(res).(*string); ok {
		return *s, nil
	}

	js, err := json.Marshal(res)
	if err != nil {
		return "", errors.Wrapf(err, "failed to encode %s result", f.name)
	}
	return string(js), nil
}

// Decode decodes the model arguments into the struct pointed by out, using json tags.
// Numbers and booleans sent as strings are accepted.
func Decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if err = dec.Decode(args); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid arguments"), ErrInvalidArguments)
	}
	return nil
}
