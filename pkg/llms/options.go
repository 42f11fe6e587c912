package llms

import (
	"github.com/invopop/jsonschema"
)

// CallOption overrides a field of CallOptions for one call.
type CallOption func(*CallOptions)

// CallOptions are the per call generation settings.
// Zero values leave the backend default in place.
type CallOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
	StopWords   []string
	TopK        int
	TopP        float64
	Seed        int

	// Tools is the catalog offered to the model.
	Tools []Tool
	// ToolChoice is "none", "auto" or "required"; empty means auto.
	ToolChoice string
}

// Tool is a catalog entry in the shape chat APIs expect.
type Tool struct {
	// Type is always "function".
	Type     string              `json:"type"`
	Function *FunctionDefinition `json:"function,omitempty"`
}

// FunctionDefinition describes a callable tool to the model.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Parameters is the JSON schema of the arguments object.
	Parameters *jsonschema.Schema `json:"parameters,omitempty"`
}

// NewCallOptions returns defaults with options applied in order.
func NewCallOptions(defaults CallOptions, options ...CallOption) CallOptions {
	opts := defaults
	for _, apply := range options {
		apply(&opts)
	}
	return opts
}

// WithModel overrides the backend model for the call.
func WithModel(model string) CallOption {
	return func(o *CallOptions) { o.Model = model }
}

// WithMaxTokens caps the generated tokens.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = t }
}

// WithStopWords sets the stop sequences.
func WithStopWords(words []string) CallOption {
	return func(o *CallOptions) { o.StopWords = words }
}

func WithTopK(k int) CallOption {
	return func(o *CallOptions) { o.TopK = k }
}

func WithTopP(p float64) CallOption {
	return func(o *CallOptions) { o.TopP = p }
}

func WithSeed(seed int) CallOption {
	return func(o *CallOptions) { o.Seed = seed }
}

// WithTools offers the tool catalog to the model.
func WithTools(tools []Tool) CallOption {
	return func(o *CallOptions) { o.Tools = tools }
}

func WithToolChoice(choice string) CallOption {
	return func(o *CallOptions) { o.ToolChoice = choice }
}

// SchemaProperties returns the top level parameter schemas keyed by name.
func (f *FunctionDefinition) SchemaProperties() map[string]any {
	if f == nil || f.Parameters == nil || f.Parameters.Properties == nil {
		return nil
	}
	props := make(map[string]any, f.Parameters.Properties.Len())
	for p := f.Parameters.Properties.Oldest(); p != nil; p = p.Next() {
		props[p.Key] = p.Value
	}
	return props
}

// SchemaRequired returns the required parameter names.
func (f *FunctionDefinition) SchemaRequired() []string {
	if f == nil || f.Parameters == nil {
		return nil
	}
	return f.Parameters.Required
}
