package genaiutils

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llms"
	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

var schemaTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
}

// ConvertTools returns a single genai tool declaring every catalog function.
func ConvertTools(tools []llms.Tool) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		if tool.Type != "function" || tool.Function == nil {
			return nil, errors.Errorf("genai: tool type %q is not supported", tool.Type)
		}
		params, err := ConvertJSONSchemaDefinition(tool.Function.Parameters)
		if err != nil {
			return nil, errors.Wrapf(err, "genai: tool %s", tool.Function.Name)
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// ConvertJSONSchemaDefinition maps an input schema onto the genai subset.
// Keywords genai does not model are dropped.
func ConvertJSONSchemaDefinition(js *jsonschema.Schema) (*genai.Schema, error) {
	if js == nil {
		return nil, nil
	}

	out := &genai.Schema{
		Type:        ConvertJSONSchemaType(js.Type),
		Description: js.Description,
		Required:    js.Required,
	}
	for _, e := range js.Enum {
		if s, ok := e.(string); ok {
			out.Enum = append(out.Enum, s)
		}
	}

	if js.Properties != nil && js.Properties.Len() > 0 {
		out.Properties = make(map[string]*genai.Schema, js.Properties.Len())
		for p := js.Properties.Oldest(); p != nil; p = p.Next() {
			prop, err := ConvertJSONSchemaDefinition(p.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "property %s", p.Key)
			}
			out.Properties[p.Key] = prop
		}
	}

	if js.Items != nil {
		items, err := ConvertJSONSchemaDefinition(js.Items)
		if err != nil {
			return nil, errors.Wrap(err, "items")
		}
		out.Items = items
	}
	return out, nil
}

// ConvertJSONSchemaType returns TypeUnspecified for unknown names.
func ConvertJSONSchemaType(name string) genai.Type {
	if t, ok := schemaTypes[name]; ok {
		return t
	}
	return genai.TypeUnspecified
}

// Float32Ptr returns nil for zero so the server default applies.
func Float32Ptr(f float32) *float32 {
	if f == 0 {
		return nil
	}
	return &f
}

// Int32Ptr returns nil for zero.
func Int32Ptr(i int32) *int32 {
	if i == 0 {
		return nil
	}
	return &i
}
