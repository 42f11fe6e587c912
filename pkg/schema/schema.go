// Package schema builds JSON schemas for tool parameters.
// Local tools reflect them from Go types, remote tools provide them as JSON.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema is the reflected schema of a Go type.
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters is the top level object schema suitable for a tool definition
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type.
// Schemas are cached per type.
func New(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, errors.New("schema: nil type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Newf("schema: %s is not a struct", t.String())
	}

	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	raw := JSONSchema(t)
	s = &Schema{
		RawSchema:  raw,
		Parameters: ToParameters(raw),
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()

	return s, nil
}

// For returns the schema of T.
func For[T any]() (*Schema, error) {
	return New(reflect.TypeOf((*T)(nil)).Elem())
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// ToParameters returns the root object of the schema with $defs inlined.
func ToParameters(tSchema *jsonschema.Schema) *jsonschema.Schema {
	refID := strings.TrimPrefix(tSchema.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	root := tSchema
	for name, def := range tSchema.Definitions {
		if name == refID {
			root = def
		} else {
			defs[name] = def
		}
	}

	res := &jsonschema.Schema{
		Type:        root.Type,
		Description: root.Description,
		Properties:  root.Properties,
		Required:    root.Required,
	}
	if res.Type == "" {
		res.Type = "object"
	}
	if res.Properties == nil {
		res.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}

	resolveRefs(res.Properties, defs)
	return res
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) {
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value = resolveRef(pair.Value, defs)
		child := pair.Value
		if child.Properties != nil {
			resolveRefs(child.Properties, defs)
		}
		if child.Items != nil {
			child.Items = resolveRef(child.Items, defs)
			if child.Items.Properties != nil {
				resolveRefs(child.Items.Properties, defs)
			}
		}
	}
}

// resolveRef replaces a $ref with its definition.
// Unknown refs become an untyped object with the original description.
func resolveRef(s *jsonschema.Schema, defs map[string]*jsonschema.Schema) *jsonschema.Schema {
	if s == nil || s.Ref == "" {
		return s
	}
	name := strings.TrimPrefix(s.Ref, "#/$defs/")
	if def, ok := defs[name]; ok {
		return def
	}
	return &jsonschema.Schema{
		Type:        "object",
		Title:       s.Title,
		Description: s.Description,
	}
}

// JSONSchema returns the expanded json schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.AllowAdditionalProperties = true

	// Struct names may repeat across packages, the package hash keeps $defs unique.
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}

// FromAny creates a parameters schema from a JSON compatible value,
// for example map[string]any or json.RawMessage.
// An empty value produces an object schema with no properties.
func FromAny(t any) (*jsonschema.Schema, error) {
	var js []byte
	switch v := t.(type) {
	case nil:
		js = nil
	case json.RawMessage:
		js = v
	case []byte:
		js = v
	default:
		var err error
		js, err = json.Marshal(t)
		if err != nil {
			return nil, errors.Wrap(err, "schema: marshal")
		}
	}

	s := &jsonschema.Schema{}
	if len(js) > 0 && string(js) != "null" {
		if err := json.Unmarshal(js, s); err != nil {
			return nil, errors.Wrap(err, "schema: unmarshal")
		}
	}
	return Normalize(s), nil
}

// MustFromAny is FromAny that panics on error, for static schemas.
func MustFromAny(t any) *jsonschema.Schema {
	s, err := FromAny(t)
	if err != nil {
		panic(err)
	}
	return s
}

// Normalize ensures the schema describes an object with properties.
func Normalize(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		s = &jsonschema.Schema{}
	}
	if s.Type == "" {
		s.Type = "object"
	}
	if s.Type == "object" && s.Properties == nil {
		s.Properties = orderedmap.New[string, *jsonschema.Schema]()
	}
	return s
}

// Fingerprint returns a stable hash of the schema JSON.
func Fingerprint(s *jsonschema.Schema) uint64 {
	js, _ := json.Marshal(s)
	return xxhash.Sum64(js)
}
