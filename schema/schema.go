// Package schema adapts schema descriptions into one capability: describe the
// expected JSON to a model, and validate what the model produced.
//
// Schemas reflected from Go types use github.com/invopop/jsonschema with the
// settings structured outputs require (no additional properties, no $ref).
// Validation is done by github.com/santhosh-tekuri/jsonschema/v6, compiled
// lazily on first use.
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/casualjim/weft/provider"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	jsval "github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema describes and validates a JSON value.
type Schema interface {
	// JSONSchema is the description sent to the model. It is nil for schemas
	// that accept any JSON value.
	JSONSchema() *jsonschema.Schema
	// Validate checks value, a decoded JSON value, and returns it converted to
	// the schema's Go representation. Failures are *provider.TypeValidationError.
	Validate(value any) (any, error)
}

// Structured outputs use a subset of JSON schema.
// These flags are necessary to comply with the subset.
var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
	Anonymous:                 true,
}

// Reflect generates the JSON schema of T.
func Reflect[T any]() *jsonschema.Schema {
	var v T
	s := reflector.Reflect(v)
	s.Version = ""
	return s
}

// ReflectType generates the JSON schema of typ.
func ReflectType(typ reflect.Type) *jsonschema.Schema {
	s := reflector.ReflectFromType(typ)
	s.Version = ""
	return s
}

// For returns the schema of T. Validate decodes valid values into a T.
// Interface types accept any value.
func For[T any]() Schema {
	if reflect.TypeFor[T]().Kind() == reflect.Interface {
		return Any()
	}
	return &typed[T]{compiled: compiled{schema: Reflect[T]()}}
}

type typed[T any] struct {
	compiled
}

func (s *typed[T]) Validate(value any) (any, error) {
	if _, err := s.compiled.Validate(value); err != nil {
		return nil, err
	}
	if v, ok := value.(T); ok {
		return v, nil
	}
	v, err := Convert[T](value)
	if err != nil {
		return nil, &provider.TypeValidationError{Value: value, Cause: err}
	}
	return v, nil
}

// FromJSON builds a schema from a JSON Schema document. Validate returns the
// value unchanged.
func FromJSON(raw []byte) (Schema, error) {
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}
	c := &compiled{schema: &s}
	if _, err := c.validator(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromSchema wraps an existing schema description.
func FromSchema(s *jsonschema.Schema) Schema {
	return &compiled{schema: s}
}

// Any accepts every JSON value.
func Any() Schema {
	return anySchema{}
}

type anySchema struct{}

func (anySchema) JSONSchema() *jsonschema.Schema { return nil }
func (anySchema) Validate(value any) (any, error) {
	return value, nil
}

type compiled struct {
	schema *jsonschema.Schema

	once sync.Once
	sch  *jsval.Schema
	err  error
}

func (c *compiled) JSONSchema() *jsonschema.Schema {
	return c.schema
}

func (c *compiled) Validate(value any) (any, error) {
	sch, err := c.validator()
	if err != nil {
		return nil, &provider.TypeValidationError{Value: value, Cause: err}
	}
	if err := sch.Validate(normalize(value)); err != nil {
		return nil, &provider.TypeValidationError{Value: value, Cause: err}
	}
	return value, nil
}

const resourceURL = "weft://schema.json"

func (c *compiled) validator() (*jsval.Schema, error) {
	c.once.Do(func() {
		if c.schema == nil {
			c.err = errors.New("schema is nil")
			return
		}
		raw, err := json.Marshal(c.schema)
		if err != nil {
			c.err = fmt.Errorf("failed to marshal schema: %w", err)
			return
		}
		doc, err := jsval.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			c.err = fmt.Errorf("failed to read schema: %w", err)
			return
		}
		compiler := jsval.NewCompiler()
		if err := compiler.AddResource(resourceURL, doc); err != nil {
			c.err = fmt.Errorf("failed to add schema: %w", err)
			return
		}
		c.sch, c.err = compiler.Compile(resourceURL)
	})
	return c.sch, c.err
}

// normalize turns arbitrary Go values into the generic JSON shapes the
// validator understands.
func normalize(value any) any {
	switch value.(type) {
	case nil, bool, string, float64, map[string]any, []any:
		return value
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return value
	}
	return out
}

// Convert decodes a generic JSON value into T.
func Convert[T any](value any) (T, error) {
	var out T
	raw, err := json.Marshal(value)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
