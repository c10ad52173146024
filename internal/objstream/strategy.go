package objstream

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// OutputType names the shape of a structured output.
type OutputType string

const (
	OutputObject   OutputType = "object"
	OutputArray    OutputType = "array"
	OutputEnum     OutputType = "enum"
	OutputNoSchema OutputType = "no-schema"
)

// Strategy maps the JSON a model produces onto the value a caller asked for.
type Strategy interface {
	Type() OutputType
	// JSONSchema is the schema requested from the model. Nil means any JSON.
	JSONSchema() *jsonschema.Schema
	// ValidatePartial turns a partially parsed value into the partial result
	// to publish. It reports false when nothing should be published yet.
	// isFinal is set when the text parsed as complete JSON.
	ValidatePartial(value any, isFinal bool) (any, bool)
	// ValidateFinal checks the complete value and returns the result.
	ValidateFinal(value any) (any, error)
}

// Object publishes partial JSON objects and validates the final value
// against s.
func Object(s schema.Schema) Strategy {
	return objectStrategy{schema: s}
}

type objectStrategy struct {
	schema schema.Schema
}

func (objectStrategy) Type() OutputType                  { return OutputObject }
func (o objectStrategy) JSONSchema() *jsonschema.Schema { return o.schema.JSONSchema() }

func (objectStrategy) ValidatePartial(value any, _ bool) (any, bool) {
	m, ok := value.(map[string]any)
	return m, ok
}

func (o objectStrategy) ValidateFinal(value any) (any, error) {
	return o.schema.Validate(value)
}

const elementsKey = "elements"

// Array asks the model for {"elements": [...]} and publishes the elements.
// Partial results never include the last element until the array is
// complete, so every published element is final.
func Array(element schema.Schema) Strategy {
	return arrayStrategy{element: element}
}

type arrayStrategy struct {
	element schema.Schema
}

func (arrayStrategy) Type() OutputType { return OutputArray }

func (a arrayStrategy) JSONSchema() *jsonschema.Schema {
	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set(elementsKey, &jsonschema.Schema{Type: "array", Items: a.element.JSONSchema()})
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             []string{elementsKey},
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func (arrayStrategy) ValidatePartial(value any, isFinal bool) (any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	elems, ok := m[elementsKey].([]any)
	if !ok {
		return []any{}, true
	}
	if !isFinal && len(elems) > 0 {
		elems = elems[:len(elems)-1]
	}
	return elems, true
}

func (a arrayStrategy) ValidateFinal(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, &provider.TypeValidationError{Value: value, Cause: errors.New("value must be an object that contains an array of elements")}
	}
	elems, ok := m[elementsKey].([]any)
	if !ok {
		return nil, &provider.TypeValidationError{Value: value, Cause: errors.New("value must be an object that contains an array of elements")}
	}

	out := make([]any, 0, len(elems))
	for i, elem := range elems {
		v, err := a.element.Validate(elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

const resultKey = "result"

// Enum asks the model for {"result": "<value>"} where value is one of values.
// A partial string that is a prefix of exactly one value publishes that
// value; a prefix of several values publishes the partial string itself.
func Enum(values ...string) Strategy {
	return enumStrategy{values: values}
}

type enumStrategy struct {
	values []string
}

func (enumStrategy) Type() OutputType { return OutputEnum }

func (e enumStrategy) JSONSchema() *jsonschema.Schema {
	enum := make([]any, len(e.values))
	for i, v := range e.values {
		enum[i] = v
	}
	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set(resultKey, &jsonschema.Schema{Type: "string", Enum: enum})
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             []string{resultKey},
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func (e enumStrategy) ValidatePartial(value any, _ bool) (any, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	partial, ok := m[resultKey].(string)
	if !ok {
		return nil, false
	}

	var matches []string
	for _, v := range e.values {
		if strings.HasPrefix(v, partial) {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return nil, false
	case 1:
		return matches[0], true
	default:
		return partial, true
	}
}

func (e enumStrategy) ValidateFinal(value any) (any, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, &provider.TypeValidationError{Value: value, Cause: errors.New("value must be an object that contains a string in the result property")}
	}
	result, ok := m[resultKey].(string)
	if !ok {
		return nil, &provider.TypeValidationError{Value: value, Cause: errors.New("value must be an object that contains a string in the result property")}
	}
	if !slices.Contains(e.values, result) {
		return nil, &provider.TypeValidationError{Value: value, Cause: fmt.Errorf("enum value must be one of: %s", strings.Join(e.values, ", "))}
	}
	return result, nil
}

// NoSchema accepts any JSON value.
func NoSchema() Strategy {
	return noSchemaStrategy{}
}

type noSchemaStrategy struct{}

func (noSchemaStrategy) Type() OutputType               { return OutputNoSchema }
func (noSchemaStrategy) JSONSchema() *jsonschema.Schema { return nil }

func (noSchemaStrategy) ValidatePartial(value any, _ bool) (any, bool) {
	return value, true
}

func (noSchemaStrategy) ValidateFinal(value any) (any, error) {
	return value, nil
}
