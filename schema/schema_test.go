package schema

import (
	"testing"

	"github.com/casualjim/weft/provider"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recipe struct {
	Name        string   `json:"name" jsonschema:"description=Name of the recipe"`
	Ingredients []string `json:"ingredients"`
	Servings    int      `json:"servings,omitempty"`
}

func TestFor(t *testing.T) {
	s := For[recipe]()

	t.Run("describes the type", func(t *testing.T) {
		js := s.JSONSchema()
		require.NotNil(t, js)
		assert.Equal(t, "object", js.Type)
		assert.Empty(t, js.Version)

		name, ok := js.Properties.Get("name")
		require.True(t, ok)
		assert.Equal(t, "string", name.Type)
		assert.Equal(t, "Name of the recipe", name.Description)
		assert.ElementsMatch(t, []string{"name", "ingredients"}, js.Required)

		raw, err := json.Marshal(js)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"additionalProperties":false`)
		assert.NotContains(t, string(raw), `$ref`)
	})

	t.Run("validates and converts", func(t *testing.T) {
		v, err := s.Validate(map[string]any{
			"name":        "pancakes",
			"ingredients": []any{"flour", "milk"},
			"servings":    4.0,
		})
		require.NoError(t, err)
		assert.Equal(t, recipe{Name: "pancakes", Ingredients: []string{"flour", "milk"}, Servings: 4}, v)
	})

	t.Run("accepts typed values", func(t *testing.T) {
		in := recipe{Name: "soup", Ingredients: []string{"water"}}
		v, err := s.Validate(in)
		require.NoError(t, err)
		assert.Equal(t, in, v)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"invalid": "X"})
		var tve *provider.TypeValidationError
		require.ErrorAs(t, err, &tve)
		assert.Equal(t, map[string]any{"invalid": "X"}, tve.Value)
	})

	t.Run("rejects wrong types", func(t *testing.T) {
		_, err := s.Validate(map[string]any{"name": 1.0, "ingredients": []any{}})
		assert.Error(t, err)
	})
}

func TestForPrimitive(t *testing.T) {
	s := For[string]()
	assert.Equal(t, "string", s.JSONSchema().Type)

	v, err := s.Validate("hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	_, err = s.Validate(12.0)
	assert.Error(t, err)
}

func TestForInterface(t *testing.T) {
	s := For[any]()
	assert.Nil(t, s.JSONSchema())
	v, err := s.Validate([]any{1.0, "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, "x"}, v)
}

func TestFromJSON(t *testing.T) {
	s, err := FromJSON([]byte(`{
		"type": "object",
		"properties": {"content": {"type": "string"}},
		"required": ["content"],
		"additionalProperties": false
	}`))
	require.NoError(t, err)
	assert.Equal(t, "object", s.JSONSchema().Type)

	v, err := s.Validate(map[string]any{"content": "Hello"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"content": "Hello"}, v)

	_, err = s.Validate(map[string]any{"invalid": "X"})
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestAny(t *testing.T) {
	v, err := Any().Validate(map[string]any{"x": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": true}, v)
	assert.Nil(t, Any().JSONSchema())
}

func TestConvert(t *testing.T) {
	got, err := Convert[[]recipe]([]any{map[string]any{"name": "a", "ingredients": []any{"b"}}})
	require.NoError(t, err)
	assert.Equal(t, []recipe{{Name: "a", Ingredients: []string{"b"}}}, got)
}
