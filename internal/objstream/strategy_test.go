package objstream

import (
	"testing"

	"github.com/casualjim/weft/schema"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrategySchemas(t *testing.T) {
	t.Run("array wraps elements", func(t *testing.T) {
		raw, err := json.Marshal(Array(schema.For[content]()).JSONSchema())
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type": "object",
			"properties": {
				"elements": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {"content": {"type": "string"}},
						"required": ["content"],
						"additionalProperties": false
					}
				}
			},
			"required": ["elements"],
			"additionalProperties": false
		}`, string(raw))
	})

	t.Run("enum wraps result", func(t *testing.T) {
		raw, err := json.Marshal(Enum("a", "b").JSONSchema())
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type": "object",
			"properties": {"result": {"type": "string", "enum": ["a", "b"]}},
			"required": ["result"],
			"additionalProperties": false
		}`, string(raw))
	})

	t.Run("no schema", func(t *testing.T) {
		assert.Nil(t, NoSchema().JSONSchema())
		assert.Equal(t, OutputNoSchema, NoSchema().Type())
	})
}

func TestArrayPartial(t *testing.T) {
	s := Array(schema.Any())

	v, ok := s.ValidatePartial(map[string]any{"elements": []any{1.0, 2.0}}, false)
	require.True(t, ok)
	assert.Equal(t, []any{1.0}, v)

	v, ok = s.ValidatePartial(map[string]any{"elements": []any{1.0, 2.0}}, true)
	require.True(t, ok)
	assert.Equal(t, []any{1.0, 2.0}, v)

	v, ok = s.ValidatePartial(map[string]any{}, false)
	require.True(t, ok)
	assert.Equal(t, []any{}, v)

	_, ok = s.ValidatePartial("nope", false)
	assert.False(t, ok)
}

func TestEnumPartial(t *testing.T) {
	s := Enum("foobar", "foobar2", "baz")

	tests := []struct {
		partial string
		want    any
		ok      bool
	}{
		{partial: "", want: "", ok: true},
		{partial: "f", want: "f", ok: true},
		{partial: "foobar", want: "foobar", ok: true},
		{partial: "foobar2", want: "foobar2", ok: true},
		{partial: "b", want: "baz", ok: true},
		{partial: "x", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.partial, func(t *testing.T) {
			v, ok := s.ValidatePartial(map[string]any{"result": tt.partial}, false)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}
