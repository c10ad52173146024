package partialjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
		state State
	}{
		{name: "empty", input: "", want: nil, state: UndefinedInput},
		{name: "whitespace", input: "  \n\t", want: nil, state: UndefinedInput},
		{name: "complete object", input: `{"a":1,"b":[true,null]}`, want: map[string]any{"a": 1.0, "b": []any{true, nil}}, state: SuccessfulParse},
		{name: "open object", input: `{`, want: map[string]any{}, state: RepairedParse},
		{name: "open object with space", input: `{ `, want: map[string]any{}, state: RepairedParse},
		{name: "partial key", input: `{"con`, want: map[string]any{}, state: RepairedParse},
		{name: "key without colon", input: `{"content"`, want: map[string]any{}, state: RepairedParse},
		{name: "dangling key", input: `{"content": `, want: map[string]any{}, state: RepairedParse},
		{name: "partial string value", input: `{"content": "Hello, `, want: map[string]any{"content": "Hello, "}, state: RepairedParse},
		{name: "complete member then comma", input: `{"a": "x",`, want: map[string]any{"a": "x"}, state: RepairedParse},
		{name: "partial literal", input: `{"ok": tru`, want: map[string]any{}, state: RepairedParse},
		{name: "partial null", input: `[1, nul`, want: []any{1.0}, state: RepairedParse},
		{name: "number at end", input: `{"n": 12`, want: map[string]any{"n": 12.0}, state: RepairedParse},
		{name: "number with dangling minus", input: `{"n": -`, want: map[string]any{}, state: RepairedParse},
		{name: "number with dangling dot", input: `{"n": 1.`, want: map[string]any{}, state: RepairedParse},
		{name: "number with dangling exponent", input: `[1e`, want: []any{}, state: RepairedParse},
		{name: "number with dangling exponent sign", input: `[1e+`, want: []any{}, state: RepairedParse},
		{name: "open array", input: `[`, want: []any{}, state: RepairedParse},
		{name: "array of partial objects", input: `[{"a":1},{"b":`, want: []any{map[string]any{"a": 1.0}, map[string]any{}}, state: RepairedParse},
		{name: "nested partial", input: `{"a":{"b":[1,2,{"c":"d`, want: map[string]any{"a": map[string]any{"b": []any{1.0, 2.0, map[string]any{"c": "d"}}}}, state: RepairedParse},
		{name: "dangling escape", input: `"abc\`, want: "abc", state: RepairedParse},
		{name: "partial unicode escape", input: `"abc\u00`, want: "abc", state: RepairedParse},
		{name: "complete unicode escape", input: `"abc\u00e9`, want: "abcé", state: RepairedParse},
		{name: "partial surrogate pair", input: `"x\ud83d\ude`, want: "x", state: RepairedParse},
		{name: "complete surrogate pair", input: `"x\ud83d\ude00`, want: "x😀", state: RepairedParse},
		{name: "escaped quote", input: `{"q": "say \"hi`, want: map[string]any{"q": `say "hi`}, state: RepairedParse},
		{name: "truncated multibyte", input: "\"caf\xc3", want: "caf", state: RepairedParse},
		{name: "lone partial literal", input: `tru`, want: nil, state: UndefinedInput},
		{name: "lone minus", input: `-`, want: nil, state: UndefinedInput},
		{name: "syntax error", input: `{"a" 1}`, want: nil, state: FailedParse},
		{name: "bad escape", input: `"\x`, want: nil, state: FailedParse},
		{name: "trailing garbage", input: `{"a":1} x`, want: nil, state: FailedParse},
		{name: "leading zero", input: `[01,`, want: nil, state: FailedParse},
		{name: "not json", input: `hello`, want: nil, state: FailedParse},
		{name: "leading zero at end", input: `[01`, want: nil, state: FailedParse},
		{name: "complete leading zero", input: `01`, want: nil, state: FailedParse},
		{name: "complete dangling dot", input: `{"a":1.}`, want: nil, state: FailedParse},
		{name: "raw newline in string", input: "\"a\nb\"", want: nil, state: FailedParse},
		{name: "raw newline in partial string", input: "{\"a\": \"x\ny", want: nil, state: FailedParse},
		{name: "complete number", input: `42`, want: 42.0, state: SuccessfulParse},
		{name: "complete literal", input: ` true `, want: true, state: SuccessfulParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, state := Parse(tt.input)
			assert.Equal(t, tt.state, state, "state %s", state)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	inputs := []string{
		`{"a":[1,2,{"b":"c`,
		`[true, fal`,
		`{"x": "y\u00`,
		`{"k": 1.5e3, "m": nu`,
	}
	for _, in := range inputs {
		a, sa := Parse(in)
		b, sb := Parse(string([]byte(in)))
		assert.Equal(t, sa, sb)
		assert.Equal(t, a, b)
	}
}

func TestParseMatchesStandardDecoder(t *testing.T) {
	docs := []string{
		`{}`,
		`[]`,
		`"text"`,
		`-12.5e-3`,
		`null`,
		`{"content":"Hello, world!","n":[1,2,3],"nested":{"ok":false}}`,
		`[{"a":"é\n"},{"b":null}]`,
	}
	for _, doc := range docs {
		var want any
		require.NoError(t, json.Unmarshal([]byte(doc), &want))

		got, state := Parse(doc)
		assert.Equal(t, SuccessfulParse, state)
		assert.Equal(t, want, got, doc)
	}
}

func TestParsePrefixesNeverFail(t *testing.T) {
	doc := `{"title":"Weft \"streams\"","tags":["a","b"],"count":-12.5e+2,"ok":true,"none":null,"emoji":"😀"}`
	for i := range len(doc) + 1 {
		_, state := Parse(doc[:i])
		assert.NotEqual(t, FailedParse, state, "prefix %q", doc[:i])
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "successful-parse", SuccessfulParse.String())
	assert.Equal(t, "repaired-parse", RepairedParse.String())
	assert.Equal(t, "failed-parse", FailedParse.String())
	assert.Equal(t, "undefined-input", UndefinedInput.String())
}
