package weft

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/weft/provider"
	"github.com/casualjim/weft/schema"
	"github.com/casualjim/weft/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	s, err := newSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.MaxRetries)
	assert.Equal(t, 2*time.Second, s.RetryDelay)
	assert.Equal(t, 1, s.MaxSteps)
	assert.Equal(t, OutputObject, s.Output)
	assert.NotNil(t, s.Logger)
}

func TestSettingsOptions(t *testing.T) {
	tests := []struct {
		name   string
		option CallOption
		check  func(t *testing.T, s CallSettings)
	}{
		{
			name:   "max retries",
			option: WithMaxRetries(5),
			check:  func(t *testing.T, s CallSettings) { assert.Equal(t, 5, s.MaxRetries) },
		},
		{
			name:   "seed",
			option: WithSeed(7),
			check: func(t *testing.T, s CallSettings) {
				require.NotNil(t, s.Seed)
				assert.Equal(t, int64(7), *s.Seed)
			},
		},
		{
			name:   "headers merge",
			option: WithHeaders(map[string]string{"x-a": "1"}),
			check:  func(t *testing.T, s CallSettings) { assert.Equal(t, "1", s.Headers["x-a"]) },
		},
		{
			name:   "provider options",
			option: WithProviderOptions("openai", map[string]any{"user": "u1"}),
			check: func(t *testing.T, s CallSettings) {
				assert.Equal(t, map[string]any{"user": "u1"}, s.ProviderOptions["openai"])
			},
		},
		{
			name:   "enum",
			option: WithEnum("a", "b"),
			check: func(t *testing.T, s CallSettings) {
				assert.Equal(t, OutputEnum, s.Output)
				assert.Equal(t, []string{"a", "b"}, s.EnumValues)
			},
		},
		{
			name:   "tool choice",
			option: WithToolChoice(provider.ToolChoice{Type: provider.ToolChoiceRequired}),
			check: func(t *testing.T, s CallSettings) {
				assert.Equal(t, provider.ToolChoiceRequired, s.ToolChoice.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSettings([]CallOption{tt.option})
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestSettingsValidation(t *testing.T) {
	_, err := newSettings([]CallOption{WithMaxSteps(0), WithMaxOutputTokens(-1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxSteps")
	assert.Contains(t, err.Error(), "maxOutputTokens")

	_, err = newSettings([]CallOption{WithSchema(nil)})
	var invalid *InvalidArgumentError
	require.ErrorAs(t, err, &invalid)

	_, err = newSettings([]CallOption{WithTools(tool.Definition{Name: "broken"})})
	require.Error(t, err, "tools are validated when added")
}

func TestSettingsPrompt(t *testing.T) {
	t.Run("system and prompt", func(t *testing.T) {
		s := CallSettings{System: "sys", Prompt: "hi"}
		msgs, err := s.prompt()
		require.NoError(t, err)
		assert.Equal(t, []provider.Message{provider.SystemMessage("sys"), provider.UserMessage("hi")}, msgs)
	})

	t.Run("messages", func(t *testing.T) {
		history := []provider.Message{provider.UserMessage("a"), provider.AssistantMessage(provider.TextPart{Text: "b"})}
		s := CallSettings{Messages: history}
		msgs, err := s.prompt()
		require.NoError(t, err)
		assert.Equal(t, history, msgs)
	})

	t.Run("neither", func(t *testing.T) {
		_, err := (&CallSettings{}).prompt()
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestCallOptionsTools(t *testing.T) {
	other := tool.Must("other", func(_ context.Context, _ weatherInput, _ tool.CallOptions) (string, error) { return "", nil })

	s, err := newSettings([]CallOption{
		WithTools(weatherTool(), other),
		WithActiveTools("weather"),
		WithHeaders(map[string]string{"x-a": "1"}),
		WithHeaders(map[string]string{"x-b": "2"}),
	})
	require.NoError(t, err)

	co := s.callOptions([]provider.Message{provider.UserMessage("hi")})
	require.Len(t, co.Tools, 1)
	assert.Equal(t, "weather", co.Tools[0].Name)
	assert.Equal(t, map[string]string{"x-a": "1", "x-b": "2"}, co.Headers)

	bare, err := newSettings(nil)
	require.NoError(t, err)
	assert.Empty(t, bare.callOptions(nil).Tools)
}

func TestStrategyFor(t *testing.T) {
	t.Run("object reflects the type", func(t *testing.T) {
		s := defaultSettings()
		st, err := strategyFor[greeting](&s)
		require.NoError(t, err)
		assert.Equal(t, OutputObject, st.Type())
		require.NotNil(t, st.JSONSchema())
	})

	t.Run("array of interface needs a schema", func(t *testing.T) {
		s := defaultSettings()
		s.Output = OutputArray
		_, err := strategyFor[[]any](&s)
		require.ErrorIs(t, err, ErrNoOutputSpecified)

		s.Schema = schema.For[item]()
		st, err := strategyFor[[]any](&s)
		require.NoError(t, err)
		assert.Equal(t, OutputArray, st.Type())
	})

	t.Run("unknown mode", func(t *testing.T) {
		s := defaultSettings()
		s.Output = "table"
		_, err := strategyFor[greeting](&s)
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})
}
