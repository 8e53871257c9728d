package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/config"
	"parley/model"
	"parley/provider/testutil"
)

var (
	_ model.Provider = (*OllamaProvider)(nil)
	_ model.Provider = (*OpenAIProvider)(nil)
	_ model.Provider = (*OpenRouterProvider)(nil)
	_ model.Provider = (*AnthropicProvider)(nil)
	_ model.Provider = (*GeminiProvider)(nil)
	_ model.Provider = (*testutil.MockProvider)(nil)
)

func TestDefaultLimits(t *testing.T) {
	tests := []struct {
		id     string
		window int
		cpt    float64
	}{
		{"ollama", 8192, 3.5},
		{"openai", 128000, 4},
		{"anthropic", 200000, 3.5},
		{"openrouter", 32768, 3.8},
		{"gemini", 128000, 4},
		{"something-else", 8192, 4},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			l := DefaultLimits(tt.id)
			assert.Equal(t, tt.window, l.ContextWindow)
			assert.InDelta(t, tt.cpt, l.CharsPerToken, 1e-9)
		})
	}
}

func TestLimitsFor(t *testing.T) {
	assert.Equal(t, DefaultLimits("anthropic"), LimitsFor(config.ProviderConfig{ProviderID: "anthropic"}))

	l := LimitsFor(config.ProviderConfig{ProviderID: "ollama", ContextWindow: 32768})
	assert.Equal(t, 32768, l.ContextWindow)
	assert.InDelta(t, 3.5, l.CharsPerToken, 1e-9)

	l = LimitsFor(config.ProviderConfig{ProviderID: "google", CharsPerToken: 2.5})
	assert.Equal(t, 128000, l.ContextWindow)
	assert.InDelta(t, 2.5, l.CharsPerToken, 1e-9)
}

func TestOptionsFor(t *testing.T) {
	opts := OptionsFor(config.ProviderConfig{Temperature: 0.2, MaxOutputTokens: 512, NativeTools: true})
	assert.Equal(t, model.Options{Temperature: 0.2, MaxOutputTokens: 512, NativeTools: true}, opts)
}

func TestMockProviderScript(t *testing.T) {
	p := testutil.ScriptedProvider(model.Reply{Text: "one"}, model.Reply{Text: "two"})
	ctx := context.Background()

	for _, want := range []string{"one", "two", "two"} {
		reply, err := p.Request(ctx, model.Request{Prompt: testutil.SingleUserPrompt("hi")})
		require.NoError(t, err)
		assert.Equal(t, want, reply.Text)
	}
	assert.Len(t, p.Requests(), 3)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := p.Request(cancelled, model.Request{})
	assert.ErrorIs(t, err, context.Canceled)
}
