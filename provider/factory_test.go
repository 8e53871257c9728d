package provider

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantType string
		wantErr  string
	}{
		{"ollama needs no key", Config{ID: ProviderTypeOllama, BaseURL: "http://localhost:11434", Model: "llama3.1"}, "*provider.OllamaProvider", ""},
		{"ollama default url", Config{ID: ProviderTypeOllama}, "*provider.OllamaProvider", ""},
		{"ollama bad url", Config{ID: ProviderTypeOllama, BaseURL: "localhost"}, "", "scheme and host"},
		{"openai", Config{ID: ProviderTypeOpenAI, APIKey: "sk-test"}, "*provider.OpenAIProvider", ""},
		{"openai without key", Config{ID: ProviderTypeOpenAI}, "", "API key is required"},
		{"openrouter", Config{ID: ProviderTypeOpenRouter, APIKey: "sk-or"}, "*provider.OpenRouterProvider", ""},
		{"openrouter without key", Config{ID: ProviderTypeOpenRouter}, "", "API key is required"},
		{"anthropic", Config{ID: ProviderTypeAnthropic, APIKey: "sk-ant"}, "*provider.AnthropicProvider", ""},
		{"anthropic without key", Config{ID: ProviderTypeAnthropic}, "", "API key is required"},
		{"gemini", Config{ID: ProviderTypeGemini, APIKey: "g-key"}, "*provider.GeminiProvider", ""},
		{"gemini without key", Config{ID: ProviderTypeGemini}, "", "API key is required"},
		{"unknown", Config{ID: "mistral-cloud"}, "", "unknown provider"},
		{"empty", Config{}, "", "no provider selected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Nil(t, p, "a failed constructor must not leak a typed nil")
				var cfgErr *ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, fmt.Sprintf("%T", p))
		})
	}
}

func TestFactoryDefaultsModel(t *testing.T) {
	p, err := NewProvider(Config{ID: ProviderTypeOllama})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:latest", p.GetModel())

	p.SetModel("qwen2.5-coder")
	assert.Equal(t, "qwen2.5-coder", p.GetModel())
	assert.Equal(t, "ollama", p.ID())
}

func TestMapProviderIDToType(t *testing.T) {
	assert.Equal(t, ProviderTypeGemini, MapProviderIDToType("google"))
	assert.Equal(t, ProviderTypeGemini, MapProviderIDToType("gemini"))
	assert.Equal(t, ProviderTypeOpenRouter, MapProviderIDToType("openrouter"))
	assert.Equal(t, ProviderType("other"), MapProviderIDToType("other"))
}

func TestKnownProvidersAreConstructible(t *testing.T) {
	for _, id := range KnownProviders() {
		_, err := NewProvider(Config{ID: ProviderType(id), APIKey: "key"})
		assert.NoError(t, err, id)
	}
}
