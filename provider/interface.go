// Package provider adapts text-generation backends to one request/reply
// contract.
//
// parley talks to several interchangeable backends (Ollama, OpenAI,
// OpenRouter, Anthropic, Gemini). Each adapter turns a budgeted model.Prompt
// into the backend's wire format, accumulates the streamed answer into a
// model.Reply and maps failures onto three error types:
//   - ConfigurationError: unknown provider id or missing credential, raised
//     before any network call
//   - BackendError: transport failure or non-success status
//   - ProtocolError: the backend answered with something unusable
//
// # Tool protocol
//
// Tools are offered to every backend through the text protocol described by
// ToolInstructions: the model writes {"tool": ..., "arguments": {...}} objects
// in its reply and the extract package finds them. Backends with a structured
// tool API additionally receive the catalog natively when Options.NativeTools
// is set; those calls come back in Reply.Calls.
//
// # Usage
//
//	p, err := provider.NewProvider(provider.Config{
//	    ID:      provider.ProviderTypeOllama,
//	    BaseURL: "http://localhost:11434",
//	    Model:   "llama3.1",
//	})
//	if err != nil {
//	    // handle error
//	}
//	reply, err := p.Request(ctx, model.Request{Prompt: prompt})
package provider

// Note: The Provider interface and StreamCallback are defined in the model package
// (model/provider.go) to avoid import cycles. This package implements model.Provider.

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
	ProviderTypeGemini     ProviderType = "gemini"
)

// Config holds provider-specific configuration.
type Config struct {
	ID      ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}

// Limits are the sizing facts the budgeter needs about a provider.
type Limits struct {
	ContextWindow int
	CharsPerToken float64
}

var defaultLimits = map[ProviderType]Limits{
	ProviderTypeOllama:     {ContextWindow: 8192, CharsPerToken: 3.5},
	ProviderTypeOpenAI:     {ContextWindow: 128000, CharsPerToken: 4},
	ProviderTypeAnthropic:  {ContextWindow: 200000, CharsPerToken: 3.5},
	ProviderTypeOpenRouter: {ContextWindow: 32768, CharsPerToken: 3.8},
	ProviderTypeGemini:     {ContextWindow: 128000, CharsPerToken: 4},
}

// DefaultLimits returns the built-in limits for a provider id. Unknown ids
// get a conservative 8192-token window.
func DefaultLimits(id string) Limits {
	if l, ok := defaultLimits[ProviderType(id)]; ok {
		return l
	}
	return Limits{ContextWindow: 8192, CharsPerToken: 4}
}

var defaultBaseURLs = map[ProviderType]string{
	ProviderTypeOllama:     "http://localhost:11434",
	ProviderTypeOpenAI:     "https://api.openai.com/v1",
	ProviderTypeOpenRouter: "https://openrouter.ai/api/v1",
	ProviderTypeAnthropic:  "https://api.anthropic.com",
}

// DefaultBaseURL returns the endpoint used when none is configured. Gemini
// has none; its SDK picks the endpoint.
func DefaultBaseURL(id string) string {
	return defaultBaseURLs[ProviderType(id)]
}

// KnownProviders lists every supported provider id.
func KnownProviders() []string {
	return []string{
		string(ProviderTypeOllama),
		string(ProviderTypeOpenAI),
		string(ProviderTypeOpenRouter),
		string(ProviderTypeAnthropic),
		string(ProviderTypeGemini),
	}
}
