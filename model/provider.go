package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts backend implementations (Ollama, OpenAI, OpenRouter,
// Anthropic, Gemini) behind one request/reply contract.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the orchestration
// loop can depend on Provider without importing every backend SDK.
type Provider interface {
	// Request sends one rendered prompt and returns the complete reply. Tools
	// are advertised through the backend's native tool API for this request
	// only, and only when Options.NativeTools is set.
	Request(ctx context.Context, req Request) (Reply, error)

	// ListModels returns the models the backend offers.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// ID returns the provider id this instance was built for ("ollama", "openai", ...).
	ID() string

	// GetModel returns the currently selected model name.
	GetModel() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// ModelInfo describes one model offered by a provider.
type ModelInfo struct {
	Name         string // Display name (vendor prefix stripped for OpenRouter)
	InternalName string // Full API name
	Size         int64
	Provider     string // Provider ID: "ollama", "openrouter", "anthropic", ...
}

// Options are the per-request generation settings read from ProviderConfig.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
	// NativeTools passes the tool catalog through the backend's structured
	// tool API in addition to the text protocol.
	NativeTools bool
}

// Request is a single backend round trip.
type Request struct {
	Prompt  Prompt
	Tools   []mcptypes.Tool
	Options Options
	// OnChunk, when set, receives text deltas as they stream in.
	OnChunk StreamCallback
}

// Reply is the raw backend answer. Text may interleave prose with embedded
// tool invocations; Calls holds structured calls returned by native tool APIs.
type Reply struct {
	Text  string
	Calls []ToolCall
}

// StreamCallback is called for each chunk of a streamed response.
type StreamCallback func(chunk string, toolCalls []ToolCall) error
