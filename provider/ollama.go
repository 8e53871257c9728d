package provider

import (
	"context"
	"strings"

	"github.com/ollama/ollama/api"

	"parley/mcp"
	"parley/model"
	"parley/ollama"
)

// OllamaProvider adapts ollama.Client to model.Provider. The tool catalog
// is sent natively only to model families known to accept it.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider falls back to ollama.DefaultURL and ollama.DefaultModel.
// An unparsable baseURL is a *ConfigurationError.
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, &ConfigurationError{Provider: string(ProviderTypeOllama), Reason: err.Error()}
	}

	return &OllamaProvider{
		client: client,
	}, nil
}

// Request implements model.Provider.
func (p *OllamaProvider) Request(ctx context.Context, req model.Request) (model.Reply, error) {
	turn := ollama.Turn{
		Messages:    ConvertToOllamaMessages(req.Prompt),
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxOutputTokens,
	}
	if req.Options.NativeTools && len(req.Tools) > 0 && p.client.SupportsToolCalling() {
		turn.Tools = mcp.OllamaTools(req.Tools)
	}
	if req.OnChunk != nil {
		turn.OnChunk = func(text string, calls []api.ToolCall) error {
			return req.OnChunk(text, ConvertToProviderToolCalls(calls))
		}
	}

	res, err := p.client.Send(ctx, turn)
	if err != nil {
		return model.Reply{}, classify(p.ID(), err)
	}

	reply := model.Reply{Text: res.Text, Calls: ConvertToProviderToolCalls(res.Calls)}
	if strings.TrimSpace(reply.Text) == "" && len(reply.Calls) == 0 {
		return model.Reply{}, classify(p.ID(), errEmptyReply)
	}
	return reply, nil
}

// ListModels implements model.Provider (direct passthrough).
func (p *OllamaProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, classify(p.ID(), err)
	}
	return models, nil
}

// ID implements model.Provider.
func (p *OllamaProvider) ID() string {
	return string(ProviderTypeOllama)
}

// GetModel implements model.Provider (direct passthrough).
func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

// SetModel implements model.Provider (direct passthrough).
func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

// Ping implements model.Provider (direct passthrough).
//
// Checks if the Ollama server is reachable by listing models with a short
// timeout.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return classify(p.ID(), err)
	}
	return nil
}
