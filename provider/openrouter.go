package provider

import (
	"context"
	"slices"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"parley/mcp"
	"parley/model"
)

const defaultOpenRouterModel = "meta-llama/llama-3.2-90b-instruct"

// OpenRouterProvider talks to OpenRouter through its OpenAI-compatible
// endpoint.
type OpenRouterProvider struct {
	client openai.Client
	model  string
}

// NewOpenRouterProvider returns a *ConfigurationError when apiKey is empty.
func NewOpenRouterProvider(baseURL, apiKey, modelName string) (*OpenRouterProvider, error) {
	if apiKey == "" {
		return nil, missingCredential(string(ProviderTypeOpenRouter))
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL(string(ProviderTypeOpenRouter))
	}
	if modelName == "" {
		modelName = defaultOpenRouterModel
	}
	return &OpenRouterProvider{
		client: openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey(apiKey)),
		model:  modelName,
	}, nil
}

// OpenRouter tool names must match ^[a-zA-Z0-9_-]{1,64}$, so the dot that
// qualifies MCP tools is sent as a double underscore and mapped back.
const routerNameSep = "__"

func routerTools(tools []mcptypes.Tool) []mcptypes.Tool {
	out := slices.Clone(tools)
	for i := range out {
		out[i].Name = strings.ReplaceAll(out[i].Name, ".", routerNameSep)
	}
	return out
}

func fromRouterName(name string) string {
	return strings.ReplaceAll(name, routerNameSep, ".")
}

// Request implements model.Provider.
func (p *OpenRouterProvider) Request(ctx context.Context, req model.Request) (model.Reply, error) {
	params := chatParams(p.model, req)
	if req.Options.NativeTools && len(req.Tools) > 0 {
		params.Tools = mcp.OpenAITools(routerTools(req.Tools))
	}
	reply, err := streamChatCompletion(ctx, p.client, params, req.OnChunk, fromRouterName)
	if err != nil {
		return model.Reply{}, classify(p.ID(), err)
	}
	return reply, nil
}

// ListModels lists models by their short name; InternalName keeps the
// vendor prefix.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, classify(p.ID(), err)
	}

	result := make([]model.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, model.ModelInfo{
			Name:         stripProviderPrefix(m.ID),
			InternalName: m.ID,
			Provider:     p.ID(),
		})
	}

	return result, nil
}

// ID implements model.Provider.
func (p *OpenRouterProvider) ID() string {
	return string(ProviderTypeOpenRouter)
}

// GetModel returns the vendor-qualified name sent to the API.
func (p *OpenRouterProvider) GetModel() string {
	return p.model
}

// SetModel implements model.Provider.
func (p *OpenRouterProvider) SetModel(model string) {
	p.model = model
}

// Ping implements model.Provider by attempting to list models.
func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return classify(p.ID(), err)
	}
	return nil
}

// stripProviderPrefix turns "meta-llama/llama-3.2-90b-instruct" into
// "llama-3.2-90b-instruct".
func stripProviderPrefix(modelName string) string {
	_, name, found := strings.Cut(modelName, "/")
	if !found {
		return modelName
	}
	return name
}
