package provider

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"parley/mcp"
	"parley/model"
)

// OpenAIProvider implements model.Provider using OpenAI's official Go SDK.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// Parameters:
//   - baseURL: OpenAI API base URL (default: "https://api.openai.com/v1")
//   - apiKey: OpenAI API key (required)
//   - model: Initial model to use (default: "gpt-4o-mini")
//
// Returns a *ConfigurationError if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL(string(ProviderTypeOpenAI))
	}
	if apiKey == "" {
		return nil, missingCredential(string(ProviderTypeOpenAI))
	}
	if model == "" {
		model = "gpt-4o-mini" // Default to affordable model
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &OpenAIProvider{
		client: client,
		model:  model,
	}, nil
}

// Request implements model.Provider with streaming.
func (p *OpenAIProvider) Request(ctx context.Context, req model.Request) (model.Reply, error) {
	params := chatParams(p.model, req)
	if req.Options.NativeTools && len(req.Tools) > 0 {
		params.Tools = mcp.OpenAITools(req.Tools)
	}
	reply, err := streamChatCompletion(ctx, p.client, params, req.OnChunk, nil)
	if err != nil {
		return model.Reply{}, classify(p.ID(), err)
	}
	return reply, nil
}

// chatParams builds the request parameters shared by OpenAI-compatible
// providers.
func chatParams(modelName string, req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(req.Prompt),
		Model:    openai.ChatModel(modelName),
	}
	if req.Options.Temperature > 0 {
		params.Temperature = openai.Float(req.Options.Temperature)
	}
	if req.Options.MaxOutputTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxOutputTokens))
	}
	return params
}

// streamChatCompletion runs a streaming completion and accumulates text and
// native tool calls. rename, when set, maps wire tool names back to catalog
// names.
func streamChatCompletion(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, onChunk model.StreamCallback, rename func(string) string) (model.Reply, error) {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	acc := openai.ChatCompletionAccumulator{}

	var text strings.Builder
	var calls []model.ToolCall
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			name := tool.Name
			if rename != nil {
				name = rename(name)
			}
			call := model.ToolCall{Name: name, Arguments: ParseToolArguments(tool.Arguments)}
			calls = append(calls, call)
			if onChunk != nil {
				if err := onChunk("", []model.ToolCall{call}); err != nil {
					return model.Reply{}, err
				}
			}
		}

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			content := chunk.Choices[0].Delta.Content
			text.WriteString(content)
			if onChunk != nil {
				if err := onChunk(content, nil); err != nil {
					return model.Reply{}, err
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		return model.Reply{}, err
	}
	if len(acc.Choices) == 0 || (strings.TrimSpace(text.String()) == "" && len(calls) == 0) {
		return model.Reply{}, errEmptyReply
	}
	return model.Reply{Text: text.String(), Calls: calls}, nil
}

// ListModels implements model.Provider.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	modelsPage, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, classify(p.ID(), err)
	}

	result := make([]model.ModelInfo, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, model.ModelInfo{
			Name:         m.ID, // OpenAI models don't have vendor prefixes
			InternalName: m.ID,
			Provider:     p.ID(),
		})
	}

	return result, nil
}

// ID implements model.Provider.
func (p *OpenAIProvider) ID() string {
	return string(ProviderTypeOpenAI)
}

// GetModel implements model.Provider.
func (p *OpenAIProvider) GetModel() string {
	return p.model
}

// SetModel implements model.Provider.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// Ping implements model.Provider by attempting to list models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return classify(p.ID(), err)
	}
	return nil
}
