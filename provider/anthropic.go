package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"parley/mcp"
	"parley/model"
)

// defaultAnthropicMaxTokens is sent when no output limit is configured; the
// Messages API requires one.
const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements model.Provider using Anthropic's official Go SDK.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider defaults to Claude Sonnet 4.5 when model is empty.
// A missing API key is a *ConfigurationError.
func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL(string(ProviderTypeAnthropic))
	}
	if apiKey == "" {
		return nil, missingCredential(string(ProviderTypeAnthropic))
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client: &client,
		model:  anthropicModel,
	}, nil
}

// Request implements model.Provider with streaming.
func (p *AnthropicProvider) Request(ctx context.Context, req model.Request) (model.Reply, error) {
	messages, system := convertToAnthropicMessages(req.Prompt)
	if len(messages) == 0 {
		return model.Reply{}, &ProtocolError{Provider: p.ID(), Err: errEmptyPrompt}
	}

	maxTokens := int64(defaultAnthropicMaxTokens)
	if req.Options.MaxOutputTokens > 0 {
		maxTokens = int64(req.Options.MaxOutputTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Options.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Options.Temperature)
	}
	if req.Options.NativeTools && len(req.Tools) > 0 {
		params.Tools = mcp.AnthropicTools(req.Tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return model.Reply{}, &ProtocolError{Provider: p.ID(), Err: err}
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && req.OnChunk != nil {
				if err := req.OnChunk(text.Text, nil); err != nil {
					return model.Reply{}, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return model.Reply{}, classify(p.ID(), err)
	}

	reply := model.Reply{
		Text:  extractText(msg.Content),
		Calls: extractToolCalls(msg.Content),
	}
	if strings.TrimSpace(reply.Text) == "" && len(reply.Calls) == 0 {
		return model.Reply{}, classify(p.ID(), errEmptyReply)
	}
	if req.OnChunk != nil && len(reply.Calls) > 0 {
		if err := req.OnChunk("", reply.Calls); err != nil {
			return model.Reply{}, err
		}
	}
	return reply, nil
}

// ListModels implements model.Provider with a curated list of Claude models.
func (p *AnthropicProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	models := []string{
		string(anthropic.ModelClaudeSonnet4_5_20250929),
		"claude-opus-4-1-20250805",
		"claude-sonnet-4-20250514",
		"claude-3-5-haiku-20241022",
	}

	result := make([]model.ModelInfo, 0, len(models))
	for _, m := range models {
		result = append(result, model.ModelInfo{
			Name:         m,
			InternalName: m,
			Provider:     p.ID(),
		})
	}
	return result, nil
}

// ID implements model.Provider.
func (p *AnthropicProvider) ID() string {
	return string(ProviderTypeAnthropic)
}

// GetModel implements model.Provider.
func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

// SetModel implements model.Provider.
func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping implements model.Provider with a one-token request, since Anthropic
// has no health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return classify(p.ID(), err)
	}
	return nil
}

func extractText(content []anthropic.ContentBlockUnion) string {
	var b strings.Builder
	for _, block := range content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// extractToolCalls extracts tool_use blocks from Anthropic message content.
// Blocks whose input is not a JSON object are skipped.
func extractToolCalls(content []anthropic.ContentBlockUnion) []model.ToolCall {
	var toolCalls []model.ToolCall
	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		var args map[string]any
		if err := json.Unmarshal(toolUse.Input, &args); err != nil || args == nil {
			continue
		}
		toolCalls = append(toolCalls, model.ToolCall{
			Name:      toolUse.Name,
			Arguments: args,
		})
	}
	return toolCalls
}
