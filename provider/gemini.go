package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"parley/mcp"
	"parley/model"
)

// GeminiProvider implements model.Provider using Google's generative-ai-go SDK.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider instance.
//
// Parameters:
//   - apiKey: Gemini API key (required)
//   - model: Initial model to use (default: "gemini-1.5-flash")
//
// Returns a *ConfigurationError if the API key is missing. Creating the client
// does not contact the API.
func NewGeminiProvider(apiKey, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, missingCredential(string(ProviderTypeGemini))
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, &ConfigurationError{Provider: string(ProviderTypeGemini), Reason: err.Error()}
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// Request implements model.Provider. The prompt's last user turn is sent as
// the new message; everything before it becomes chat history.
func (p *GeminiProvider) Request(ctx context.Context, req model.Request) (model.Reply, error) {
	contents, system := convertToGeminiContents(req.Prompt)
	if len(contents) == 0 {
		return model.Reply{}, &ProtocolError{Provider: p.ID(), Err: errEmptyPrompt}
	}

	gm := p.client.GenerativeModel(p.model)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if req.Options.Temperature > 0 {
		gm.SetTemperature(float32(req.Options.Temperature))
	}
	if req.Options.MaxOutputTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.Options.MaxOutputTokens))
	}
	if req.Options.NativeTools && len(req.Tools) > 0 {
		gm.Tools = []*genai.Tool{{FunctionDeclarations: mcp.GeminiTools(req.Tools)}}
	}

	if contents[len(contents)-1].Role == "model" {
		contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text("Continue.")}})
	}
	last := contents[len(contents)-1]
	session := gm.StartChat()
	session.History = contents[:len(contents)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return model.Reply{}, &ProtocolError{Provider: p.ID(), Err: err}
		}
		return model.Reply{}, classify(p.ID(), err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.Reply{}, classify(p.ID(), errEmptyReply)
	}

	var text strings.Builder
	var calls []model.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args := v.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, model.ToolCall{Name: v.Name, Arguments: args})
		}
	}

	reply := model.Reply{Text: text.String(), Calls: calls}
	if strings.TrimSpace(reply.Text) == "" && len(reply.Calls) == 0 {
		return model.Reply{}, classify(p.ID(), errEmptyReply)
	}
	if req.OnChunk != nil {
		if err := req.OnChunk(reply.Text, reply.Calls); err != nil {
			return model.Reply{}, err
		}
	}
	return reply, nil
}

// ListModels implements model.Provider.
func (p *GeminiProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	var result []model.ModelInfo
	it := p.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classify(p.ID(), err)
		}
		result = append(result, model.ModelInfo{
			Name:         strings.TrimPrefix(m.Name, "models/"),
			InternalName: m.Name,
			Provider:     p.ID(),
		})
	}
	return result, nil
}

// ID implements model.Provider.
func (p *GeminiProvider) ID() string {
	return string(ProviderTypeGemini)
}

// GetModel implements model.Provider.
func (p *GeminiProvider) GetModel() string {
	return p.model
}

// SetModel implements model.Provider.
func (p *GeminiProvider) SetModel(model string) {
	p.model = model
}

// Ping implements model.Provider by counting tokens of a tiny input, which
// validates the key without generating anything.
func (p *GeminiProvider) Ping(ctx context.Context) error {
	if _, err := p.client.GenerativeModel(p.model).CountTokens(ctx, genai.Text("ping")); err != nil {
		return classify(p.ID(), fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Close releases the underlying client.
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}
