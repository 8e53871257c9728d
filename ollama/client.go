// Package ollama talks to a local Ollama server: one streamed chat turn at a
// time, model listing, and the table of model families that accept native
// tool definitions.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"

	"parley/model"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3.1:latest"

	pingTimeout = 5 * time.Second
)

// Client is safe for concurrent use; the selected model may change between
// turns.
type Client struct {
	api     *api.Client
	baseURL string

	mu    sync.RWMutex
	model string
}

// Turn is one chat exchange. OnChunk, when set, sees every streamed fragment
// that carries text or tool calls; returning an error aborts the stream.
type Turn struct {
	Messages    []api.Message
	Tools       []api.Tool
	Temperature float64
	MaxTokens   int
	OnChunk     func(text string, calls []api.ToolCall) error
}

// Result is the accumulated stream of a turn.
type Result struct {
	Text  string
	Calls []api.ToolCall
	// Done is false when the server closed the stream without a final frame.
	Done bool
}

func NewClient(baseURL, modelName string) (*Client, error) {
	return NewClientWithHTTP(baseURL, modelName, http.DefaultClient)
}

// NewClientWithHTTP is NewClient with a caller-supplied transport.
func NewClientWithHTTP(baseURL, modelName string, hc *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if modelName == "" {
		modelName = DefaultModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL %q: scheme and host are required", baseURL)
	}
	return &Client{api: api.NewClient(u, hc), baseURL: baseURL, model: modelName}, nil
}

// Send streams one turn and returns everything the model produced.
func (c *Client) Send(ctx context.Context, turn Turn) (Result, error) {
	stream := true
	req := &api.ChatRequest{
		Model:    c.GetModel(),
		Messages: turn.Messages,
		Tools:    turn.Tools,
		Options:  turn.options(),
		Stream:   &stream,
	}

	var res Result
	var text strings.Builder
	err := c.api.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		res.Calls = append(res.Calls, resp.Message.ToolCalls...)
		if resp.Done {
			res.Done = true
		}
		if turn.OnChunk == nil || (resp.Message.Content == "" && len(resp.Message.ToolCalls) == 0) {
			return nil
		}
		return turn.OnChunk(resp.Message.Content, resp.Message.ToolCalls)
	})
	res.Text = text.String()
	return res, err
}

// options maps generation settings to Ollama's option names. Zero values are
// left to the model's defaults.
func (t Turn) options() map[string]any {
	opts := map[string]any{}
	if t.Temperature > 0 {
		opts["temperature"] = t.Temperature
	}
	if t.MaxTokens > 0 {
		opts["num_predict"] = t.MaxTokens
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// ListModels returns the locally pulled models.
func (c *Client) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	out := make([]model.ModelInfo, 0, len(resp.Models))
	for _, m := range resp.Models {
		out = append(out, model.ModelInfo{Name: m.Name, InternalName: m.Name, Size: m.Size, Provider: "ollama"})
	}
	return out, nil
}

func (c *Client) SetModel(name string) {
	c.mu.Lock()
	c.model = name
	c.mu.Unlock()
}

func (c *Client) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

func (c *Client) BaseURL() string { return c.baseURL }

// Ping lists models with a short deadline.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := c.api.List(ctx)
	return err
}

// toolFamilies is checked in order, so longer prefixes sit before the
// shorter ones they extend (llama3.1 before llama3).
var toolFamilies = []struct {
	prefix string
	tools  bool
}{
	{"llama3.3", true},
	{"llama3.2", true},
	{"llama3.1", true},
	{"llama3-gradient", false},
	{"llama3", false},
	{"codellama", false},
	{"command-r", true},
	{"qwen", true},
	{"mistral", true},
	{"nemotron", true},
	{"granite3", true},
	{"deepseek", false},
	{"phi", false},
	{"gemma", false},
}

// SupportsToolCalling reports whether the selected model accepts native
// tool definitions.
func (c *Client) SupportsToolCalling() bool {
	return ModelSupportsToolCalling(c.GetModel())
}

// ModelSupportsToolCalling looks the model family up in the capability
// table. Unknown families get the textual protocol only.
func ModelSupportsToolCalling(name string) bool {
	name = strings.ToLower(name)
	for _, f := range toolFamilies {
		if strings.HasPrefix(name, f.prefix) {
			return f.tools
		}
	}
	return false
}
