package memory

import (
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
)

// EmbedderConfig selects the embedding backend for the vector stores.
type EmbedderConfig struct {
	// Provider is "ollama", "openai" or "openai-compat".
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// DefaultEmbeddingModel is used with Ollama when no model is configured. It
// matches the MiniLM family the vector service has always used.
const DefaultEmbeddingModel = "all-minilm"

// NewEmbeddingFunc builds a chromem embedding function for cfg.
func NewEmbeddingFunc(cfg EmbedderConfig) (chromem.EmbeddingFunc, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "ollama":
		model := cfg.Model
		if model == "" {
			model = DefaultEmbeddingModel
		}
		baseURL := ""
		if cfg.BaseURL != "" {
			baseURL = strings.TrimRight(cfg.BaseURL, "/") + "/api"
		}
		return chromem.NewEmbeddingFuncOllama(model, baseURL), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embeddings require an API key")
		}
		model := cfg.Model
		if model == "" {
			model = string(chromem.EmbeddingModelOpenAI3Small)
		}
		return chromem.NewEmbeddingFuncOpenAI(cfg.APIKey, chromem.EmbeddingModelOpenAI(model)), nil
	case "openai-compat", "openrouter":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("%s embeddings require a base URL", cfg.Provider)
		}
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, nil), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
