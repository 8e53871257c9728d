package provider

import (
	"parley/model"
)

// NewProvider creates a provider based on configuration.
//
// This is the centralized factory function for creating any provider type.
// It dispatches on Config.ID. An unknown id and a missing API key for a
// cloud provider are both reported as *ConfigurationError without touching
// the network.
//
// Example:
//
//	cfg := provider.Config{
//	    ID:     provider.ProviderTypeAnthropic,
//	    APIKey: "sk-ant-...",
//	}
//	p, err := provider.NewProvider(cfg)
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.ID {
	case ProviderTypeOllama:
		return checked(NewOllamaProvider(cfg.BaseURL, cfg.Model))
	case ProviderTypeOpenRouter:
		return checked(NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeOpenAI:
		return checked(NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeAnthropic:
		return checked(NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model))
	case ProviderTypeGemini:
		return checked(NewGeminiProvider(cfg.APIKey, cfg.Model))
	case "":
		return nil, &ConfigurationError{Reason: "no provider selected"}
	default:
		return nil, &ConfigurationError{Provider: string(cfg.ID), Reason: "unknown provider"}
	}
}

// checked keeps a failed constructor from leaking a typed nil into the
// interface.
func checked[P model.Provider](p P, err error) (model.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// MapProviderIDToType converts a config provider ID to a factory ProviderType.
//
// Provider ids are case-sensitive in config files; "google" is accepted as an
// alias for Gemini. For unknown IDs the ID is returned as-is and the factory
// reports it.
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	case "gemini", "google":
		return ProviderTypeGemini
	default:
		return ProviderType(id)
	}
}
