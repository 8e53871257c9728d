package config

import (
	"fmt"
	"strconv"
	"strings"
)

// UpdateProviderField changes one field of a [[providers]] entry in the
// user config, adding the entry when it does not exist yet.
//
// Fields: "base_url", "model", "temperature", "max_output_tokens",
// "context_window", "native_tools".
func UpdateProviderField(dataDir, providerID, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := setProviderField(cfg, providerID, fieldName, value); err != nil {
		return err
	}
	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func setProviderField(cfg *UserConfig, providerID, fieldName, value string) error {
	providerID = strings.ToLower(providerID)
	p := findOrAddProvider(cfg, providerID)

	var err error
	switch fieldName {
	case "base_url":
		p.BaseURL = value
	case "model":
		p.Model = value
	case "temperature":
		p.Temperature, err = strconv.ParseFloat(value, 64)
	case "max_output_tokens":
		p.MaxOutputTokens, err = strconv.Atoi(value)
	case "context_window":
		p.ContextWindow, err = strconv.Atoi(value)
	case "native_tools":
		p.NativeTools, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", fieldName, err)
	}
	return nil
}

func findOrAddProvider(cfg *UserConfig, providerID string) *ProviderSettings {
	for i := range cfg.Providers {
		if strings.EqualFold(cfg.Providers[i].ID, providerID) {
			return &cfg.Providers[i]
		}
	}
	cfg.Providers = append(cfg.Providers, ProviderSettings{
		ID:      providerID,
		BaseURL: getProviderDefaultBaseURL(providerID),
	})
	return &cfg.Providers[len(cfg.Providers)-1]
}

// SetDefaultProvider makes providerID the default and persists it.
func SetDefaultProvider(dataDir, providerID string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.DefaultProvider = strings.ToLower(providerID)
	findOrAddProvider(cfg, cfg.DefaultProvider)
	if err := SaveUserConfig(cfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// SetAPIKey stores key for providerID in the credential store and persists
// it. An empty key deletes the credential.
func (c *Config) SetAPIKey(providerID, key string) error {
	if c.CredentialStore == nil {
		return fmt.Errorf("credential store not loaded")
	}
	providerID = strings.ToLower(providerID)
	if key == "" {
		c.CredentialStore.Delete(providerID)
	} else {
		c.CredentialStore.Set(providerID, key)
	}
	if err := c.CredentialStore.Save(c.DataDir()); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	return nil
}

type providerInfo struct {
	display string
	baseURL string
}

var providerTable = map[string]providerInfo{
	"ollama":     {"Ollama", "http://localhost:11434"},
	"openrouter": {"OpenRouter", "https://openrouter.ai/api/v1"},
	"anthropic":  {"Anthropic", ""},
	"openai":     {"OpenAI", "https://api.openai.com/v1"},
	"gemini":     {"Gemini", ""},
}

// ProviderDisplayName returns the human name of a provider id, or the id
// itself when it is not a known provider.
func ProviderDisplayName(providerID string) string {
	if info, ok := providerTable[strings.ToLower(providerID)]; ok {
		return info.display
	}
	return providerID
}

// getProviderDefaultBaseURL is empty for providers whose SDK picks its own
// endpoint.
func getProviderDefaultBaseURL(providerID string) string {
	return providerTable[providerID].baseURL
}
