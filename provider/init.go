package provider

import (
	"github.com/rs/zerolog"

	"parley/config"
	"parley/model"
)

// FromConfig creates the provider described by a resolved config view.
func FromConfig(pc config.ProviderConfig) (model.Provider, error) {
	return NewProvider(Config{
		ID:      MapProviderIDToType(pc.ProviderID),
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
		APIKey:  pc.APIKey,
	})
}

// LimitsFor returns the configured limits, falling back to the built-in
// ones for any value left at zero.
func LimitsFor(pc config.ProviderConfig) Limits {
	limits := DefaultLimits(string(MapProviderIDToType(pc.ProviderID)))
	if pc.ContextWindow > 0 {
		limits.ContextWindow = pc.ContextWindow
	}
	if pc.CharsPerToken > 0 {
		limits.CharsPerToken = pc.CharsPerToken
	}
	return limits
}

// OptionsFor returns the per-request generation options of a provider.
func OptionsFor(pc config.ProviderConfig) model.Options {
	return model.Options{
		Temperature:     pc.Temperature,
		MaxOutputTokens: pc.MaxOutputTokens,
		NativeTools:     pc.NativeTools,
	}
}

// InitializeProviders creates every configured provider plus the default
// one. A provider that cannot be created is logged and left out so that
// the others stay usable; the caller reports a missing default when a turn
// needs it.
func InitializeProviders(cfg *config.Config, logger zerolog.Logger) map[string]model.Provider {
	log := logger.With().Str("component", "provider").Logger()
	providers := make(map[string]model.Provider)

	ids := cfg.ConfiguredProviders()
	ids = append(ids, cfg.DefaultProvider)

	for _, id := range ids {
		if _, done := providers[id]; done || id == "" {
			continue
		}
		p, err := FromConfig(cfg.ProviderConfig(id))
		if err != nil {
			log.Warn().Err(err).Str("provider", id).Msg("provider not initialized")
			continue
		}
		providers[id] = p
		log.Debug().Str("provider", id).Str("model", p.GetModel()).Msg("provider initialized")
	}

	return providers
}
