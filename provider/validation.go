package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"parley/config"
	"parley/model"
)

// pingTimeout bounds each provider check.
const pingTimeout = 15 * time.Second

// PingResult is the outcome of checking one provider.
type PingResult struct {
	ProviderID string
	Model      string
	Valid      bool
	Models     []model.ModelInfo
	Err        error
}

// CheckProviders pings each provider in ids concurrently and lists its
// models. Results keep the order of ids. Failures are reported per result,
// never as a whole.
func CheckProviders(ctx context.Context, cfg *config.Config, ids []string, logger zerolog.Logger) []PingResult {
	log := logger.With().Str("component", "provider").Logger()
	results := make([]PingResult, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = checkProvider(ctx, cfg.ProviderConfig(id))
			if results[i].Err != nil {
				log.Debug().Err(results[i].Err).Str("provider", id).Msg("provider check failed")
			} else {
				log.Debug().Str("provider", id).Int("models", len(results[i].Models)).Msg("provider check passed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func checkProvider(ctx context.Context, pc config.ProviderConfig) PingResult {
	result := PingResult{ProviderID: pc.ProviderID}

	p, err := FromConfig(pc)
	if err != nil {
		result.Err = err
		return result
	}
	result.Model = p.GetModel()

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		result.Err = fmt.Errorf("connection failed: %w", err)
		return result
	}
	result.Valid = true

	models, err := p.ListModels(ctx)
	if err != nil {
		result.Err = fmt.Errorf("listing models: %w", err)
		return result
	}
	result.Models = models
	return result
}
