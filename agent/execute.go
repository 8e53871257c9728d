package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"parley/model"
)

// Executor runs one tool by name.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (any, error)
}

// executeCalls runs a call set concurrently, at most parallel at a time,
// each under its own timeout. It returns once every call has settled, with
// results in call order. Failures and panics become Failure results; they
// never abort the batch.
func executeCalls(ctx context.Context, exec Executor, calls []model.ToolCall, parallel int, timeout time.Duration, logger zerolog.Logger) []model.ToolResult {
	results := make([]model.ToolResult, len(calls))

	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = executeOne(ctx, exec, call, timeout, logger)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func executeOne(ctx context.Context, exec Executor, call model.ToolCall, timeout time.Duration, logger zerolog.Logger) (result model.ToolResult) {
	start := time.Now()
	log := logger.With().Str("tool", call.Name).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("tool panicked")
			result = model.Failure(call, fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	payload, err := exec.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("tool failed")
		return model.Failure(call, err.Error())
	}
	log.Debug().Dur("elapsed", time.Since(start)).Msg("tool succeeded")
	return model.Success(call, payload)
}
