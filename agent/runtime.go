package agent

import (
	"errors"
	"time"

	"parley/budget"
	"parley/config"
	"parley/guard"
	"parley/memory"
	"parley/model"
	"parley/provider"
	"parley/tool"
)

// RuntimeContext holds the collaborators a loop works with. It is built
// once by the caller and passed to NewLoop; nothing is looked up globally.
type RuntimeContext struct {
	Provider       model.Provider
	ProviderConfig config.ProviderConfig
	Tools          *tool.Registry
	// Memory may be nil, which disables retrieval and storage.
	Memory memory.Store
	// Preferences may be nil.
	Preferences *tool.Preferences
}

func (rt *RuntimeContext) validate() error {
	if rt == nil {
		return errors.New("runtime context is required")
	}
	if rt.Provider == nil {
		return errors.New("runtime context has no provider")
	}
	if rt.Tools == nil {
		rt.Tools = tool.NewRegistry()
	}
	return nil
}

// Config tunes a loop. Zero values take defaults.
type Config struct {
	SystemPrompt      string
	HideReasoning     bool
	MaxToolCalls      int
	MaxParallelTools  int
	ToolTimeout       time.Duration
	ContextLimit      int
	CriticalExchanges int
	MemoryTopK        int
	ToolTopK          int
	// HistorySize is how many executed call sets the guard remembers.
	HistorySize int
}

const (
	defaultToolTimeout = 60 * time.Second
	defaultParallel    = 4
	defaultMemoryTopK  = 5
	defaultToolTopK    = 8
)

func (c Config) withDefaults() Config {
	if c.MaxToolCalls <= 0 {
		c.MaxToolCalls = guard.DefaultMaxToolCalls
	}
	if c.MaxParallelTools <= 0 {
		c.MaxParallelTools = defaultParallel
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = defaultToolTimeout
	}
	if c.MemoryTopK <= 0 {
		c.MemoryTopK = defaultMemoryTopK
	}
	if c.ToolTopK <= 0 {
		c.ToolTopK = defaultToolTopK
	}
	return c
}

// ConfigFrom maps the resolved application config onto a loop config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SystemPrompt:      cfg.SystemPrompt,
		HideReasoning:     cfg.HideReasoning,
		MaxToolCalls:      cfg.MaxToolCalls,
		MaxParallelTools:  cfg.MaxParallelTools,
		ToolTimeout:       cfg.ToolTimeout,
		ContextLimit:      cfg.ContextLimit,
		CriticalExchanges: cfg.CriticalExchanges,
		MemoryTopK:        cfg.Memory.TopK,
		ToolTopK:          cfg.Memory.ToolTopK,
	}
}

// newBudgeter sizes a budgeter for the active provider.
func newBudgeter(cfg Config, pc config.ProviderConfig) *budget.Budgeter {
	limits := provider.LimitsFor(pc)
	return budget.New(budget.Config{
		ContextWindow:     limits.ContextWindow,
		UserLimit:         cfg.ContextLimit,
		CharsPerToken:     limits.CharsPerToken,
		CriticalExchanges: cfg.CriticalExchanges,
	})
}
