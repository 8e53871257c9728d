package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"parley/agent"
	"parley/config"
	"parley/logging"
	"parley/mcp"
	"parley/memory"
	"parley/model"
	"parley/provider"
	"parley/render"
	"parley/storage"
	"parley/tool"
	"parley/vectorsvc"
)

// newProvider builds a backend from its resolved config. Tests replace it.
var newProvider = provider.FromConfig

// app holds what every command needs: the resolved config, the logger and
// the session files.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	sessions *storage.SessionStorage
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(logging.Options{Debug: cfg.Debug, Dir: cfg.DataDir()})
	if err != nil {
		return nil, err
	}

	sessions, err := storage.NewSessionStorage(cfg.DataDir())
	if err != nil {
		log.Close()
		return nil, err
	}

	return &app{cfg: cfg, log: log, sessions: sessions}, nil
}

func (a *app) Close() error {
	return a.log.Close()
}

// embedder builds the embedding function of the vector backends. The API
// key comes from the provider of the same id when there is one.
func (a *app) embedder() (chromem.EmbeddingFunc, error) {
	m := a.cfg.Memory
	var key string
	if m.EmbeddingProvider != "" {
		key = a.cfg.ProviderConfig(m.EmbeddingProvider).APIKey
	}
	return memory.NewEmbeddingFunc(memory.EmbedderConfig{
		Provider: m.EmbeddingProvider,
		Model:    m.EmbeddingModel,
		BaseURL:  m.EmbeddingURL,
		APIKey:   key,
	})
}

// openMemory opens the configured memory backend. It returns nil when
// memory is disabled.
func (a *app) openMemory() (memory.Store, error) {
	logger := a.log.Zerolog()
	m := a.cfg.Memory

	switch m.Backend {
	case config.MemoryNone:
		return nil, nil
	case config.MemorySQLite:
		return memory.OpenSQLiteStore(a.cfg.DataDir(), logger)
	case config.MemoryChromem:
		embed, err := a.embedder()
		if err != nil {
			return nil, err
		}
		return memory.OpenChromemStore(config.MemoryDir(a.cfg.DataDir()), embed, float32(m.MinScore), logger)
	case config.MemoryRemote:
		return memory.NewRemoteStore(memory.RemoteConfig{BaseURL: m.URL, MinScore: m.MinScore}, logger), nil
	default:
		return nil, fmt.Errorf("unknown memory backend %q", m.Backend)
	}
}

// engineOptions selects the backend of a chat engine.
type engineOptions struct {
	Provider    string
	Model       string
	MetricsAddr string
	// AnswerOnly leaves the turn unrendered when out is not a terminal.
	AnswerOnly bool
}

// engine is one running assistant: a loop with its tools, memory and
// renderer.
type engine struct {
	loop  *agent.Loop
	prefs *tool.Preferences
	store memory.Store
	mcp   *mcp.Manager
	term  *render.Terminal
	// interactive is set when out is a terminal.
	interactive bool
	logger      zerolog.Logger
	stopMetrics context.CancelFunc
}

// startEngine connects the configured MCP servers, opens memory and builds
// the loop. Failing MCP servers and memory backends are reported and left
// out; only a backend that cannot be built is fatal.
func (a *app) startEngine(ctx context.Context, out io.Writer, opts engineOptions) (*engine, error) {
	cfg := a.cfg
	logger := a.log.Component("cli")

	id := opts.Provider
	if id == "" {
		id = cfg.DefaultProvider
	}
	pc := cfg.ProviderConfig(id)
	if opts.Model != "" {
		pc.Model = opts.Model
	}
	p, err := newProvider(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s: %w", id, err)
	}

	e := &engine{prefs: tool.NewPreferences(), logger: logger}

	e.mcp = mcp.NewManager(cfg.DataDir(), cfg.CredentialStore, a.log.Zerolog())
	for name, err := range e.mcp.Start(ctx, cfg.EnabledMCPServers()) {
		logger.Warn().Err(err).Str("server", name).Msg("MCP server not started")
	}

	registry := tool.NewRegistry()
	if err := registry.Register(tool.Builtins(cfg.BuiltinTools, e.prefs)...); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if err := registry.Register(tool.Remote(e.mcp, e.mcp.Tools())...); err != nil {
		e.Close(ctx)
		return nil, err
	}

	e.store, err = a.openMemory()
	if err != nil {
		logger.Warn().Err(err).Str("backend", cfg.Memory.Backend).Msg("memory disabled")
		e.store = nil
	}

	width := 0
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		e.interactive = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = w
		}
	}
	e.term = render.New(out, render.Options{Width: width, Plain: !e.interactive})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if opts.MetricsAddr != "" {
		mctx, cancel := context.WithCancel(ctx)
		e.stopMetrics = cancel
		h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		go func() {
			if err := vectorsvc.ListenAndServe(mctx, opts.MetricsAddr, h, logger); err != nil {
				logger.Warn().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	rt := &agent.RuntimeContext{
		Provider:       p,
		ProviderConfig: pc,
		Tools:          registry,
		Memory:         e.store,
		Preferences:    e.prefs,
	}
	loopOpts := []agent.Option{
		agent.WithSessionStore(a.sessions),
		agent.WithMetrics(agent.NewMetrics(reg)),
		agent.WithLogger(a.log.Zerolog()),
	}
	if e.interactive || !opts.AnswerOnly {
		loopOpts = append(loopOpts, agent.WithRenderer(e.term))
	}
	e.loop, err = agent.NewLoop(rt, agent.ConfigFrom(cfg), loopOpts...)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}

	if err := e.loop.SyncTools(ctx); err != nil {
		logger.Warn().Err(err).Msg("tool relevance disabled")
	}
	logger.Debug().
		Str("provider", p.ID()).
		Str("model", p.GetModel()).
		Int("tools", registry.Len()).
		Str("memory", cfg.Memory.Backend).
		Msg("engine started")
	return e, nil
}

// switchProvider replaces the backend between turns.
func (a *app) switchProvider(e *engine, id, modelName string) (model.Provider, error) {
	pc := a.cfg.ProviderConfig(id)
	if modelName != "" {
		pc.Model = modelName
	}
	p, err := newProvider(pc)
	if err != nil {
		return nil, err
	}
	if err := e.loop.SetProvider(p, pc); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *engine) Close(ctx context.Context) {
	if e.stopMetrics != nil {
		e.stopMetrics()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("failed to close memory store")
		}
	}
	if e.mcp != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := e.mcp.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn().Err(err).Msg("failed to stop MCP servers")
		}
	}
}
