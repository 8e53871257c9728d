package mcp

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"parley/config"
)

// Manager connects the configured MCP servers and exposes their tools.
type Manager struct {
	processManager *ProcessManager
	aggregator     *ToolAggregator
	logger         zerolog.Logger

	mu       sync.RWMutex
	statuses map[string]ServerStatus
	order    []string
}

func NewManager(dataDir string, creds *config.CredentialStore, logger zerolog.Logger) *Manager {
	pm := NewProcessManager(dataDir, creds, logger)
	return &Manager{
		processManager: pm,
		aggregator:     NewToolAggregator(pm),
		logger:         logger.With().Str("component", "mcp").Logger(),
		statuses:       make(map[string]ServerStatus),
	}
}

// Start connects every server concurrently. A server that fails is
// reported in the returned map and left out of the tool list; the others
// keep working.
func (m *Manager) Start(ctx context.Context, servers []config.MCPServerConfig) map[string]error {
	errs := make([]error, len(servers))

	var g errgroup.Group
	for i, srv := range servers {
		g.Go(func() error {
			errs[i] = m.processManager.Start(ctx, srv)
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[string]error)
	for i, srv := range servers {
		m.setStatus(srv.Name, srv.Transport, errs[i])
		if errs[i] != nil {
			failed[srv.Name] = errs[i]
			m.logger.Warn().Err(errs[i]).Str("server", srv.Name).Msg("MCP server unavailable")
		}
	}
	return failed
}

// Attach adds a pre-built client, typically an in-process server.
func (m *Manager) Attach(ctx context.Context, name string, c *client.Client) error {
	err := m.processManager.Attach(ctx, name, c)
	m.setStatus(name, "inprocess", err)
	return err
}

func (m *Manager) setStatus(name, transport string, err error) {
	status := ServerStatus{Name: name, Transport: transport, Err: err}
	if err == nil {
		status.Running = true
		if tools, terr := m.processManager.Tools(name); terr == nil {
			status.Tools = len(tools)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, seen := m.statuses[name]; !seen {
		m.order = append(m.order, name)
	}
	m.statuses[name] = status
}

// Tools returns every tool of every running server, namespaced and
// sorted by name.
func (m *Manager) Tools() []mcptypes.Tool {
	return m.aggregator.Tools(m.processManager.Running())
}

// CallTool runs a namespaced tool and returns its payload.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	m.logger.Debug().Str("tool", name).Msg("calling MCP tool")
	return m.aggregator.Call(ctx, name, args)
}

// Refresh re-reads the tool lists of all running servers.
func (m *Manager) Refresh(ctx context.Context) error {
	var g errgroup.Group
	for _, name := range m.processManager.Running() {
		g.Go(func() error {
			return m.processManager.RefreshTools(ctx, name)
		})
	}
	err := g.Wait()
	for _, st := range m.Servers() {
		if st.Running {
			m.setStatus(st.Name, st.Transport, nil)
		}
	}
	return err
}

// Servers reports every server seen by Start or Attach in the order
// they were first seen.
func (m *Manager) Servers() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ServerStatus, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.statuses[name])
	}
	return out
}

// Shutdown disconnects every server.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.processManager.Shutdown(ctx)

	m.mu.Lock()
	for name, st := range m.statuses {
		st.Running = false
		m.statuses[name] = st
	}
	m.mu.Unlock()
	return err
}
