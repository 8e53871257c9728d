package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"parley/config"
)

const (
	protocolVersion    = "2025-06-18"
	closeTimeout       = 1 * time.Second
	defaultRedirectURI = "http://localhost:8085/oauth/callback"
	clientSecretKey    = "client_secret"
	clientName         = "parley"
	clientVersion      = "1.0.0"
)

// ProcessManager starts, tracks and stops MCP server connections.
type ProcessManager struct {
	processes map[string]*ServerProcess
	dataDir   string
	creds     *config.CredentialStore
	logger    zerolog.Logger
	mu        sync.RWMutex
}

// NewProcessManager creates a manager. creds may be nil, in which case
// header secrets and OAuth client secrets come from the config only and
// OAuth tokens are kept in memory.
func NewProcessManager(dataDir string, creds *config.CredentialStore, logger zerolog.Logger) *ProcessManager {
	return &ProcessManager{
		processes: make(map[string]*ServerProcess),
		dataDir:   dataDir,
		creds:     creds,
		logger:    logger.With().Str("component", "mcp").Logger(),
	}
}

// Start connects to the server described by cfg, performs the MCP
// handshake and caches its tool list.
func (pm *ProcessManager) Start(ctx context.Context, cfg config.MCPServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if pm.isRunning(cfg.Name) {
		return fmt.Errorf("server %s already running", cfg.Name)
	}

	isRemote := cfg.Transport == config.TransportSSE || cfg.Transport == config.TransportStreamableHTTP

	var mcpClient *client.Client
	var cmd *exec.Cmd
	var err error
	if isRemote {
		mcpClient, err = pm.createRemoteClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to server %s: %w", cfg.Name, err)
		}
	} else {
		mcpClient, cmd, err = pm.createLocalClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to start server %s: %w", cfg.Name, err)
		}
	}

	proc := &ServerProcess{
		Name:     cfg.Name,
		Config:   cfg,
		Process:  cmd,
		Client:   mcpClient,
		IsRemote: isRemote,
	}
	if err := pm.handshake(ctx, proc); err != nil {
		pm.closeProcess(ctx, proc)
		return err
	}
	return nil
}

// Attach registers an already constructed client, such as an in-process
// server, under name.
func (pm *ProcessManager) Attach(ctx context.Context, name string, c *client.Client) error {
	if pm.isRunning(name) {
		return fmt.Errorf("server %s already running", name)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client for %s: %w", name, err)
	}
	proc := &ServerProcess{Name: name, Client: c}
	if err := pm.handshake(ctx, proc); err != nil {
		pm.closeProcess(ctx, proc)
		return err
	}
	return nil
}

func (pm *ProcessManager) handshake(ctx context.Context, proc *ServerProcess) error {
	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	}
	if _, err := proc.Client.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("failed to initialize server %s: %w", proc.Name, err)
	}

	toolsResult, err := proc.Client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools for %s: %w", proc.Name, err)
	}

	proc.Tools = toolsResult.Tools
	proc.Running = true

	pm.mu.Lock()
	pm.processes[proc.Name] = proc
	pm.mu.Unlock()

	pm.logger.Debug().
		Str("server", proc.Name).
		Bool("remote", proc.IsRemote).
		Int("tools", len(proc.Tools)).
		Msg("server connected")
	return nil
}

func (pm *ProcessManager) isRunning(name string) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	proc := pm.processes[name]
	return proc != nil && proc.Running
}

// Stop closes the connection and kills a local server process.
func (pm *ProcessManager) Stop(ctx context.Context, name string) error {
	pm.mu.Lock()
	proc, exists := pm.processes[name]
	if !exists {
		pm.mu.Unlock()
		return fmt.Errorf("server %s not found", name)
	}
	proc.Running = false
	delete(pm.processes, name)
	pm.mu.Unlock()

	pm.closeProcess(ctx, proc)
	return nil
}

// closeProcess closes the client, giving it closeTimeout, then kills a
// local process that is still around.
func (pm *ProcessManager) closeProcess(ctx context.Context, proc *ServerProcess) {
	log := pm.logger.With().Str("server", proc.Name).Logger()

	if proc.Client != nil {
		closeCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		defer cancel()

		closeDone := make(chan error, 1)
		go func() {
			closeDone <- proc.Client.Close()
		}()

		select {
		case err := <-closeDone:
			if err != nil {
				log.Debug().Err(err).Msg("error closing client")
			}
		case <-closeCtx.Done():
			log.Debug().Msg("close timed out")
		}
	}

	if !proc.IsRemote && proc.Process != nil && proc.Process.Process != nil {
		if err := proc.Process.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			log.Debug().Err(err).Int("pid", proc.Process.Process.Pid).Msg("error killing process")
		}
	}
	log.Debug().Msg("server stopped")
}

// Client returns the client of a running server.
func (pm *ProcessManager) Client(name string) (*client.Client, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, exists := pm.processes[name]
	if !exists || !proc.Running {
		return nil, fmt.Errorf("server %s not running", name)
	}
	return proc.Client, nil
}

// Tools returns the cached tool list of a running server.
func (pm *ProcessManager) Tools(name string) ([]mcptypes.Tool, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	proc, exists := pm.processes[name]
	if !exists || !proc.Running {
		return nil, fmt.Errorf("server %s not running", name)
	}
	return proc.Tools, nil
}

// RefreshTools re-reads the tool list of a running server.
func (pm *ProcessManager) RefreshTools(ctx context.Context, name string) error {
	c, err := pm.Client(name)
	if err != nil {
		return err
	}
	toolsResult, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to refresh tools: %w", err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if proc, ok := pm.processes[name]; ok {
		proc.Tools = toolsResult.Tools
	}
	return nil
}

// Running lists the names of running servers, sorted.
func (pm *ProcessManager) Running() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.processes))
	for name, proc := range pm.processes {
		if proc.Running {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Shutdown stops every server in parallel.
func (pm *ProcessManager) Shutdown(ctx context.Context) error {
	names := pm.Running()
	pm.logger.Debug().Int("servers", len(names)).Msg("shutting down")

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = pm.Stop(ctx, name)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// headers merges configured headers with secrets from the credential
// store, which win.
func (pm *ProcessManager) headers(cfg config.MCPServerConfig) map[string]string {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
		if pm.creds != nil {
			if secret := pm.creds.GetServer(cfg.Name, k); secret != "" {
				headers[k] = secret
			}
		}
	}
	return headers
}

func (pm *ProcessManager) createRemoteClient(ctx context.Context, cfg config.MCPServerConfig) (*client.Client, error) {
	var mcpClient *client.Client
	var err error

	switch cfg.Transport {
	case config.TransportStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if headers := pm.headers(cfg); len(headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(headers))
		}
		if cfg.Auth == "oauth" {
			mcpClient, err = client.NewOAuthStreamableHttpClient(cfg.URL, pm.oauthConfig(cfg), opts...)
		} else {
			mcpClient, err = client.NewStreamableHttpClient(cfg.URL, opts...)
		}
	case config.TransportSSE:
		var opts []transport.ClientOption
		if headers := pm.headers(cfg); len(headers) > 0 {
			opts = append(opts, transport.WithHeaders(headers))
		}
		if cfg.Auth == "oauth" {
			mcpClient, err = client.NewOAuthSSEClient(cfg.URL, pm.oauthConfig(cfg), opts...)
		} else {
			mcpClient, err = client.NewSSEMCPClient(cfg.URL, opts...)
		}
	default:
		return nil, fmt.Errorf("unknown transport type: %s", cfg.Transport)
	}
	if err != nil {
		return nil, err
	}

	if err := mcpClient.Start(ctx); err != nil {
		if client.IsOAuthAuthorizationRequiredError(err) {
			return nil, fmt.Errorf("server %s needs OAuth authorization: %w", cfg.Name, err)
		}
		return nil, fmt.Errorf("failed to start %s transport: %w", cfg.Transport, err)
	}

	pm.logger.Debug().Str("server", cfg.Name).Str("transport", cfg.Transport).Str("auth", cfg.Auth).Msg("remote transport started")
	return mcpClient, nil
}

// oauthConfig builds the OAuth settings with a token store that follows
// the credential storage method.
func (pm *ProcessManager) oauthConfig(cfg config.MCPServerConfig) client.OAuthConfig {
	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = defaultRedirectURI
	}

	var tokenStore transport.TokenStore
	var clientSecret string
	if pm.creds != nil {
		clientSecret = pm.creds.GetServer(cfg.Name, clientSecretKey)
		tokenStore = config.NewFileTokenStore(cfg.Name, pm.dataDir, pm.creds.Method(), pm.creds.EncryptionManager())
	} else {
		tokenStore = transport.NewMemoryTokenStore()
	}

	return client.OAuthConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       cfg.Scopes,
		TokenStore:   tokenStore,
		PKCEEnabled:  true,
	}
}

func (pm *ProcessManager) createLocalClient(cfg config.MCPServerConfig) (*client.Client, *exec.Cmd, error) {
	var capturedCmd *exec.Cmd

	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		capturedCmd = cmd
		return cmd, nil
	}

	mcpClient, err := client.NewStdioMCPClientWithOptions(
		cfg.Command,
		serverEnv(cfg.Env),
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return nil, nil, err
	}

	if capturedCmd != nil && capturedCmd.Process != nil {
		pm.logger.Debug().Str("server", cfg.Name).Int("pid", capturedCmd.Process.Pid).Msg("local server started")
	}
	return mcpClient, capturedCmd, nil
}

// serverEnv starts from the current environment so that PATH and friends
// survive, then applies the configured variables.
func serverEnv(envMap map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return env
}
