package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// SystemConfig is the machine-level settings file. It only says where the
// data directory lives.
type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

// ProviderSettings is one [[providers]] entry of the user config.
type ProviderSettings struct {
	ID              string  `toml:"id"`
	BaseURL         string  `toml:"base_url,omitempty"`
	Model           string  `toml:"model,omitempty"`
	Temperature     float64 `toml:"temperature,omitempty"`
	MaxOutputTokens int     `toml:"max_output_tokens,omitempty"`
	// ContextWindow and CharsPerToken fall back to per-backend defaults
	// when zero.
	ContextWindow int     `toml:"context_window,omitempty"`
	CharsPerToken float64 `toml:"chars_per_token,omitempty"`
	NativeTools   bool    `toml:"native_tools,omitempty"`
}

// Memory backends.
const (
	MemoryNone    = "none"
	MemorySQLite  = "sqlite"
	MemoryChromem = "chromem"
	MemoryRemote  = "remote"
)

// MemoryConfig is the [memory] table.
type MemoryConfig struct {
	Backend           string  `toml:"backend"`
	URL               string  `toml:"url,omitempty"`
	EmbeddingProvider string  `toml:"embedding_provider,omitempty"`
	EmbeddingModel    string  `toml:"embedding_model,omitempty"`
	EmbeddingURL      string  `toml:"embedding_url,omitempty"`
	TopK              int     `toml:"top_k"`
	ToolTopK          int     `toml:"tool_top_k"`
	MinScore          float64 `toml:"min_score"`
}

// SecurityConfig is the [security] table.
type SecurityConfig struct {
	CredentialStorage SecurityMethod `toml:"credential_storage"`
	SSHKeyPath        string         `toml:"ssh_key_path,omitempty"`
}

// MCP server transports.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// MCPServerConfig is one [[mcp_servers]] entry.
type MCPServerConfig struct {
	Name      string            `toml:"name"`
	Transport string            `toml:"transport"`
	Command   string            `toml:"command,omitempty"`
	Args      []string          `toml:"args,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
	URL       string            `toml:"url,omitempty"`
	Headers   map[string]string `toml:"headers,omitempty"`
	// Auth is empty for none, "headers" or "oauth".
	Auth        string   `toml:"auth,omitempty"`
	ClientID    string   `toml:"client_id,omitempty"`
	Scopes      []string `toml:"scopes,omitempty"`
	RedirectURI string   `toml:"redirect_uri,omitempty"`
	Disabled    bool     `toml:"disabled,omitempty"`
}

// BuiltinToolsConfig is the [builtin_tools] table.
type BuiltinToolsConfig struct {
	FetchURL      bool `toml:"fetch_url"`
	CurrentTime   bool `toml:"current_time"`
	SetPreference bool `toml:"set_preference"`
	FetchMaxBytes int  `toml:"fetch_max_bytes,omitempty"`
}

// UserConfig is <data_dir>/config.toml.
type UserConfig struct {
	DefaultProvider   string             `toml:"default_provider"`
	SystemPrompt      string             `toml:"system_prompt,omitempty"`
	HideReasoning     bool               `toml:"hide_reasoning"`
	ContextLimit      int                `toml:"context_limit,omitempty"`
	MaxToolCalls      int                `toml:"max_tool_calls"`
	MaxParallelTools  int                `toml:"max_parallel_tools"`
	ToolTimeout       string             `toml:"tool_timeout"`
	CriticalExchanges int                `toml:"critical_exchanges,omitempty"`
	Providers         []ProviderSettings `toml:"providers"`
	Memory            MemoryConfig       `toml:"memory"`
	Security          SecurityConfig     `toml:"security"`
	MCPServers        []MCPServerConfig  `toml:"mcp_servers,omitempty"`
	BuiltinTools      BuiltinToolsConfig `toml:"builtin_tools"`
}

// EnvOverrides are read from PARLEY_* variables and win over both files.
type EnvOverrides struct {
	Provider      string `env:"PROVIDER"`
	Model         string `env:"MODEL"`
	DataDir       string `env:"DATA_DIR"`
	Debug         bool   `env:"DEBUG"`
	MemoryBackend string `env:"MEMORY_BACKEND"`
	MemoryURL     string `env:"MEMORY_URL"`
	SSHPassphrase string `env:"SSH_PASSPHRASE"`
}

// apiKeyEnv holds the conventional per-vendor key variables, consulted when
// the credential store has no key.
type apiKeyEnv struct {
	OpenAI     string `env:"OPENAI_API_KEY"`
	Anthropic  string `env:"ANTHROPIC_API_KEY"`
	OpenRouter string `env:"OPENROUTER_API_KEY"`
	Gemini     string `env:"GEMINI_API_KEY"`
	Google     string `env:"GOOGLE_API_KEY"`
}

func (k apiKeyEnv) byProvider() map[string]string {
	keys := map[string]string{
		"openai":     k.OpenAI,
		"anthropic":  k.Anthropic,
		"openrouter": k.OpenRouter,
		"gemini":     k.Gemini,
	}
	if keys["gemini"] == "" {
		keys["gemini"] = k.Google
	}
	return keys
}

// EnvPrefix prefixes every parley environment variable.
const EnvPrefix = "PARLEY_"

// Config is the resolved, read-only configuration handed to the rest of
// the program.
type Config struct {
	DataDirectory     string
	DefaultProvider   string
	SystemPrompt      string
	HideReasoning     bool
	ContextLimit      int
	MaxToolCalls      int
	MaxParallelTools  int
	ToolTimeout       time.Duration
	CriticalExchanges int
	Providers         []ProviderSettings
	Memory            MemoryConfig
	Security          SecurityConfig
	MCPServers        []MCPServerConfig
	BuiltinTools      BuiltinToolsConfig
	Debug             bool

	CredentialStore *CredentialStore

	modelOverride string
	envKeys       map[string]string
}

// ProviderConfig is the read-only view of one backend: settings merged with
// defaults and the resolved credential.
type ProviderConfig struct {
	ProviderID      string
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	ContextWindow   int
	CharsPerToken   float64
	NativeTools     bool
}

// DataDir returns the expanded data directory.
func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// ProviderConfig resolves the view for provider id. Unconfigured providers
// resolve to an entry with defaults only. The PARLEY_MODEL override applies
// to the default provider.
func (c *Config) ProviderConfig(id string) ProviderConfig {
	id = strings.ToLower(strings.TrimSpace(id))
	pc := ProviderConfig{ProviderID: id}
	for _, p := range c.Providers {
		if strings.EqualFold(p.ID, id) {
			pc.BaseURL = p.BaseURL
			pc.Model = p.Model
			pc.Temperature = p.Temperature
			pc.MaxOutputTokens = p.MaxOutputTokens
			pc.ContextWindow = p.ContextWindow
			pc.CharsPerToken = p.CharsPerToken
			pc.NativeTools = p.NativeTools
			break
		}
	}
	if c.modelOverride != "" && id == strings.ToLower(c.DefaultProvider) {
		pc.Model = c.modelOverride
	}
	if c.CredentialStore != nil {
		pc.APIKey = c.CredentialStore.Get(id)
	}
	if pc.APIKey == "" {
		pc.APIKey = c.envKeys[id]
	}
	return pc
}

// ConfiguredProviders lists the ids of every [[providers]] entry.
func (c *Config) ConfiguredProviders() []string {
	ids := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		ids = append(ids, strings.ToLower(p.ID))
	}
	return ids
}

// ReadEnv parses the PARLEY_* overrides.
func ReadEnv() (EnvOverrides, error) {
	var o EnvOverrides
	if err := env.ParseWithOptions(&o, env.Options{Prefix: EnvPrefix}); err != nil {
		return o, fmt.Errorf("failed to parse %s environment: %w", EnvPrefix, err)
	}
	return o, nil
}

// CheckDebug reports whether PARLEY_DEBUG asks for debug logging. It never
// fails so that it can run before logging exists.
func CheckDebug() bool {
	o, err := ReadEnv()
	return err == nil && o.Debug
}

// Load reads settings.toml and the user config, applies environment
// overrides and opens the credential store. Missing files are created from
// the commented templates.
func Load() (*Config, error) {
	overrides, err := ReadEnv()
	if err != nil {
		return nil, err
	}
	var keys apiKeyEnv
	if err := env.Parse(&keys); err != nil {
		return nil, fmt.Errorf("failed to parse API key environment: %w", err)
	}

	dataDirectory := overrides.DataDir
	if dataDirectory == "" {
		systemCfg, err := LoadSystemConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load system config: %w", err)
		}
		dataDirectory = systemCfg.DataDirectory
	}

	dataDir := ExpandPath(dataDirectory)
	if err := ensurePrivateDir(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	cfg, err := Resolve(dataDirectory, userCfg, overrides)
	if err != nil {
		return nil, err
	}
	cfg.envKeys = keys.byProvider()

	store := NewCredentialStore(cfg.Security.CredentialStorage, ExpandPath(cfg.Security.SSHKeyPath))
	store.SetPassphrase(overrides.SSHPassphrase)
	if err := store.Load(dataDir); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	cfg.CredentialStore = store

	return cfg, nil
}

// Resolve merges a decoded user config with defaults and overrides. It
// touches neither the filesystem nor the credential store.
func Resolve(dataDirectory string, u *UserConfig, o EnvOverrides) (*Config, error) {
	defaults := DefaultUserConfig()
	if u == nil {
		u = defaults
	}

	cfg := &Config{
		DataDirectory:     dataDirectory,
		DefaultProvider:   strings.ToLower(u.DefaultProvider),
		SystemPrompt:      u.SystemPrompt,
		HideReasoning:     u.HideReasoning,
		ContextLimit:      u.ContextLimit,
		MaxToolCalls:      u.MaxToolCalls,
		MaxParallelTools:  u.MaxParallelTools,
		CriticalExchanges: u.CriticalExchanges,
		Providers:         u.Providers,
		Memory:            u.Memory,
		Security:          u.Security,
		MCPServers:        u.MCPServers,
		BuiltinTools:      u.BuiltinTools,
		Debug:             o.Debug,
		modelOverride:     o.Model,
	}

	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = defaults.DefaultProvider
	}
	if cfg.MaxToolCalls == 0 {
		cfg.MaxToolCalls = defaults.MaxToolCalls
	}
	if cfg.MaxParallelTools == 0 {
		cfg.MaxParallelTools = defaults.MaxParallelTools
	}
	if cfg.Memory.Backend == "" {
		cfg.Memory.Backend = defaults.Memory.Backend
	}
	if cfg.Memory.TopK == 0 {
		cfg.Memory.TopK = defaults.Memory.TopK
	}
	if cfg.Memory.ToolTopK == 0 {
		cfg.Memory.ToolTopK = defaults.Memory.ToolTopK
	}
	if cfg.Security.CredentialStorage == "" {
		cfg.Security.CredentialStorage = SecurityPlainText
	}

	timeout := u.ToolTimeout
	if timeout == "" {
		timeout = defaults.ToolTimeout
	}
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid tool_timeout %q: %w", timeout, err)
	}
	cfg.ToolTimeout = d

	if o.Provider != "" {
		cfg.DefaultProvider = strings.ToLower(o.Provider)
	}
	if o.MemoryBackend != "" {
		cfg.Memory.Backend = strings.ToLower(o.MemoryBackend)
	}
	if o.MemoryURL != "" {
		cfg.Memory.URL = o.MemoryURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the resolved configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxToolCalls < 1 {
		errs = append(errs, fmt.Errorf("max_tool_calls must be at least 1, got %d", c.MaxToolCalls))
	}
	if c.MaxParallelTools < 1 {
		errs = append(errs, fmt.Errorf("max_parallel_tools must be at least 1, got %d", c.MaxParallelTools))
	}
	if c.ContextLimit < 0 {
		errs = append(errs, fmt.Errorf("context_limit must not be negative"))
	}
	if c.ToolTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tool_timeout must be positive"))
	}

	switch c.Memory.Backend {
	case MemoryNone, MemorySQLite, MemoryChromem, MemoryRemote:
	default:
		errs = append(errs, fmt.Errorf("unknown memory backend %q", c.Memory.Backend))
	}

	switch c.Security.CredentialStorage {
	case SecurityPlainText:
	case SecuritySSHKey:
		if c.Security.SSHKeyPath == "" {
			errs = append(errs, fmt.Errorf("credential_storage %q requires ssh_key_path", SecuritySSHKey))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown credential_storage %q", c.Security.CredentialStorage))
	}

	seenProviders := make(map[string]bool)
	for _, p := range c.Providers {
		id := strings.ToLower(p.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("[[providers]] entry without id"))
			continue
		}
		if seenProviders[id] {
			errs = append(errs, fmt.Errorf("provider %q configured twice", id))
		}
		seenProviders[id] = true
		if p.Temperature < 0 || p.Temperature > 2 {
			errs = append(errs, fmt.Errorf("provider %q: temperature must be between 0 and 2", id))
		}
	}

	seenServers := make(map[string]bool)
	for _, s := range c.MCPServers {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
		if seenServers[s.Name] {
			errs = append(errs, fmt.Errorf("mcp server %q configured twice", s.Name))
		}
		seenServers[s.Name] = true
	}

	return errors.Join(errs...)
}

// Validate checks a single MCP server entry.
func (s MCPServerConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("[[mcp_servers]] entry without name")
	}
	if strings.ContainsAny(s.Name, ". ") {
		return fmt.Errorf("mcp server %q: name must not contain dots or spaces", s.Name)
	}
	switch s.Transport {
	case "", TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: stdio transport requires command", s.Name)
		}
	case TransportSSE, TransportStreamableHTTP:
		if s.URL == "" {
			return fmt.Errorf("mcp server %q: %s transport requires url", s.Name, s.Transport)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown transport %q", s.Name, s.Transport)
	}
	switch s.Auth {
	case "", "headers":
	case "oauth":
		if s.Transport == "" || s.Transport == TransportStdio {
			return fmt.Errorf("mcp server %q: oauth needs a remote transport", s.Name)
		}
	default:
		return fmt.Errorf("mcp server %q: unknown auth %q", s.Name, s.Auth)
	}
	return nil
}

// EnabledMCPServers returns the servers not marked disabled.
func (c *Config) EnabledMCPServers() []MCPServerConfig {
	var out []MCPServerConfig
	for _, s := range c.MCPServers {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}
