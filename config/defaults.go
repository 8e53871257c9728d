package config

// Defaults for the [memory] and turn limits.
const (
	DefaultMaxToolCalls     = 10
	DefaultMaxParallelTools = 4
	DefaultToolTimeout      = "60s"
	DefaultMemoryTopK       = 5
	DefaultToolTopK         = 8
	DefaultFetchMaxBytes    = 64 * 1024
)

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/parley",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider:  "ollama",
		MaxToolCalls:     DefaultMaxToolCalls,
		MaxParallelTools: DefaultMaxParallelTools,
		ToolTimeout:      DefaultToolTimeout,
		Providers: []ProviderSettings{
			{ID: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.1:latest"},
		},
		Memory: MemoryConfig{
			Backend:  MemorySQLite,
			TopK:     DefaultMemoryTopK,
			ToolTopK: DefaultToolTopK,
			MinScore: 0.1,
		},
		Security: SecurityConfig{CredentialStorage: SecurityPlainText},
		BuiltinTools: BuiltinToolsConfig{
			FetchURL:      true,
			CurrentTime:   true,
			SetPreference: true,
			FetchMaxBytes: DefaultFetchMaxBytes,
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# parley system configuration
# Location: ~/.config/parley/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions, memories and the user config are stored
data_directory = "~/.local/share/parley"
`
}

func GenerateUserConfigTemplate() string {
	return `# parley user configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Backend used when a session does not name one:
# ollama, openai, anthropic, openrouter or gemini
default_provider = "ollama"

# Prepended to every conversation (optional)
system_prompt = ""

# Keep <think> reasoning out of the transcript
hide_reasoning = false

# Upper bound on prompt tokens; 0 uses the provider's context window
context_limit = 0

# Tool rounds allowed per user turn before the answer is forced
max_tool_calls = 10

# Tool calls of one round executed at the same time
max_parallel_tools = 4

# Deadline for a single tool call
tool_timeout = "60s"

[[providers]]
id = "ollama"
base_url = "http://localhost:11434"
model = "llama3.1:latest"
# temperature = 0.7
# max_output_tokens = 2048
# context_window = 8192
# native_tools = false

# [[providers]]
# id = "anthropic"
# model = "claude-sonnet-4-5"
# API keys live in credentials.toml or ANTHROPIC_API_KEY

[memory]
# none, sqlite, chromem or remote (parley serve-memory)
backend = "sqlite"
# url = "http://127.0.0.1:5000"
# embedding_provider = "ollama"
# embedding_model = "all-minilm"
top_k = 5
tool_top_k = 8
min_score = 0.1

[security]
# plaintext or ssh_key
credential_storage = "plaintext"
# ssh_key_path = "~/.ssh/parley_ed25519"

[builtin_tools]
fetch_url = true
current_time = true
set_preference = true

# [[mcp_servers]]
# name = "filesystem"
# transport = "stdio"
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
`
}
