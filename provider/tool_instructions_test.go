package provider

import (
	"strings"
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"parley/provider/testutil"
)

func TestToolInstructions(t *testing.T) {
	assert.Empty(t, ToolInstructions("ollama", nil))

	tools := testutil.TestMCPTools()

	local := ToolInstructions("ollama", tools)
	assert.True(t, strings.HasPrefix(local, "TOOLS:\n"))
	assert.Contains(t, local, "- get_weather(location string*): Get the current weather for a location")
	assert.Contains(t, local, "- calculate(expression string*): Perform a mathematical calculation")
	assert.Contains(t, local, `{"tool": "<tool name>", "arguments": {<parameters>}}`)
	assert.Contains(t, local, "If you don't know something")
	assert.NotContains(t, local, "DO NOT:")

	hosted := ToolInstructions("anthropic", tools)
	assert.Contains(t, hosted, "DO NOT:")
	assert.Contains(t, hosted, `{"tool": "read_file", "arguments": {"path": "Dockerfile"}}`)
}

func TestToolCatalogParams(t *testing.T) {
	tool := mcptypes.Tool{
		Name:        "search",
		Description: "Search the web\nReturns the top results.",
		InputSchema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": []any{"integer", "null"}},
				"raw":   struct{}{},
			},
			Required: []string{"query"},
		},
	}
	noArgs := mcptypes.Tool{Name: "current_time"}

	got := toolCatalog([]mcptypes.Tool{tool, noArgs})
	assert.Equal(t, "- search(limit integer|null, query string*, raw): Search the web\n- current_time", got)
}
