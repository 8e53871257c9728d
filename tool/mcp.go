package tool

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Caller runs a tool hosted elsewhere, such as on an MCP server.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

type remoteTool struct {
	def    mcptypes.Tool
	caller Caller
}

func (t remoteTool) Definition() mcptypes.Tool { return t.def }

func (t remoteTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.caller.CallTool(ctx, t.def.Name, args)
}

// Remote wraps definitions served by caller as tools.
func Remote(caller Caller, defs []mcptypes.Tool) []Tool {
	tools := make([]Tool, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, remoteTool{def: def, caller: caller})
	}
	return tools
}
