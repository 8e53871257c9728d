package mcp

import (
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"parley/config"
)

// ServerProcess is a connected MCP server. Process is nil for remote and
// in-process servers.
type ServerProcess struct {
	Name     string
	Config   config.MCPServerConfig
	Process  *exec.Cmd
	Client   *client.Client
	Tools    []mcptypes.Tool
	Running  bool
	IsRemote bool
}

// ServerStatus summarizes a configured server for display.
type ServerStatus struct {
	Name      string
	Transport string
	Running   bool
	Tools     int
	Err       error
}
