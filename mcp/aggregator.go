package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ErrToolFailed marks a call the server answered with isError set.
var ErrToolFailed = errors.New("tool reported an error")

// ToolAggregator exposes the tools of all running servers under
// "server.tool" names.
type ToolAggregator struct {
	processManager *ProcessManager
}

func NewToolAggregator(pm *ProcessManager) *ToolAggregator {
	return &ToolAggregator{
		processManager: pm,
	}
}

// Tools returns the namespaced tools of the given servers, skipping any
// that are not running.
func (ta *ToolAggregator) Tools(servers []string) []mcptypes.Tool {
	var allTools []mcptypes.Tool

	for _, server := range servers {
		tools, err := ta.processManager.Tools(server)
		if err != nil {
			continue
		}

		for _, tool := range tools {
			namespacedTool := tool
			namespacedTool.Name = server + "." + tool.Name
			allTools = append(allTools, namespacedTool)
		}
	}

	sort.Slice(allTools, func(i, j int) bool { return allTools[i].Name < allTools[j].Name })
	return allTools
}

// ExecuteTool calls a namespaced tool and returns the raw result.
func (ta *ToolAggregator) ExecuteTool(ctx context.Context, toolName string, args map[string]any) (*mcptypes.CallToolResult, error) {
	server, actualToolName := parseToolName(toolName)
	if server == "" {
		return nil, fmt.Errorf("tool %q has no server prefix", toolName)
	}

	client, err := ta.processManager.Client(server)
	if err != nil {
		return nil, err
	}

	return client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      actualToolName,
			Arguments: args,
		},
	})
}

// Call executes a namespaced tool and converts the result to a payload
// for the conversation.
func (ta *ToolAggregator) Call(ctx context.Context, toolName string, args map[string]any) (any, error) {
	result, err := ta.ExecuteTool(ctx, toolName, args)
	if err != nil {
		return nil, err
	}
	return ResultPayload(result)
}

// ResultPayload turns a tool result into a value. Structured content wins
// over text. A single text block is returned as a string; several are
// joined with newlines. Non-text blocks become short placeholders.
func ResultPayload(result *mcptypes.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New("empty tool result")
	}

	text := contentText(result.Content)
	if result.IsError {
		if text == "" {
			return nil, ErrToolFailed
		}
		return nil, fmt.Errorf("%w: %s", ErrToolFailed, text)
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	return text, nil
}

func contentText(contents []mcptypes.Content) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		switch v := c.(type) {
		case mcptypes.TextContent:
			parts = append(parts, v.Text)
		case *mcptypes.TextContent:
			parts = append(parts, v.Text)
		case mcptypes.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case mcptypes.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s]", v.MIMEType))
		case mcptypes.EmbeddedResource:
			parts = append(parts, "[embedded resource]")
		case mcptypes.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource %s]", v.URI))
		default:
			parts = append(parts, "[unsupported content]")
		}
	}
	return strings.Join(parts, "\n")
}

func parseToolName(namespacedName string) (string, string) {
	idx := strings.Index(namespacedName, ".")
	if idx == -1 {
		return "", namespacedName
	}
	return namespacedName[:idx], namespacedName[idx+1:]
}
