package testutil

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"parley/model"
)

// TestPrompt returns a sample budgeted conversation for testing
func TestPrompt() model.Prompt {
	return model.Prompt{
		Messages: []model.PromptMessage{
			{Role: model.RoleSystem, Content: "You are a helpful assistant."},
			{Role: model.RoleUser, Content: "Hello, how are you?"},
			{Role: model.RoleAssistant, Content: "I'm doing well, thank you!"},
			{Role: model.RoleUser, Content: "Can you help me with a task?"},
		},
	}
}

// SingleUserPrompt returns a prompt holding one user message
func SingleUserPrompt(content string) model.Prompt {
	return model.Prompt{
		Messages: []model.PromptMessage{{Role: model.RoleUser, Content: content}},
	}
}

// TestMCPTools returns sample MCP tools for testing
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}
