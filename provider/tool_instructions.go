package provider

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolInstructions renders the tool catalog and the invocation protocol for
// the system prompt. Small local models get the minimal variant; hosted
// models get explicit execution guidance. Returns "" when there are no tools.
func ToolInstructions(providerID string, tools []mcptypes.Tool) string {
	if len(tools) == 0 {
		return ""
	}
	var guidance string
	switch MapProviderIDToType(providerID) {
	case ProviderTypeOllama:
		guidance = minimalToolGuidance()
	default:
		guidance = explicitToolGuidance()
	}
	return strings.Join([]string{
		"TOOLS:",
		toolCatalog(tools),
		"",
		toolProtocol,
		"",
		guidance,
	}, "\n")
}

const toolProtocol = `To use a tool, reply with a JSON object on its own line:
{"tool": "<tool name>", "arguments": {<parameters>}}
You may call several tools in one reply, one object per line. Tool results
come back in the next message. When you have what you need, answer in plain
text without any tool object.`

// minimalToolGuidance keeps instructions short so that 3B-8B models are not
// overloaded.
func minimalToolGuidance() string {
	return "If you don't know something → use a tool.\n" +
		"Otherwise → answer directly.\n\n" +
		"Don't tell the user how you will use a tool. Just write the tool call.\n\n" +
		"Summarize what you did in a short and concise way after you are done"
}

func explicitToolGuidance() string {
	return strings.Join([]string{
		"When the user asks you to do something that requires a tool:",
		"1. Determine which tool is needed",
		"2. Check if you have all required parameters",
		"3. If yes: Call the tool IMMEDIATELY without explanation",
		"4. If no: Ask for the missing parameter ONLY",
		"",
		"DO NOT:",
		"- List available tools",
		"- Explain what you're about to do",
		"- Repeat a call whose result you already have",
		"",
		"Example:",
		"User: 'Read Dockerfile'",
		`You: {"tool": "read_file", "arguments": {"path": "Dockerfile"}}`,
		"NOT: 'I can read files. What would you like?'",
	}, "\n")
}

// toolCatalog lists one tool per line with its parameters, required ones
// marked with *.
func toolCatalog(tools []mcptypes.Tool) string {
	lines := make([]string, 0, len(tools))
	for _, tool := range tools {
		line := "- " + tool.Name
		if params := describeParams(tool.InputSchema); params != "" {
			line += "(" + params + ")"
		}
		if tool.Description != "" {
			line += ": " + firstLine(tool.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func describeParams(schema mcptypes.ToolInputSchema) string {
	if len(schema.Properties) == 0 {
		return ""
	}
	required := make(map[string]bool, len(schema.Required))
	for _, r := range schema.Required {
		required[r] = true
	}
	names := make([]string, 0, len(schema.Properties))
	for name := range schema.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		part := name
		if t := propertyType(schema.Properties[name]); t != "" {
			part += " " + t
		}
		if required[name] {
			part += "*"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func propertyType(prop any) string {
	m, ok := prop.(map[string]any)
	if !ok {
		data, err := json.Marshal(prop)
		if err != nil || json.Unmarshal(data, &m) != nil {
			return ""
		}
	}
	switch t := m["type"].(type) {
	case string:
		return t
	case []any:
		names := make([]string, 0, len(t))
		for _, v := range t {
			names = append(names, fmt.Sprint(v))
		}
		return strings.Join(names, "|")
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
