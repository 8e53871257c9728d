package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"parley/memory"
	"parley/model"
	"parley/provider"
)

// DefaultSystemPrompt is used when the configuration leaves it empty.
const DefaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely."

const memoryDirectiveGuidance = `To remember something important about the user for later conversations, add a block like
<memory>{"content": "User lives in Lyon", "type": "fact", "importance": "high"}</memory>
to your answer. Importance is low, normal or high. Use it sparingly.`

// promptParts are the sections of one request's system prompt, in order.
type promptParts struct {
	base        string
	preferences string
	memories    []memory.Memory
	providerID  string
	tools       []mcptypes.Tool
	directive   string
}

func (p promptParts) String() string {
	base := strings.TrimSpace(p.base)
	if base == "" {
		base = DefaultSystemPrompt
	}
	sections := []string{base}

	if p.preferences != "" {
		sections = append(sections, p.preferences)
	}
	if ctx := memory.FormatContext(p.memories); ctx != "" {
		sections = append(sections, ctx)
	}
	sections = append(sections, memoryDirectiveGuidance)

	if len(p.tools) > 0 {
		sections = append(sections, provider.ToolInstructions(p.providerID, p.tools))
	}
	if p.directive != "" {
		sections = append(sections, p.directive)
	}
	return strings.Join(sections, "\n\n")
}

// FormatResults renders a settled call set as the text the backend sees in
// the next round, in call order.
func FormatResults(results []model.ToolResult) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s(%s) ", i+1, r.ToolName, compactJSON(r.Arguments))
		if r.Failed() {
			fmt.Fprintf(&b, "failed: %s\n", r.Failure)
			continue
		}
		b.WriteString("returned:\n")
		b.WriteString(payloadText(r.Payload))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func payloadText(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "(no output)"
	case string:
		if strings.TrimSpace(v) == "" {
			return "(no output)"
		}
		return v
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func compactJSON(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

// toolNames lists the names of calls, for status lines.
func toolNames(calls []model.ToolCall) string {
	names := make([]string, 0, len(calls))
	for _, c := range calls {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}
