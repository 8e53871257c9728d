package model

import "strings"

// Role is the chat role a prompt message is sent under.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PromptMessage is one entry of an outgoing prompt.
type PromptMessage struct {
	Role    Role
	Content string
}

// Prompt is the budgeted conversation sent to a backend.
type Prompt struct {
	Messages []PromptMessage
	// EstimatedTokens is the budgeter's approximation of the prompt size.
	EstimatedTokens int
	// Omitted counts history messages left out to fit the ceiling.
	Omitted int
}

// System returns the concatenated content of all system messages.
func (p Prompt) System() string {
	var parts []string
	for _, m := range p.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Text renders the prompt as a single text document for text-only backends.
func (p Prompt) Text() string {
	var b strings.Builder
	for i, m := range p.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
