package model

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// Message represents a chat message in a session.
//
// Messages are immutable once appended to a session. The only field that may
// change afterwards is Intermediate, which is cleared when a placeholder is
// superseded by a real reply.
type Message struct {
	ID           string       `json:"id"`
	Sender       Sender       `json:"sender"`
	Text         string       `json:"text"`
	CreatedAt    time.Time    `json:"created_at"`
	Intermediate bool         `json:"intermediate,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
}

// NewMessage creates a message with a fresh id stamped at now.
func NewMessage(sender Sender, text string, now time.Time) Message {
	return Message{
		ID:        uuid.New().String(),
		Sender:    sender,
		Text:      text,
		CreatedAt: now,
	}
}

// IsToolContext reports whether the message carries tool output or system
// context rather than dialogue.
func (m Message) IsToolContext() bool {
	return m.Sender == SenderSystem || len(m.ToolResults) > 0
}

// Span is a half-open byte range [Start, End) inside reply text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ToolCall is a single tool invocation proposed by a backend. It only lives
// for one orchestration turn.
type ToolCall struct {
	Name      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Span      Span           `json:"-"`
}

// ToolResult is the settled outcome of executing a ToolCall. Exactly one of
// Payload or Failure is meaningful: a non-empty Failure marks the call failed.
type ToolResult struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Payload   any            `json:"payload,omitempty"`
	Failure   string         `json:"failure,omitempty"`
}

// Success builds a successful result for call.
func Success(call ToolCall, payload any) ToolResult {
	return ToolResult{ToolName: call.Name, Arguments: call.Arguments, Payload: payload}
}

// Failure builds a failed result for call.
func Failure(call ToolCall, reason string) ToolResult {
	if reason == "" {
		reason = "unknown failure"
	}
	return ToolResult{ToolName: call.Name, Arguments: call.Arguments, Failure: reason}
}

// Failed reports whether the tool execution failed.
func (r ToolResult) Failed() bool {
	return r.Failure != ""
}
