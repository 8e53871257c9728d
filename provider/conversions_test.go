package provider

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/model"
	"parley/provider/testutil"
)

func TestConvertToOllamaMessages(t *testing.T) {
	prompt := testutil.TestPrompt()
	prompt.Messages = append(prompt.Messages, model.PromptMessage{Role: model.RoleTool, Content: "result"})

	got := ConvertToOllamaMessages(prompt)
	require.Len(t, got, 5)
	assert.Equal(t, "system", got[0].Role)
	assert.Equal(t, "You are a helpful assistant.", got[0].Content)
	assert.Equal(t, "assistant", got[2].Role)
	assert.Equal(t, "tool", got[4].Role)

	assert.Empty(t, ConvertToOllamaMessages(model.Prompt{}))
}

func TestConvertToOpenAIMessages(t *testing.T) {
	prompt := testutil.TestPrompt()
	prompt.Messages = append(prompt.Messages, model.PromptMessage{Role: model.RoleTool, Content: "result"})

	got := ConvertToOpenAIMessages(prompt)
	require.Len(t, got, 5)
	assert.NotNil(t, got[0].OfSystem)
	assert.NotNil(t, got[1].OfUser)
	assert.NotNil(t, got[2].OfAssistant)
	assert.NotNil(t, got[4].OfUser, "tool context is sent as user text")
}

func TestConvertToAnthropicMessages(t *testing.T) {
	prompt := model.Prompt{Messages: []model.PromptMessage{
		{Role: model.RoleSystem, Content: "be brief"},
		{Role: model.RoleAssistant, Content: "earlier answer"},
		{Role: model.RoleUser, Content: "q1"},
		{Role: model.RoleTool, Content: "tool output"},
		{Role: model.RoleAssistant, Content: "a1"},
	}}

	msgs, system := convertToAnthropicMessages(prompt)
	require.Len(t, system, 1)
	assert.Equal(t, "be brief", system[0].Text)

	require.Len(t, msgs, 4)
	roles := make([]string, len(msgs))
	for i, m := range msgs {
		roles[i] = string(m.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"}, roles)

	merged := msgs[2].Content[0].OfText
	require.NotNil(t, merged)
	assert.Equal(t, "q1\n\ntool output", merged.Text)
}

func TestConvertToGeminiContents(t *testing.T) {
	contents, system := convertToGeminiContents(testutil.TestPrompt())
	assert.Equal(t, "You are a helpful assistant.", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "user", contents[2].Role)
	assert.Equal(t, genai.Text("Can you help me with a task?"), contents[2].Parts[0])
}

func TestAppendTurn(t *testing.T) {
	var turns []turn
	turns = appendTurn(turns, true, "hi there")
	turns = appendTurn(turns, false, "a")
	turns = appendTurn(turns, false, "b")
	turns = appendTurn(turns, true, "c")

	require.Len(t, turns, 4)
	assert.Equal(t, turn{text: "(conversation continues)"}, turns[0])
	assert.Equal(t, turn{assistant: true, text: "hi there"}, turns[1])
	assert.Equal(t, turn{text: "a\n\nb"}, turns[2])
	assert.Equal(t, turn{assistant: true, text: "c"}, turns[3])
}

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]any
	}{
		{"object", `{"path": "/tmp", "depth": 2}`, map[string]any{"path": "/tmp", "depth": float64(2)}},
		{"empty string", "", map[string]any{}},
		{"null", "null", map[string]any{}},
		{"array", `[1,2]`, map[string]any{}},
		{"malformed", `{"path":`, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseToolArguments(tt.in))
		})
	}
}

func TestConvertToProviderToolCalls(t *testing.T) {
	assert.Nil(t, ConvertToProviderToolCalls(nil))
	assert.Nil(t, ConvertToProviderToolCalls([]api.ToolCall{}))

	calls := ConvertToProviderToolCalls([]api.ToolCall{
		{Function: api.ToolCallFunction{Name: "get_weather", Arguments: api.ToolCallFunctionArguments{"city": "Paris"}}},
		{Function: api.ToolCallFunction{Name: "current_time"}},
	})
	require.Len(t, calls, 2)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, "Paris", calls[0].Arguments["city"])
	assert.NotNil(t, calls[1].Arguments)
	assert.Empty(t, calls[1].Arguments)
}
