package provider

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/generative-ai-go/genai"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"parley/model"
)

// ConvertToOllamaMessages converts a prompt to Ollama api.Message values.
//
// Ollama accepts all four roles as-is, including "tool", so this is a plain
// field mapping.
//
// Example:
//
//	prompt := model.Prompt{Messages: []model.PromptMessage{
//	    {Role: model.RoleUser, Content: "Hello"},
//	}}
//	ollamaMessages := ConvertToOllamaMessages(prompt)
func ConvertToOllamaMessages(prompt model.Prompt) []api.Message {
	result := make([]api.Message, len(prompt.Messages))
	for i, msg := range prompt.Messages {
		result[i] = api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}
	return result
}

// ConvertToOpenAIMessages converts a prompt to OpenAI chat messages. Tool
// context has no call id to answer, so it is sent as a user message.
func ConvertToOpenAIMessages(prompt model.Prompt) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(prompt.Messages))
	for i, msg := range prompt.Messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}

// convertToAnthropicMessages converts a prompt to Anthropic format.
// System messages move to the separate system parameter and consecutive
// turns of the same role are merged, since the API expects alternation
// starting with the user.
func convertToAnthropicMessages(prompt model.Prompt) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	var turns []turn
	for _, msg := range prompt.Messages {
		if msg.Role == model.RoleSystem {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		turns = appendTurn(turns, msg.Role == model.RoleAssistant, msg.Content)
	}

	result := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.assistant {
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.text)))
		} else {
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(t.text)))
		}
	}
	return result, systemBlocks
}

// convertToGeminiContents converts a prompt to Gemini history. The system
// text is returned separately for the model's SystemInstruction.
func convertToGeminiContents(prompt model.Prompt) ([]*genai.Content, string) {
	var turns []turn
	for _, msg := range prompt.Messages {
		if msg.Role == model.RoleSystem {
			continue
		}
		turns = appendTurn(turns, msg.Role == model.RoleAssistant, msg.Content)
	}

	result := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.assistant {
			role = "model"
		}
		result = append(result, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.text)}})
	}
	return result, prompt.System()
}

// turn is one side of a strictly alternating conversation.
type turn struct {
	assistant bool
	text      string
}

// appendTurn merges text into the previous turn when the speaker repeats and
// opens with a user turn when the history starts with the assistant.
func appendTurn(turns []turn, assistant bool, text string) []turn {
	if len(turns) == 0 && assistant {
		turns = append(turns, turn{text: "(conversation continues)"})
	}
	if n := len(turns); n > 0 && turns[n-1].assistant == assistant {
		turns[n-1].text += "\n\n" + text
		return turns
	}
	return append(turns, turn{assistant: assistant, text: text})
}

// ParseToolArguments parses JSON arguments string into a map.
// Used by OpenAI and OpenRouter providers for tool call parsing.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		// If parsing fails, return empty map
		return make(map[string]any)
	}
	return args
}

// ConvertToProviderToolCalls converts Ollama api.ToolCall to provider-agnostic model.ToolCall.
//
// Returns nil if the input is nil or empty, maintaining the same nil semantics as
// the Ollama API.
//
// Example:
//
//	ollamaCalls := []api.ToolCall{
//	    {Function: api.ToolCallFunction{
//	        Name: "get_weather",
//	        Arguments: map[string]any{"city": "San Francisco"},
//	    }},
//	}
//	providerCalls := ConvertToProviderToolCalls(ollamaCalls)
//	// providerCalls[0].Name == "get_weather"
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		args := map[string]any(call.Function.Arguments)
		if args == nil {
			args = map[string]any{}
		}
		result[i] = model.ToolCall{
			Name:      call.Function.Name,
			Arguments: args,
		}
	}
	return result
}
