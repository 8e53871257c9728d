package mcp

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/generative-ai-go/genai"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// The helpers below render a tool catalog in each backend's native tool
// format. Every one returns nil for an empty catalog so the request field is
// omitted.

// OllamaTools renders tools as Ollama function definitions.
func OllamaTools(tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.Tool, len(tools))
	for i, t := range tools {
		params := api.ToolFunctionParameters{
			Type:       t.InputSchema.Type,
			Required:   t.InputSchema.Required,
			Properties: make(map[string]api.ToolProperty, len(t.InputSchema.Properties)),
		}
		if t.InputSchema.Defs != nil {
			params.Defs = t.InputSchema.Defs
		}
		for name, v := range t.InputSchema.Properties {
			params.Properties[name] = ollamaProperty(v)
		}
		out[i] = api.Tool{
			Type:     "function",
			Function: api.ToolFunction{Name: t.Name, Description: t.Description, Parameters: params},
		}
	}
	return out
}

func ollamaProperty(v any) api.ToolProperty {
	m := asSchema(v)
	prop := api.ToolProperty{Type: api.PropertyType(typeNames(m["type"]))}
	prop.Description, _ = m["description"].(string)
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if variants, ok := m["anyOf"].([]any); ok {
		for _, variant := range variants {
			prop.AnyOf = append(prop.AnyOf, ollamaProperty(variant))
		}
	}
	return prop
}

// OpenAITools renders tools as OpenAI function tools. OpenRouter accepts the
// same shape.
func OpenAITools(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(jsonSchema(t.InputSchema)),
		})
	}
	return out
}

// jsonSchema is the input schema as a plain JSON Schema object.
func jsonSchema(s mcptypes.ToolInputSchema) map[string]any {
	m := map[string]any{"type": s.Type, "properties": s.Properties}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if s.Defs != nil {
		m["$defs"] = s.Defs
	}
	return m
}

// AnthropicTools renders tools as Anthropic tool params. $defs has no typed
// field and travels in ExtraFields.
func AnthropicTools(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: t.InputSchema.Properties}
		if len(t.InputSchema.Required) > 0 {
			schema.Required = t.InputSchema.Required
		}
		if t.InputSchema.Defs != nil {
			schema.ExtraFields = map[string]any{"$defs": t.InputSchema.Defs}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			out[i].OfTool.Description = anthropic.String(t.Description)
		}
	}
	return out
}

// GeminiTools renders tools as Gemini function declarations. Gemini takes a
// typed OpenAPI subset, so unions collapse to their first non-null member
// and unsupported keywords are dropped.
func GeminiTools(tools []mcptypes.Tool) []*genai.FunctionDeclaration {
	if len(tools) == 0 {
		return nil
	}
	out := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if len(t.InputSchema.Properties) > 0 {
			decl.Parameters = &genai.Schema{
				Type:       genai.TypeObject,
				Required:   t.InputSchema.Required,
				Properties: geminiProperties(t.InputSchema.Properties),
			}
		}
		out[i] = decl
	}
	return out
}

func geminiProperties(props map[string]any) map[string]*genai.Schema {
	out := make(map[string]*genai.Schema, len(props))
	for name, v := range props {
		out[name] = geminiSchema(v)
	}
	return out
}

func geminiSchema(v any) *genai.Schema {
	m := asSchema(v)
	s := &genai.Schema{Type: genai.TypeString}
	for _, name := range typeNames(m["type"]) {
		if name != "null" {
			s.Type = geminiType(name)
			break
		}
	}
	s.Description, _ = m["description"].(string)
	if enum, ok := m["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	switch s.Type {
	case genai.TypeArray:
		if items, ok := m["items"]; ok {
			s.Items = geminiSchema(items)
		}
	case genai.TypeObject:
		if props, ok := m["properties"].(map[string]any); ok {
			s.Properties = geminiProperties(props)
		}
	}
	return s
}

func geminiType(name string) genai.Type {
	switch strings.ToLower(name) {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// asSchema returns a property schema as a map. Typed values are round-tripped
// through JSON; anything that is not an object yields an empty map.
func asSchema(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	var m map[string]any
	b, err := json.Marshal(v)
	if err != nil || json.Unmarshal(b, &m) != nil {
		return map[string]any{}
	}
	return m
}

// typeNames reads a JSON Schema "type", which is a string or a list.
func typeNames(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		names := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}
