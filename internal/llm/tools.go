package llm

import (
	"encoding/json"
)

// Tool represents a tool that can be called by the LLM
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolSet bundles declarations the way the Gemini API expects them
type ToolSet struct {
	FunctionDeclarations []Tool `json:"functionDeclarations"`
}

// Names returns the declared tool names in order
func (ts *ToolSet) Names() []string {
	if ts == nil {
		return nil
	}
	names := make([]string, 0, len(ts.FunctionDeclarations))
	for _, t := range ts.FunctionDeclarations {
		names = append(names, t.Name)
	}
	return names
}

// NewTool creates a new tool definition
func NewTool(name, description string, schema JSONSchema) Tool {
	schemaBytes, _ := json.Marshal(schema)
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schemaBytes,
	}
}

// Common JSON Schema types for tool definitions
type JSONSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
}
