package llm

import (
	"encoding/json"
	"strings"
)

// Role is the author of a transcript turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Content is a single turn of the transcript. Field names follow the Gemini
// wire format so stored parts can be handed to the web client unchanged.
type Content struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is one element of a turn. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
}

// FunctionCall is a model-issued request to run a tool
type FunctionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse carries a tool result back to the model
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// InlineData is base64 encoded binary content
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ToolCall represents a tool call from the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// TextPart builds a text part
func TextPart(s string) Part {
	return Part{Text: s}
}

// FunctionResponsePart wraps output in the envelope the model correlates by name:
// {functionResponse:{name, response:{output}}}
func FunctionResponsePart(name string, output any) Part {
	return Part{FunctionResponse: &FunctionResponse{
		Name:     name,
		Response: map[string]any{"output": output},
	}}
}

// InlineDataPart builds an inline binary part
func InlineDataPart(mimeType, data string) Part {
	return Part{InlineData: &InlineData{MimeType: mimeType, Data: data}}
}

// Text concatenates the text parts of the turn
func (c Content) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// ToolCalls returns the function calls of the turn in order
func (c Content) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range c.Parts {
		if p.FunctionCall == nil {
			continue
		}
		input := p.FunctionCall.Args
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		id := p.FunctionCall.ID
		if id == "" {
			id = p.FunctionCall.Name // Gemini uses name as ID
		}
		calls = append(calls, ToolCall{
			ID:    id,
			Name:  p.FunctionCall.Name,
			Input: input,
		})
	}
	return calls
}

// MarshalParts encodes parts for storage
func MarshalParts(parts []Part) ([]byte, error) {
	if parts == nil {
		parts = []Part{}
	}
	return json.Marshal(parts)
}

// UnmarshalParts decodes stored parts
func UnmarshalParts(raw []byte) ([]Part, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var parts []Part
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}
