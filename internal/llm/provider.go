package llm

import (
	"context"
	"fmt"
)

// ProviderID represents a unique provider identifier
type ProviderID string

const (
	ProviderGemini  ProviderID = "gemini"
	ProviderNovelAI ProviderID = "novelai"
)

// Provider is the interface the conversation loop talks to
type Provider interface {
	// ID returns the unique provider identifier
	ID() ProviderID

	// Name returns the human-readable provider name
	Name() string

	// Chat sends the transcript and returns the next model turn
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Models returns available models for this provider
	Models() []Model

	// DefaultModel returns the default model for this provider
	DefaultModel() string

	// SetModel switches the active model. Returns error if model ID is not
	// in the provider's supported model list.
	SetModel(modelID string) error
}

// Model represents an available model
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextWindow int    `json:"context_window"`
	SupportsTools bool   `json:"supports_tools"`
}

// ToolMode controls how the model is allowed to call functions
type ToolMode string

const (
	ToolModeAuto ToolMode = "auto"
	ToolModeAny  ToolMode = "any"
	ToolModeNone ToolMode = "none"
)

// ChatRequest is a provider-agnostic chat request
type ChatRequest struct {
	SystemPrompt string    `json:"system_prompt"`
	Contents     []Content `json:"contents"`
	Tools        *ToolSet  `json:"tools,omitempty"`
	ToolMode     ToolMode  `json:"tool_mode,omitempty"`
	Model        string    `json:"model,omitempty"` // Uses default if empty
	Temperature  *float32  `json:"temperature,omitempty"`
}

// ChatResponse is a provider-agnostic chat response
type ChatResponse struct {
	Content    Content `json:"content"`
	StopReason string  `json:"stop_reason"`
	Usage      Usage   `json:"usage"`
}

// ToolCalls returns the function calls of the response in emission order
func (r *ChatResponse) ToolCalls() []ToolCall {
	return r.Content.ToolCalls()
}

// Usage tracks token usage
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// EnvVarsForProvider returns the environment variables holding a provider's API key,
// in lookup order
func EnvVarsForProvider(id ProviderID) []string {
	switch id {
	case ProviderGemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ProviderNovelAI:
		return []string{"NOVELAI_API_KEY"}
	default:
		return nil
	}
}

// AllProviderIDs returns all known provider IDs
func AllProviderIDs() []ProviderID {
	return []ProviderID{
		ProviderGemini,
		ProviderNovelAI,
	}
}

// ValidateModelID checks whether modelID exists in the given model list.
func ValidateModelID(modelID string, models []Model) error {
	for _, m := range models {
		if m.ID == modelID {
			return nil
		}
	}
	return fmt.Errorf("unknown model %q for this provider", modelID)
}
