package agent

import (
	"encoding/json"
	"fmt"

	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/store"
)

// Settings are the per-conversation model options stored with the conversation
type Settings struct {
	Model             string   `json:"model,omitempty"`
	SystemInstruction string   `json:"systemInstruction,omitempty"`
	Temperature       *float32 `json:"temperature,omitempty"`
}

// ParseSettings decodes stored settings; unknown or malformed input yields zero settings
func ParseSettings(raw json.RawMessage) Settings {
	var s Settings
	if len(raw) == 0 {
		return s
	}
	_ = json.Unmarshal(raw, &s)
	return s
}

// ToContents converts stored messages to transcript turns
func ToContents(msgs []store.Message) ([]llm.Content, error) {
	out := make([]llm.Content, 0, len(msgs))
	for _, m := range msgs {
		parts, err := llm.UnmarshalParts(m.Parts)
		if err != nil {
			return nil, fmt.Errorf("decode parts of message %s: %w", m.ID, err)
		}
		out = append(out, llm.Content{Role: llm.Role(m.Role), Parts: parts})
	}
	return out, nil
}

// pruneForModel returns the transcript as the model may see it: function calls
// must be answered by the next turn, and model-authored inline data (generated
// images) is shown to the user only.
func pruneForModel(contents []llm.Content) []llm.Content {
	out := make([]llm.Content, 0, len(contents))
	for i, c := range contents {
		var answered map[string]int
		if c.Role == llm.RoleModel && i+1 < len(contents) {
			answered = responseCounts(contents[i+1])
		}

		var prevCalls map[string]int
		if c.Role == llm.RoleUser && i > 0 {
			prevCalls = callCounts(contents[i-1])
		}

		parts := make([]llm.Part, 0, len(c.Parts))
		for _, p := range c.Parts {
			switch {
			case p.FunctionCall != nil:
				if answered[p.FunctionCall.Name] == 0 {
					continue
				}
				answered[p.FunctionCall.Name]--
			case p.FunctionResponse != nil:
				if prevCalls[p.FunctionResponse.Name] == 0 {
					continue
				}
				prevCalls[p.FunctionResponse.Name]--
			case p.InlineData != nil && c.Role == llm.RoleModel:
				continue
			}
			parts = append(parts, p)
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, llm.Content{Role: c.Role, Parts: parts})
	}
	return out
}

func responseCounts(c llm.Content) map[string]int {
	counts := map[string]int{}
	if c.Role != llm.RoleUser {
		return counts
	}
	for _, p := range c.Parts {
		if p.FunctionResponse != nil {
			counts[p.FunctionResponse.Name]++
		}
	}
	return counts
}

func callCounts(c llm.Content) map[string]int {
	counts := map[string]int{}
	if c.Role != llm.RoleModel {
		return counts
	}
	for _, p := range c.Parts {
		if p.FunctionCall != nil {
			counts[p.FunctionCall.Name]++
		}
	}
	return counts
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
