package agent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/store"
)

func TestParseSettings(t *testing.T) {
	t.Run("decodes known fields", func(t *testing.T) {
		s := ParseSettings(json.RawMessage(`{"model":"gemini-2.5-pro","systemInstruction":"hi","temperature":0.5,"extra":true}`))
		assert.Equal(t, "gemini-2.5-pro", s.Model)
		assert.Equal(t, "hi", s.SystemInstruction)
		require.NotNil(t, s.Temperature)
		assert.InDelta(t, 0.5, *s.Temperature, 1e-6)
	})

	t.Run("malformed input yields zero settings", func(t *testing.T) {
		assert.Equal(t, Settings{}, ParseSettings(json.RawMessage(`nope`)))
		assert.Equal(t, Settings{}, ParseSettings(nil))
	})
}

func TestToContents(t *testing.T) {
	msgs := []store.Message{
		{ID: "1", Role: "user", Parts: json.RawMessage(`[{"text":"hi"}]`)},
		{ID: "2", Role: "model", Parts: json.RawMessage(`[{"functionCall":{"name":"alert","args":{"message":"x"}}}]`)},
	}
	contents, err := ToContents(msgs)
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "hi", contents[0].Text())
	calls := contents[1].ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "alert", calls[0].Name)

	_, err = ToContents([]store.Message{{ID: "bad", Role: "user", Parts: json.RawMessage(`{`)}})
	assert.ErrorContains(t, err, "bad")
}

func TestPruneForModel(t *testing.T) {
	call := func(name string) llm.Part {
		return llm.Part{FunctionCall: &llm.FunctionCall{Name: name, Args: json.RawMessage(`{}`)}}
	}
	resp := func(name string) llm.Part { return llm.FunctionResponsePart(name, "ok") }

	t.Run("keeps answered calls", func(t *testing.T) {
		in := []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("hi")}},
			{Role: llm.RoleModel, Parts: []llm.Part{call("alert")}},
			{Role: llm.RoleUser, Parts: []llm.Part{resp("alert")}},
		}
		assert.Equal(t, in, pruneForModel(in))
	})

	t.Run("drops unanswered calls and orphan responses", func(t *testing.T) {
		in := []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("pick")}},
			{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("choose:"), call("choice")}},
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("never mind")}},
			{Role: llm.RoleUser, Parts: []llm.Part{resp("query")}},
		}
		out := pruneForModel(in)
		require.Len(t, out, 3)
		assert.Equal(t, []llm.Part{llm.TextPart("choose:")}, out[1].Parts)
		assert.Equal(t, "never mind", out[2].Text())
	})

	t.Run("drops model images", func(t *testing.T) {
		in := []llm.Content{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("draw"), llm.InlineDataPart("image/png", "AA==")}},
			{Role: llm.RoleModel, Parts: []llm.Part{llm.InlineDataPart("image/png", "aGk=")}},
		}
		out := pruneForModel(in)
		require.Len(t, out, 1)
		assert.Len(t, out[0].Parts, 2, "user uploads are kept")
	})

	t.Run("matches repeated calls by count", func(t *testing.T) {
		in := []llm.Content{
			{Role: llm.RoleModel, Parts: []llm.Part{call("query"), call("query")}},
			{Role: llm.RoleUser, Parts: []llm.Part{resp("query")}},
		}
		out := pruneForModel(in)
		require.Len(t, out, 2)
		assert.Len(t, out[0].Parts, 1)
	})
}
