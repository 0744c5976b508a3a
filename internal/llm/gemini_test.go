package llm

import (
	"encoding/json"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToGenaiContents(t *testing.T) {
	t.Run("converts every part kind", func(t *testing.T) {
		in := []Content{
			{Role: RoleUser, Parts: []Part{TextPart("draw a cat")}},
			{Role: RoleModel, Parts: []Part{{FunctionCall: &FunctionCall{Name: "imageGeneration", Args: json.RawMessage(`{"prompt":"cat"}`)}}}},
			{Role: RoleUser, Parts: []Part{FunctionResponsePart("imageGeneration", "ok")}},
			{Role: RoleModel, Parts: []Part{InlineDataPart("image/png", "iVBO")}},
		}

		out, err := toGenaiContents(in)
		require.NoError(t, err)
		require.Len(t, out, 4)

		assert.Equal(t, "user", out[0].Role)
		assert.Equal(t, genai.Text("draw a cat"), out[0].Parts[0])
		assert.Equal(t, genai.FunctionCall{Name: "imageGeneration", Args: map[string]any{"prompt": "cat"}}, out[1].Parts[0])
		assert.Equal(t, genai.FunctionResponse{Name: "imageGeneration", Response: map[string]any{"output": "ok"}}, out[2].Parts[0])
		blob, ok := out[3].Parts[0].(genai.Blob)
		require.True(t, ok)
		assert.Equal(t, "image/png", blob.MIMEType)
		assert.Equal(t, []byte{0x89, 0x50, 0x4e}, blob.Data)
	})

	t.Run("skips empty turns and defaults role", func(t *testing.T) {
		out, err := toGenaiContents([]Content{
			{Parts: []Part{TextPart("hi")}},
			{Role: RoleModel, Parts: []Part{{}}},
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "user", out[0].Role)
	})

	t.Run("nothing sendable", func(t *testing.T) {
		_, err := toGenaiContents([]Content{{Role: RoleUser}})
		assert.Error(t, err)
	})

	t.Run("bad inline data", func(t *testing.T) {
		_, err := toGenaiContents([]Content{{Role: RoleModel, Parts: []Part{InlineDataPart("image/png", "%%")}}})
		assert.ErrorContains(t, err, "decode inline data")
	})
}

func TestParseGeminiResponse(t *testing.T) {
	t.Run("text and function calls in order", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: "model", Parts: []genai.Part{
					genai.Text("one moment"),
					genai.FunctionCall{Name: "choice", Args: map[string]any{"options": []any{"a", "b"}}},
				}},
				FinishReason: genai.FinishReasonStop,
			}},
			UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 4},
		}

		out, err := parseGeminiResponse(resp)
		require.NoError(t, err)
		assert.Equal(t, RoleModel, out.Content.Role)
		assert.Equal(t, "one moment", out.Content.Text())
		assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 4}, out.Usage)

		calls := out.ToolCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "choice", calls[0].Name)
		assert.JSONEq(t, `{"options":["a","b"]}`, string(calls[0].Input))
	})

	t.Run("blob becomes inline data", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png", Data: []byte{0x89, 0x50, 0x4e}}}},
		}}}

		out, err := parseGeminiResponse(resp)
		require.NoError(t, err)
		require.Len(t, out.Content.Parts, 1)
		assert.Equal(t, &InlineData{MimeType: "image/png", Data: "iVBO"}, out.Content.Parts[0].InlineData)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := parseGeminiResponse(&genai.GenerateContentResponse{})
		assert.Error(t, err)
	})
}

func TestToGenaiTool(t *testing.T) {
	ts := &ToolSet{FunctionDeclarations: []Tool{
		NewTool("choice", "Ask the user to pick", JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"options": {Type: "array", Description: "Values", Items: &Property{Type: "string"}},
				"mode":    {Type: "string", Enum: []string{"single", "multi"}},
			},
			Required: []string{"options"},
		}),
	}}

	tool, err := toGenaiTool(ts)
	require.NoError(t, err)
	require.Len(t, tool.FunctionDeclarations, 1)

	decl := tool.FunctionDeclarations[0]
	assert.Equal(t, "choice", decl.Name)
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"options"}, decl.Parameters.Required)

	options := decl.Parameters.Properties["options"]
	assert.Equal(t, genai.TypeArray, options.Type)
	assert.Equal(t, genai.TypeString, options.Items.Type)
	assert.Equal(t, []string{"single", "multi"}, decl.Parameters.Properties["mode"].Enum)
}

func TestToGenaiToolConfig(t *testing.T) {
	tests := []struct {
		mode     ToolMode
		expected genai.FunctionCallingMode
	}{
		{ToolModeAuto, genai.FunctionCallingAuto},
		{ToolModeAny, genai.FunctionCallingAny},
		{ToolModeNone, genai.FunctionCallingNone},
		{"", genai.FunctionCallingAuto},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.expected, toGenaiToolConfig(tt.mode).FunctionCallingConfig.Mode)
		})
	}
}
