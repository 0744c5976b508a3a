package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider implements the Provider interface for Google Gemini
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiModels lists available Gemini models
var GeminiModels = []Model{
	{
		ID:            "gemini-2.0-flash",
		Name:          "Gemini 2.0 Flash",
		ContextWindow: 1000000,
		SupportsTools: true,
	},
	{
		ID:            "gemini-2.5-flash",
		Name:          "Gemini 2.5 Flash",
		ContextWindow: 1000000,
		SupportsTools: true,
	},
	{
		ID:            "gemini-2.5-pro",
		Name:          "Gemini 2.5 Pro",
		ContextWindow: 1000000,
		SupportsTools: true,
	},
	{
		ID:            "gemini-1.5-pro",
		Name:          "Gemini 1.5 Pro",
		ContextWindow: 2000000,
		SupportsTools: true,
	},
}

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string, model string) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if model == "" {
		model = DefaultGeminiModel
	}

	return &GeminiProvider{
		client: client,
		model:  model,
	}, nil
}

// ID returns the provider identifier
func (p *GeminiProvider) ID() ProviderID {
	return ProviderGemini
}

// Name returns the human-readable provider name
func (p *GeminiProvider) Name() string {
	return "Google Gemini"
}

// Models returns available models
func (p *GeminiProvider) Models() []Model {
	return GeminiModels
}

// DefaultModel returns the default model
func (p *GeminiProvider) DefaultModel() string {
	return p.model
}

// SetModel switches the active model after validating the ID
func (p *GeminiProvider) SetModel(modelID string) error {
	if err := ValidateModelID(modelID, p.Models()); err != nil {
		return err
	}
	p.model = modelID
	return nil
}

// Chat sends the transcript and returns the model's next turn. The last content
// of the request is sent as the new message, everything before it is history.
func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(req.Contents) == 0 {
		return nil, fmt.Errorf("at least one content is required")
	}

	modelName := req.Model
	if modelName == "" {
		modelName = p.model
	}

	model := p.client.GenerativeModel(modelName)

	// Set system instruction
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}

	// Configure tools
	if req.Tools != nil && len(req.Tools.FunctionDeclarations) > 0 {
		tool, err := toGenaiTool(req.Tools)
		if err != nil {
			return nil, err
		}
		model.Tools = []*genai.Tool{tool}
		model.ToolConfig = toGenaiToolConfig(req.ToolMode)
	}

	contents, err := toGenaiContents(req.Contents)
	if err != nil {
		return nil, err
	}

	// Start chat session
	cs := model.StartChat()
	cs.History = contents[:len(contents)-1] // All but last message

	// Send last message
	lastMsg := contents[len(contents)-1]
	resp, err := cs.SendMessage(ctx, lastMsg.Parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	return parseGeminiResponse(resp)
}

// Close closes the client
func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func parseGeminiResponse(resp *genai.GenerateContentResponse) (*ChatResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	response := &ChatResponse{
		Content:    Content{Role: RoleModel},
		StopReason: candidate.FinishReason.String(),
	}

	if resp.UsageMetadata != nil {
		response.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if candidate.Content != nil {
		parts, err := fromGenaiParts(candidate.Content.Parts)
		if err != nil {
			return nil, err
		}
		response.Content.Parts = parts
	}

	return response, nil
}

func fromGenaiParts(in []genai.Part) ([]Part, error) {
	parts := make([]Part, 0, len(in))
	for _, part := range in {
		switch v := part.(type) {
		case genai.Text:
			parts = append(parts, TextPart(string(v)))
		case genai.FunctionCall:
			argsJSON, err := json.Marshal(v.Args)
			if err != nil {
				return nil, fmt.Errorf("encode args of %s: %w", v.Name, err)
			}
			parts = append(parts, Part{FunctionCall: &FunctionCall{
				Name: v.Name,
				Args: argsJSON,
			}})
		case genai.Blob:
			parts = append(parts, InlineDataPart(v.MIMEType, base64.StdEncoding.EncodeToString(v.Data)))
		}
	}
	return parts, nil
}

func toGenaiContents(in []Content) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(in))
	for _, c := range in {
		role := string(c.Role)
		if role == "" {
			role = string(RoleUser)
		}
		gc := &genai.Content{Role: role}
		for _, p := range c.Parts {
			gp, err := toGenaiPart(p)
			if err != nil {
				return nil, err
			}
			if gp != nil {
				gc.Parts = append(gc.Parts, gp)
			}
		}
		if len(gc.Parts) == 0 {
			continue
		}
		out = append(out, gc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("transcript has no sendable parts")
	}
	return out, nil
}

func toGenaiPart(p Part) (genai.Part, error) {
	switch {
	case p.FunctionCall != nil:
		var args map[string]any
		if len(p.FunctionCall.Args) > 0 {
			if err := json.Unmarshal(p.FunctionCall.Args, &args); err != nil {
				return nil, fmt.Errorf("decode args of %s: %w", p.FunctionCall.Name, err)
			}
		}
		return genai.FunctionCall{Name: p.FunctionCall.Name, Args: args}, nil
	case p.FunctionResponse != nil:
		return genai.FunctionResponse{
			Name:     p.FunctionResponse.Name,
			Response: p.FunctionResponse.Response,
		}, nil
	case p.InlineData != nil:
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline data: %w", err)
		}
		return genai.Blob{MIMEType: p.InlineData.MimeType, Data: data}, nil
	case p.Text != "":
		return genai.Text(p.Text), nil
	default:
		return nil, nil
	}
}

func toGenaiTool(ts *ToolSet) (*genai.Tool, error) {
	funcDecls := make([]*genai.FunctionDeclaration, 0, len(ts.FunctionDeclarations))
	for _, tool := range ts.FunctionDeclarations {
		var params map[string]any
		if len(tool.Parameters) > 0 {
			if err := json.Unmarshal(tool.Parameters, &params); err != nil {
				return nil, fmt.Errorf("invalid schema for tool %s: %w", tool.Name, err)
			}
		}

		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertToSchema(params),
		})
	}
	return &genai.Tool{FunctionDeclarations: funcDecls}, nil
}

func toGenaiToolConfig(mode ToolMode) *genai.ToolConfig {
	var m genai.FunctionCallingMode
	switch mode {
	case ToolModeAny:
		m = genai.FunctionCallingAny
	case ToolModeNone:
		m = genai.FunctionCallingNone
	default:
		m = genai.FunctionCallingAuto
	}
	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: m},
	}
}

// convertToSchema converts a JSON schema object to genai.Schema
func convertToSchema(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
	}

	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = convertPropertyToSchema(propMap)
			}
		}
	}

	if required, ok := params["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	return schema
}

func convertPropertyToSchema(prop map[string]any) *genai.Schema {
	schema := &genai.Schema{}

	if t, ok := prop["type"].(string); ok {
		switch t {
		case "string":
			schema.Type = genai.TypeString
		case "number":
			schema.Type = genai.TypeNumber
		case "integer":
			schema.Type = genai.TypeInteger
		case "boolean":
			schema.Type = genai.TypeBoolean
		case "array":
			schema.Type = genai.TypeArray
		case "object":
			return convertToSchema(prop)
		}
	}

	if desc, ok := prop["description"].(string); ok {
		schema.Description = desc
	}

	if items, ok := prop["items"].(map[string]any); ok {
		schema.Items = convertPropertyToSchema(items)
	}

	if enum, ok := prop["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	return schema
}
