package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/yolodolo42/chatd/internal/choice"
	"github.com/yolodolo42/chatd/internal/jseval"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/novelai"
)

// ErrInvalidInput is returned when call arguments do not decode
var ErrInvalidInput = errors.New("invalid tool input")

// Tool definitions

type alertInput struct {
	Message string `json:"message"`
}

func alertTool() llm.Tool {
	return llm.NewTool(NameAlert,
		"Display an alert message to the user and return a confirmation. Do not use in normal conversation, it exists for testing.",
		llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"message": {Type: "string", Description: "The message to display in the alert."},
			},
			Required: []string{"message"},
		})
}

type javascriptInput struct {
	Expression string `json:"expression"`
}

func javascriptTool() llm.Tool {
	return llm.NewTool(NameJavaScript,
		"Run a JavaScript function body in a sandbox and return everything written with console.log. Use `return` only for control flow, output must be logged.",
		llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"expression": {Type: "string", Description: "JavaScript source to execute as the body of a function."},
			},
			Required: []string{"expression"},
		})
}

type choiceInput struct {
	Choices []string `json:"choices"`
}

func choiceTool() llm.Tool {
	return llm.NewTool(NameChoice,
		"Ask the user to pick one of several options and wait for the answer.",
		llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"choices": {
					Type:        "array",
					Description: "The options offered to the user.",
					Items:       &llm.Property{Type: "string"},
				},
			},
			Required: []string{"choices"},
		})
}

type queryInput struct {
	Query string `json:"query"`
}

func queryTool() llm.Tool {
	return llm.NewTool(NameQuery,
		"Run a SQL query against the chat database (tables: conversations, messages, users) and return the result.",
		llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"query": {Type: "string", Description: "The SQL statement to run."},
			},
			Required: []string{"query"},
		})
}

type imageInput struct {
	PositivePrompt string `json:"positivePrompt"`
	NegativePrompt string `json:"negativePrompt"`
	// nil when the model omitted it; 0 is a valid seed
	Seed *int64 `json:"seed"`
}

func imageTool() llm.Tool {
	return llm.NewTool(NameImage,
		"Generate an image from comma separated tags. The image is shown to the user and not returned to you.",
		llm.JSONSchema{
			Type: "object",
			Properties: map[string]llm.Property{
				"positivePrompt": {Type: "string", Description: "Tags describing what the image should contain."},
				"negativePrompt": {Type: "string", Description: "Tags describing what the image must not contain."},
				"seed":           {Type: "integer", Description: "Sampler seed. Omit for a random one."},
			},
			Required: []string{"positivePrompt", "negativePrompt"},
		})
}

func decodeInput(call llm.ToolCall, v any) error {
	if err := json.Unmarshal(call.Input, v); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidInput, call.Name, err)
	}
	return nil
}

// Tool handler implementations

func handleAlert(ctx context.Context, env Env, call llm.ToolCall) (Result, error) {
	var in alertInput
	if err := decodeInput(call, &in); err != nil {
		return Result{}, err
	}
	if env.Alerter != nil {
		env.Alerter.Alert(in.Message)
	}
	return respond(call.Name, map[string]any{"message": "Alert displayed"}), nil
}

func jsHandler(ev *jseval.Evaluator) Handler {
	return func(ctx context.Context, env Env, call llm.ToolCall) (Result, error) {
		var in javascriptInput
		if err := decodeInput(call, &in); err != nil {
			return Result{}, err
		}
		logs := ev.Eval(ctx, in.Expression)
		return respond(call.Name, strings.Join(logs, "\n")), nil
	}
}

func handleChoice(ctx context.Context, env Env, call llm.ToolCall) (Result, error) {
	var in choiceInput
	if err := decodeInput(call, &in); err != nil {
		return Result{}, err
	}
	if env.Chooser == nil {
		return Result{}, fmt.Errorf("%s: no user attached to this session", call.Name)
	}

	selected, err := env.Chooser.Ask(ctx, in.Choices)
	switch {
	case errors.Is(err, choice.ErrCanceled):
		return Aborted(), nil
	case err != nil:
		return Result{}, fmt.Errorf("%s: %w", call.Name, err)
	}
	return respond(call.Name, map[string]any{"choice": selected}), nil
}

func queryHandler(q QueryRunner, allowWrites bool) Handler {
	return func(ctx context.Context, env Env, call llm.ToolCall) (Result, error) {
		var in queryInput
		if err := decodeInput(call, &in); err != nil {
			return Result{}, err
		}
		run := q.Query
		if !allowWrites {
			if err := CheckReadOnly(in.Query); err != nil {
				return respond(call.Name, map[string]any{"error": err.Error()}), nil
			}
			run = q.QueryReadOnly
		}
		res, err := run(ctx, in.Query)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, err
			}
			// SQL errors go back to the model so it can correct the statement
			return respond(call.Name, map[string]any{"error": err.Error()}), nil
		}
		output, err := plainJSON(res)
		if err != nil {
			return Result{}, fmt.Errorf("%s: encode result: %w", call.Name, err)
		}
		return respond(call.Name, output), nil
	}
}

// plainJSON converts v to maps, slices and scalars so it can travel in a
// function response
func plainJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func imageHandler(gen ImageGenerator) Handler {
	return func(ctx context.Context, env Env, call llm.ToolCall) (Result, error) {
		var in imageInput
		if err := decodeInput(call, &in); err != nil {
			return Result{}, err
		}
		seed := rand.Int64N(1 << 32)
		if in.Seed != nil {
			seed = *in.Seed
		}

		img, ok := gen.Generate(ctx, novelai.Prompt{
			Positive: in.PositivePrompt,
			Negative: in.NegativePrompt,
			Seed:     seed,
		})
		if !ok {
			return Suppressed(llm.RoleModel, llm.TextPart("Image generation failed")), nil
		}
		return Suppressed(llm.RoleModel, llm.InlineDataPart(img.MimeType, img.Data)), nil
	}
}
