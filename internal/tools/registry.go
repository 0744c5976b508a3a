// Package tools declares the functions the model may call and executes them.
package tools

import (
	"context"
	"log/slog"

	"github.com/yolodolo42/chatd/internal/jseval"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/novelai"
	"github.com/yolodolo42/chatd/internal/store"
)

// Tool names
const (
	NameAlert      = "alert"
	NameJavaScript = "javascript"
	NameEval       = "eval"
	NameChoice     = "choice"
	NameQuery      = "query"
	NameImage      = "imageGeneration"
)

// Alerter shows a message to the end user
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter
type AlertFunc func(message string)

func (f AlertFunc) Alert(message string) { f(message) }

// Chooser suspends until the end user picks one of options
type Chooser interface {
	Ask(ctx context.Context, options []string) (string, error)
}

// QueryRunner executes raw SQL. QueryReadOnly must have the database itself
// reject writes.
type QueryRunner interface {
	Query(ctx context.Context, query string) (*store.QueryResult, error)
	QueryReadOnly(ctx context.Context, query string) (*store.QueryResult, error)
}

// ImageGenerator produces images from prompts
type ImageGenerator interface {
	Generate(ctx context.Context, p novelai.Prompt) (novelai.Image, bool)
}

// Env carries the per-session collaborators of a dispatch
type Env struct {
	Alerter Alerter
	Chooser Chooser
}

// Handler executes one call. call.Name is the invoked name, which may be an alias.
type Handler func(ctx context.Context, env Env, call llm.ToolCall) (Result, error)

// Options selects and wires the tools of a registry. A nil collaborator
// disables the tool that needs it.
type Options struct {
	Alert       bool
	Evaluator   *jseval.Evaluator
	Queries     QueryRunner
	AllowWrites bool
	Images      ImageGenerator
	Logger      *slog.Logger
}

// Registry is the immutable catalog of declarations and handlers
type Registry struct {
	tools    []llm.Tool
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry builds the registry. Declaration order is fixed:
// alert, javascript, choice, query, imageGeneration.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}

	if opts.Alert {
		r.register(alertTool(), handleAlert)
	}
	if opts.Evaluator != nil {
		h := jsHandler(opts.Evaluator)
		r.register(javascriptTool(), h)
		r.handlers[NameEval] = h
	}
	r.register(choiceTool(), handleChoice)
	if opts.Queries != nil {
		r.register(queryTool(), queryHandler(opts.Queries, opts.AllowWrites))
	}
	if opts.Images != nil {
		r.register(imageTool(), imageHandler(opts.Images))
	}

	return r
}

func (r *Registry) register(tool llm.Tool, h Handler) {
	r.tools = append(r.tools, tool)
	r.handlers[tool.Name] = h
}

// Tools returns the declarations in order
func (r *Registry) Tools() []llm.Tool {
	out := make([]llm.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// ToolSet groups all declarations into the single set handed to the model
func (r *Registry) ToolSet() *llm.ToolSet {
	return &llm.ToolSet{FunctionDeclarations: r.Tools()}
}

// Has reports whether name resolves to a handler
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}
