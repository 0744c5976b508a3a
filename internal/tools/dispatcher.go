package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yolodolo42/chatd/internal/llm"
)

// ErrUnknownTool is returned when a call names no registered handler
var ErrUnknownTool = errors.New("unknown tool")

// Dispatcher routes calls to handlers for one session
type Dispatcher struct {
	registry *Registry
	env      Env
	logger   *slog.Logger
}

// NewDispatcher binds the registry to a session's collaborators
func NewDispatcher(r *Registry, env Env) *Dispatcher {
	return &Dispatcher{registry: r, env: env, logger: r.logger}
}

// Registry returns the underlying registry
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch executes call and blocks until the handler returns. The handler's
// Result is returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) (Result, error) {
	handler, ok := d.registry.handlers[call.Name]
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name)
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if len(call.Input) == 0 {
		call.Input = []byte(`{}`)
	}

	start := time.Now()
	res, err := handler(ctx, d.env, call)
	if err != nil {
		d.logger.Error("tool failed", "tool", call.Name, "duration", time.Since(start), "error", err)
		return Result{}, err
	}
	d.logger.Debug("tool executed", "tool", call.Name, "result", res.Kind().String(), "duration", time.Since(start))
	return res, nil
}
