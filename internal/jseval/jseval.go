// Package jseval runs untrusted script expressions in a sandboxed goja runtime.
package jseval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// DefaultTimeout bounds an evaluation when no timeout is configured
const DefaultTimeout = 2 * time.Second

// Evaluator runs expressions. Each call gets a fresh runtime with no host access
// beyond a console object.
type Evaluator struct {
	timeout time.Duration
}

// New returns an evaluator with the given time limit
func New(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Evaluator{timeout: timeout}
}

// Eval runs expression as a function body and returns the captured console
// output in order. Errors raised by the script are appended as "Error: <message>"
// and never returned.
func (e *Evaluator) Eval(ctx context.Context, expression string) []string {
	vm := goja.New()
	logs := make([]string, 0)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, func(call goja.FunctionCall) goja.Value {
			args := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				args = append(args, formatValue(a))
			}
			logs = append(logs, strings.Join(args, " "))
			return goja.Undefined()
		})
	}
	_ = vm.Set("console", console)

	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt(fmt.Sprintf("execution timed out after %s", e.timeout))
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt("execution canceled")
	})
	defer stop()

	// Wrap in a function so a bare `return` works
	src := "(function() {\n" + expression + "\n})()"
	if _, err := vm.RunString(src); err != nil {
		logs = append(logs, "Error: "+errorMessage(err))
	}
	return logs
}

func errorMessage(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Sprint(interrupted.Value())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if obj, ok := ex.Value().(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		return ex.Value().String()
	}
	// Syntax errors surface as *goja.CompilerSyntaxError
	return err.Error()
}

func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if _, ok := v.(*goja.Object); ok {
		exported := v.Export()
		if _, isFunc := exported.(func(goja.FunctionCall) goja.Value); !isFunc {
			if b, err := json.Marshal(exported); err == nil {
				return string(b)
			}
		}
	}
	return v.String()
}
