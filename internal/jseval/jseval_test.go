package jseval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_Eval(t *testing.T) {
	ev := New(time.Second)
	ctx := context.Background()

	t.Run("captures console output in order", func(t *testing.T) {
		logs := ev.Eval(ctx, `console.log("a"); console.warn("b", 2); console.error(1 + 1)`)
		assert.Equal(t, []string{"a", "b 2", "2"}, logs)
	})

	t.Run("formats objects as JSON", func(t *testing.T) {
		logs := ev.Eval(ctx, `console.log({x: 1}, [1, 2], null, undefined)`)
		assert.Equal(t, []string{`{"x":1} [1,2] null undefined`}, logs)
	})

	t.Run("no output yields an empty sequence", func(t *testing.T) {
		logs := ev.Eval(ctx, `var x = 1 + 1`)
		assert.Empty(t, logs)
	})

	t.Run("thrown error becomes the last log line", func(t *testing.T) {
		logs := ev.Eval(ctx, `console.log("before"); throw new Error("boom")`)
		require.Len(t, logs, 2)
		assert.Equal(t, "before", logs[0])
		assert.Equal(t, "Error: boom", logs[1])
	})

	t.Run("thrown primitive", func(t *testing.T) {
		logs := ev.Eval(ctx, `throw "nope"`)
		require.NotEmpty(t, logs)
		assert.Equal(t, "Error: nope", logs[len(logs)-1])
	})

	t.Run("reference error", func(t *testing.T) {
		logs := ev.Eval(ctx, `missing()`)
		require.NotEmpty(t, logs)
		assert.Contains(t, logs[len(logs)-1], "Error:")
		assert.Contains(t, logs[len(logs)-1], "missing")
	})

	t.Run("syntax error", func(t *testing.T) {
		logs := ev.Eval(ctx, `console.log(`)
		require.NotEmpty(t, logs)
		assert.True(t, len(logs[len(logs)-1]) > len("Error: "))
		assert.Equal(t, "Error: ", logs[len(logs)-1][:7])
	})

	t.Run("runaway loop is interrupted", func(t *testing.T) {
		short := New(50 * time.Millisecond)
		logs := short.Eval(ctx, `while (true) {}`)
		require.NotEmpty(t, logs)
		assert.Contains(t, logs[len(logs)-1], "timed out")
	})

	t.Run("context cancellation interrupts", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		logs := New(time.Minute).Eval(cctx, `while (true) {}`)
		require.NotEmpty(t, logs)
		assert.Contains(t, logs[len(logs)-1], "canceled")
	})

	t.Run("runtimes are isolated between calls", func(t *testing.T) {
		ev.Eval(ctx, `globalThis.leak = 1`)
		logs := ev.Eval(ctx, `console.log(typeof leak)`)
		assert.Equal(t, []string{"undefined"}, logs)
	})

	t.Run("host globals are absent", func(t *testing.T) {
		logs := ev.Eval(ctx, `console.log(typeof require, typeof process)`)
		assert.Equal(t, []string{"undefined undefined"}, logs)
	})
}
