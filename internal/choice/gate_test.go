package choice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitAsking blocks until the gate reports an outstanding wait
func waitAsking(t *testing.T, g *Gate) {
	t.Helper()
	require.Eventually(t, func() bool { return g.State().IsAsking }, time.Second, time.Millisecond)
}

func TestGate_Resolve(t *testing.T) {
	t.Run("returns the selected option", func(t *testing.T) {
		g := New()
		done := make(chan string, 1)
		go func() {
			v, err := g.Ask(context.Background(), []string{"A", "B"})
			assert.NoError(t, err)
			done <- v
		}()

		waitAsking(t, g)
		assert.Equal(t, []string{"A", "B"}, g.State().PendingOptions)
		require.NoError(t, g.Resolve("B"))

		assert.Equal(t, "B", <-done)
		s := g.State()
		assert.False(t, s.IsAsking)
		require.NotNil(t, s.ResolvedOption)
		assert.Equal(t, "B", *s.ResolvedOption)
	})

	t.Run("rejects values that were not offered", func(t *testing.T) {
		g := New()
		go func() { _, _ = g.Ask(context.Background(), []string{"A"}) }()
		waitAsking(t, g)

		assert.ErrorIs(t, g.Resolve("Z"), ErrUnknownOption)
		assert.True(t, g.State().IsAsking)
		g.Cancel()
	})

	t.Run("fails when idle", func(t *testing.T) {
		g := New()
		assert.ErrorIs(t, g.Resolve("A"), ErrNotAsking)
	})
}

func TestGate_Cancel(t *testing.T) {
	t.Run("wakes the waiter with ErrCanceled", func(t *testing.T) {
		g := New()
		errc := make(chan error, 1)
		go func() {
			_, err := g.Ask(context.Background(), []string{"A", "B"})
			errc <- err
		}()

		waitAsking(t, g)
		g.Cancel()

		assert.ErrorIs(t, <-errc, ErrCanceled)
		s := g.State()
		assert.False(t, s.IsAsking)
		assert.Nil(t, s.ResolvedOption)
		assert.Empty(t, s.PendingOptions)
	})

	t.Run("twice is a no-op", func(t *testing.T) {
		g := New()
		errc := make(chan error, 1)
		go func() {
			_, err := g.Ask(context.Background(), []string{"A"})
			errc <- err
		}()
		waitAsking(t, g)

		g.Cancel()
		g.Cancel()

		assert.ErrorIs(t, <-errc, ErrCanceled)
		assert.False(t, g.State().IsAsking)
	})

	t.Run("when idle is a no-op", func(t *testing.T) {
		g := New()
		g.Cancel()
		assert.Equal(t, State{}, g.State())
	})

	t.Run("after resolve keeps the resolved value", func(t *testing.T) {
		g := New()
		done := make(chan struct{})
		go func() {
			_, _ = g.Ask(context.Background(), []string{"A"})
			close(done)
		}()
		waitAsking(t, g)
		require.NoError(t, g.Resolve("A"))
		<-done

		g.Cancel()
		require.NotNil(t, g.State().ResolvedOption)
	})
}

func TestGate_Ask(t *testing.T) {
	t.Run("rejects an empty option list", func(t *testing.T) {
		_, err := New().Ask(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoOptions)
	})

	t.Run("rejects a second wait", func(t *testing.T) {
		g := New()
		go func() { _, _ = g.Ask(context.Background(), []string{"A"}) }()
		waitAsking(t, g)

		_, err := g.Ask(context.Background(), []string{"B"})
		assert.ErrorIs(t, err, ErrPending)
		assert.Equal(t, []string{"A"}, g.State().PendingOptions)
		g.Cancel()
	})

	t.Run("context cancellation aborts the wait", func(t *testing.T) {
		g := New()
		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			_, err := g.Ask(ctx, []string{"A"})
			errc <- err
		}()
		waitAsking(t, g)
		cancel()

		assert.ErrorIs(t, <-errc, ErrCanceled)
		assert.False(t, g.State().IsAsking)
	})

	t.Run("notifies OnAsk with the options", func(t *testing.T) {
		g := New()
		seen := make(chan []string, 1)
		g.OnAsk(func(options []string) { seen <- options })

		go func() { _, _ = g.Ask(context.Background(), []string{"x", "y"}) }()

		assert.Equal(t, []string{"x", "y"}, <-seen)
		waitAsking(t, g)
		g.Cancel()
	})

	t.Run("gate is reusable after a wait completes", func(t *testing.T) {
		g := New()
		for _, want := range []string{"first", "second"} {
			done := make(chan string, 1)
			go func() {
				v, _ := g.Ask(context.Background(), []string{"first", "second"})
				done <- v
			}()
			waitAsking(t, g)
			require.NoError(t, g.Resolve(want))
			assert.Equal(t, want, <-done)
		}
	})
}

func TestGate_ResolveRacesCancel(t *testing.T) {
	for i := 0; i < 200; i++ {
		g := New()
		ctx, cancel := context.WithCancel(context.Background())

		type answer struct {
			value string
			err   error
		}
		asked := make(chan answer, 1)
		go func() {
			v, err := g.Ask(ctx, []string{"A", "B"})
			asked <- answer{v, err}
		}()
		waitAsking(t, g)

		resolved := make(chan error, 1)
		go func() { resolved <- g.Resolve("B") }()
		if i%2 == 0 {
			g.Cancel()
		} else {
			cancel()
		}

		a := <-asked
		err := <-resolved
		cancel()

		// a successful Resolve is never lost
		if err == nil {
			require.NoError(t, a.err, "iteration %d", i)
			assert.Equal(t, "B", a.value)
		} else {
			require.ErrorIs(t, err, ErrNotAsking)
			require.ErrorIs(t, a.err, ErrCanceled, "iteration %d", i)
		}
		assert.False(t, g.State().IsAsking)
	}
}
