// Package choice implements the human-in-the-loop wait used by the choice tool.
package choice

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var (
	// ErrCanceled is returned by Ask when the wait was canceled
	ErrCanceled = errors.New("choice canceled")
	// ErrPending is returned by Ask when another wait is outstanding
	ErrPending = errors.New("a choice is already pending")
	// ErrNoOptions is returned by Ask for an empty option list
	ErrNoOptions = errors.New("no options to choose from")
	// ErrNotAsking is returned by Resolve when nothing is pending
	ErrNotAsking = errors.New("no choice is pending")
	// ErrUnknownOption is returned by Resolve for a value that was not offered
	ErrUnknownOption = errors.New("value is not one of the pending options")
)

// State is a snapshot of the gate
type State struct {
	IsAsking       bool     `json:"isAsking"`
	PendingOptions []string `json:"pendingOptions"`
	ResolvedOption *string  `json:"resolvedOption"`
}

type outcome struct {
	value    string
	canceled bool
}

// Gate holds at most one outstanding wait for a human selection.
// The zero value is not usable, use New.
type Gate struct {
	mu       sync.Mutex
	options  []string
	resolved *string
	wake     chan outcome

	onAsk func([]string)
}

// New returns an idle gate
func New() *Gate {
	return &Gate{}
}

// OnAsk registers fn to be called with the options whenever a wait starts.
// fn runs on the asking goroutine and must not block.
func (g *Gate) OnAsk(fn func(options []string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onAsk = fn
}

// Ask blocks until Resolve, Cancel or ctx is done and returns the selected value
func (g *Gate) Ask(ctx context.Context, options []string) (string, error) {
	if len(options) == 0 {
		return "", ErrNoOptions
	}

	g.mu.Lock()
	if g.wake != nil {
		g.mu.Unlock()
		return "", ErrPending
	}
	wake := make(chan outcome, 1)
	g.wake = wake
	g.options = slices.Clone(options)
	g.resolved = nil
	onAsk := g.onAsk
	g.mu.Unlock()

	if onAsk != nil {
		onAsk(slices.Clone(options))
	}

	select {
	case o := <-wake:
		if o.canceled {
			return "", ErrCanceled
		}
		return o.value, nil
	case <-ctx.Done():
		if g.finish(wake, outcome{canceled: true}) {
			<-wake
			return "", ErrCanceled
		}
		// Resolve or Cancel completed the wait after ctx fired
		if o := <-wake; !o.canceled {
			return o.value, nil
		}
		return "", ErrCanceled
	}
}

// Resolve completes the pending wait with value. A nil error means the waiter
// received value.
func (g *Gate) Resolve(value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.wake == nil {
		return ErrNotAsking
	}
	if !slices.Contains(g.options, value) {
		return ErrUnknownOption
	}
	g.completeLocked(outcome{value: value})
	return nil
}

// Cancel aborts the pending wait. It is a no-op when nothing is pending.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.wake != nil {
		g.completeLocked(outcome{canceled: true})
	}
}

// finish delivers o to the waiter on wake and reports whether it did. It does
// nothing when that wait was already completed.
func (g *Gate) finish(wake chan outcome, o outcome) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.wake != wake {
		return false
	}
	g.completeLocked(o)
	return true
}

// completeLocked ends the current wait with o. g.mu must be held.
func (g *Gate) completeLocked(o outcome) {
	wake := g.wake
	g.wake = nil
	g.options = nil
	if o.canceled {
		g.resolved = nil
	} else {
		v := o.value
		g.resolved = &v
	}
	wake <- o
}

// State returns a snapshot of the gate
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := State{
		IsAsking:       g.wake != nil,
		PendingOptions: slices.Clone(g.options),
	}
	if g.resolved != nil {
		v := *g.resolved
		s.ResolvedOption = &v
	}
	return s
}
