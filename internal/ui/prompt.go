package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const maxHistory = 100

// Prompt is the chat input line. Up and Down walk through previously
// submitted lines.
type Prompt struct {
	input   textinput.Model
	focused bool

	history []string
	// cursor indexes history while browsing; len(history) means the draft
	cursor int
	draft  string
}

// NewPrompt creates a focused prompt
func NewPrompt() Prompt {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = "Send a message or /help"
	ti.CharLimit = 8000
	ti.Width = 76
	ti.Focus()

	return Prompt{input: ti, focused: true}
}

// Focus sets focus on the prompt
func (p *Prompt) Focus() tea.Cmd {
	p.focused = true
	return p.input.Focus()
}

// Blur removes focus, e.g. while a choice is pending
func (p *Prompt) Blur() {
	p.focused = false
	p.input.Blur()
}

func (p *Prompt) Focused() bool {
	return p.focused
}

// SetWidth fits the input to the terminal, leaving room for the symbol
func (p *Prompt) SetWidth(w int) {
	p.input.Width = max(w-4, 10)
}

func (p *Prompt) Value() string {
	return p.input.Value()
}

func (p *Prompt) SetValue(s string) {
	p.input.SetValue(s)
	p.input.CursorEnd()
}

// Reset clears the input. A non-empty value is appended to the history
// unless it repeats the previous entry.
func (p *Prompt) Reset() {
	if v := p.input.Value(); v != "" {
		if n := len(p.history); n == 0 || p.history[n-1] != v {
			p.history = append(p.history, v)
			if len(p.history) > maxHistory {
				p.history = p.history[len(p.history)-maxHistory:]
			}
		}
	}
	p.cursor = len(p.history)
	p.draft = ""
	p.input.Reset()
}

// History returns submitted lines, oldest first
func (p *Prompt) History() []string {
	return append([]string(nil), p.history...)
}

// Update handles input events
func (p *Prompt) Update(msg tea.Msg) (*Prompt, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && p.focused {
		switch key.Type {
		case tea.KeyUp:
			p.recall(-1)
			return p, nil
		case tea.KeyDown:
			p.recall(1)
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *Prompt) recall(delta int) {
	next := p.cursor + delta
	if next < 0 || next > len(p.history) {
		return
	}
	if p.cursor == len(p.history) {
		p.draft = p.input.Value()
	}
	p.cursor = next
	if next == len(p.history) {
		p.SetValue(p.draft)
		return
	}
	p.SetValue(p.history[next])
}

// View renders the prompt
func (p *Prompt) View() string {
	style := SelectorDim
	if p.focused {
		style = PromptStyle
	}
	return style.Render(SymbolPrompt) + " " + p.input.View()
}
