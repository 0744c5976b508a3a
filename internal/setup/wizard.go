package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/ui"
	"golang.org/x/term"
)

// WizardStep represents the current step in the wizard
type WizardStep int

const (
	StepWelcome WizardStep = iota
	StepGeminiKey
	StepImageKey
	StepComplete
)

const totalSteps = 3 // Gemini, Images, Complete

// SetupResult contains the result of the setup wizard
type SetupResult struct {
	GeminiSource string
	ImagesReady  bool
	Cancelled    bool
}

// WizardModel is the main wizard Bubbletea model
type WizardModel struct {
	step     WizardStep
	status   *SetupStatus
	dataDir  string
	verify   KeyVerifier
	quitting bool

	// Gemini step
	geminiInput   textinput.Model
	validatingKey bool
	keyError      string

	// Image step
	imageInput textinput.Model
	imageError string

	// UI
	spinner  spinner.Model
	progress progress.Model

	// Result
	result *SetupResult
}

// Message types
type keyValidatedMsg struct {
	success bool
	err     error
}

func newKeyInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.CharLimit = 200
	in.Width = 50
	return in
}

// NewWizard creates a new wizard model
func NewWizard(dataDir string) *WizardModel {
	status, _ := DetectSetupStatus(dataDir)
	if status == nil {
		status = &SetupStatus{}
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.TitleStyle

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	m := &WizardModel{
		step:        StepWelcome,
		status:      status,
		dataDir:     dataDir,
		verify:      VerifyGeminiKey,
		geminiInput: newKeyInput("Paste your Gemini API key here..."),
		imageInput:  newKeyInput("NovelAI token (Enter to skip)"),
		spinner:     sp,
		progress:    prog,
	}

	// Skip steps that are already configured
	if status.HasGemini && status.HasNovelAI {
		m.step = StepComplete
	}

	return m
}

// Init initializes the wizard
func (m WizardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

// Update handles messages
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.result = &SetupResult{Cancelled: true}
			m.quitting = true
			return m, tea.Quit
		}

		switch m.step {
		case StepWelcome:
			if msg.Type == tea.KeyEnter {
				if m.status.HasGemini {
					m.imageInput.Focus()
					m.step = StepImageKey
				} else {
					m.geminiInput.Focus()
					m.step = StepGeminiKey
				}
			}
			return m, nil

		case StepGeminiKey:
			if msg.Type == tea.KeyEsc && !m.validatingKey {
				m.geminiInput.Blur()
				m.geminiInput.Reset()
				m.keyError = ""
				m.step = StepWelcome
				return m, nil
			}
			if msg.Type == tea.KeyEnter {
				return m.updateGeminiKey()
			}
		// Fall through to let input update happen

		case StepImageKey:
			if msg.Type == tea.KeyEsc {
				m.imageInput.Reset()
				m.imageError = ""
				m.step = StepComplete
				return m, nil
			}
			if msg.Type == tea.KeyEnter {
				return m.updateImageKey()
			}

		case StepComplete:
			if msg.Type == tea.KeyEnter {
				m.result = &SetupResult{
					GeminiSource: m.status.GeminiSource,
					ImagesReady:  m.status.HasNovelAI,
				}
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.progress.Width = min(40, msg.Width-20)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case keyValidatedMsg:
		m.validatingKey = false
		if !msg.success {
			m.keyError = formatKeyError(msg.err)
			return m, nil
		}
		m.keyError = ""
		if err := saveKey(m.dataDir, llm.ProviderGemini, m.geminiInput.Value()); err != nil {
			m.keyError = fmt.Sprintf("Failed to save: %v", err)
			return m, nil
		}
		m.status.HasGemini = true
		m.status.GeminiSource = "auth.json"
		m.status.IsComplete = true
		m.geminiInput.Blur()
		if m.status.HasNovelAI {
			m.step = StepComplete
		} else {
			m.imageInput.Focus()
			m.step = StepImageKey
		}
		return m, nil
	}

	if m.step == StepGeminiKey && !m.validatingKey {
		var cmd tea.Cmd
		m.geminiInput, cmd = m.geminiInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.step == StepImageKey {
		var cmd tea.Cmd
		m.imageInput, cmd = m.imageInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m WizardModel) updateGeminiKey() (tea.Model, tea.Cmd) {
	if m.validatingKey {
		return m, nil
	}
	key := strings.TrimSpace(m.geminiInput.Value())
	if key == "" {
		m.keyError = "API key is required"
		return m, nil
	}
	m.validatingKey = true
	m.keyError = ""
	return m, m.validateKey(key)
}

// validateKey checks the key with a test request
func (m WizardModel) validateKey(key string) tea.Cmd {
	verify := m.verify
	return func() tea.Msg {
		if err := verify(context.Background(), key); err != nil {
			return keyValidatedMsg{success: false, err: err}
		}
		return keyValidatedMsg{success: true}
	}
}

// updateImageKey stores the NovelAI token. There is no cheap way to check it
// against the API, so only its shape is validated.
func (m WizardModel) updateImageKey() (tea.Model, tea.Cmd) {
	key := strings.TrimSpace(m.imageInput.Value())
	if key != "" {
		if err := saveKey(m.dataDir, llm.ProviderNovelAI, key); err != nil {
			if errors.Is(err, auth.ErrInvalidKey) {
				m.imageError = "Use a persistent API token (starts with pst-)"
			} else {
				m.imageError = fmt.Sprintf("Failed to save: %v", err)
			}
			return m, nil
		}
		m.status.HasNovelAI = true
	}
	m.imageInput.Blur()
	m.imageError = ""
	m.step = StepComplete
	return m, nil
}

// View renders the wizard
func (m WizardModel) View() string {
	if m.quitting {
		if m.result != nil && m.result.Cancelled {
			return ui.HelpStyle.Render("\n  Setup cancelled.\n\n")
		}
		return ""
	}

	var b strings.Builder

	if m.step > StepWelcome && m.step < StepComplete {
		b.WriteString("\n")
		b.WriteString(m.renderProgress())
		b.WriteString("\n")
	}

	switch m.step {
	case StepWelcome:
		b.WriteString(m.viewWelcome())
	case StepGeminiKey:
		b.WriteString(m.viewGeminiKey())
	case StepImageKey:
		b.WriteString(m.viewImageKey())
	case StepComplete:
		b.WriteString(m.viewComplete())
	}

	return b.String()
}

func (m WizardModel) renderProgress() string {
	var currentStep int
	switch m.step {
	case StepGeminiKey:
		currentStep = 1
	case StepImageKey:
		currentStep = 2
	case StepComplete:
		currentStep = 3
	}

	percent := float64(currentStep) / float64(totalSteps)
	bar := m.progress.ViewAs(percent)

	labels := "  Gemini       Images       Ready"
	return fmt.Sprintf("  %s\n%s", bar, ui.HelpStyle.Render(labels))
}

func (m WizardModel) viewWelcome() string {
	var b strings.Builder
	b.WriteString("\n\n")

	body := ui.TitleStyle.Render("Welcome to chatd") + "\n" +
		ui.HelpStyle.Render("Chat with Gemini and the tools it can call") + "\n\n"
	if m.status.HasGemini {
		body += ui.SuccessStyle.Render(fmt.Sprintf("✓ Gemini key found (%s)", m.status.GeminiSource)) + "\n" +
			"  Image generation still needs a NovelAI token."
	} else {
		body += "You need a Gemini API key to start."
	}

	b.WriteString(ui.BoxStyle.Render(body))
	b.WriteString("\n\n")
	b.WriteString(ui.HelpStyle.Render("  Press Enter to continue..."))
	return b.String()
}

func (m WizardModel) viewGeminiKey() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(ui.TitleStyle.Render("  Enter Gemini API Key"))
	b.WriteString("\n\n")
	b.WriteString(ui.HelpStyle.Render("  Get your key at: aistudio.google.com/apikey\n\n"))

	b.WriteString("  ")
	b.WriteString(m.geminiInput.View())
	b.WriteString("\n")

	if m.validatingKey {
		b.WriteString(fmt.Sprintf("\n  %s Testing connection...\n", m.spinner.View()))
	} else if m.keyError != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", ui.ErrorStyle.Render("✗ "+m.keyError)))
	}

	b.WriteString("\n")
	b.WriteString(ui.HelpStyle.Render("  Enter to validate • Esc back"))
	return b.String()
}

func (m WizardModel) viewImageKey() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(ui.TitleStyle.Render("  Image Generation (optional)"))
	b.WriteString("\n\n")
	b.WriteString(ui.HelpStyle.Render("  The model can draw pictures with NovelAI.\n"))
	b.WriteString(ui.HelpStyle.Render("  Copy the persistent API token from novelai.net account settings.\n\n"))

	b.WriteString("  ")
	b.WriteString(m.imageInput.View())
	b.WriteString("\n")

	if m.imageError != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", ui.ErrorStyle.Render("✗ "+m.imageError)))
	}

	b.WriteString("\n")
	b.WriteString(ui.HelpStyle.Render("  Enter to save (empty skips) • Esc skip"))
	return b.String()
}

func (m WizardModel) viewComplete() string {
	var b strings.Builder
	b.WriteString("\n\n")

	images := ui.HelpStyle.Render("Not configured")
	if m.status.HasNovelAI {
		images = "NovelAI"
	}

	content := fmt.Sprintf(
		"%s\n\n"+
			"Model:  Gemini (%s)\n"+
			"Images: %s\n\n"+
			"%s\n"+
			"  %s\n"+
			"  %s\n"+
			"  %s",
		ui.TitleStyle.Render("✨ You're all set!"),
		m.status.GeminiSource,
		images,
		ui.HelpStyle.Render("Try these:"),
		"\"Let me pick a colour for the logo\"",
		"\"How many conversations are stored?\"",
		"\"Draw a lighthouse at dusk\"",
	)

	b.WriteString(ui.BoxStyle.Render(content))
	b.WriteString("\n\n")
	b.WriteString(ui.HelpStyle.Render("  Press Enter to start chatting..."))
	return b.String()
}

// RunWizard runs the setup wizard and returns the result
func RunWizard(dataDir string) (*SetupResult, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	m := NewWizard(dataDir)
	if m.step == StepComplete {
		return &SetupResult{GeminiSource: m.status.GeminiSource, ImagesReady: true}, nil
	}

	p := tea.NewProgram(*m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	return finalModel.(WizardModel).result, nil
}

// PrintEnvInstructions prints setup instructions for non-interactive environments
func PrintEnvInstructions(w io.Writer) {
	fmt.Fprintln(w, "chatd needs a Gemini API key.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Set one of these environment variables:")
	for _, id := range llm.AllProviderIDs() {
		info := auth.GetProviderAuthInfo(id)
		fmt.Fprintf(w, "  %-28s %s\n", auth.GetEnvVarHint(id), info.Label)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Or run 'chatd setup' in a terminal for guided setup.")
}

// IsInteractive returns true if running in a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
