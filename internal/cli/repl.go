package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"github.com/yolodolo42/chatd/internal/agent"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/logging"
	"github.com/yolodolo42/chatd/internal/store"
	"github.com/yolodolo42/chatd/internal/tools"
	"github.com/yolodolo42/chatd/internal/ui"
)

const defaultLocalUser = "local"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model in the terminal",
	Long: `Start an interactive session backed by the same store and tools as the API.

Choices the model asks for are shown as a selector. Generated images are
saved under <data_dir>/images.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("conversation", "", "conversation ID to continue")
	chatCmd.Flags().String("user", defaultLocalUser, "user that owns the terminal conversations")
}

// chatMessage represents a line in the transcript view
type chatMessage struct {
	role    string // "user", "assistant", "tool", "result", "alert", "error", "system"
	content string
	isError bool
}

// turnMsg is sent when a turn finishes
type turnMsg struct {
	result *agent.TurnResult
	err    error
}

// alertMsg and askMsg arrive while a turn is running
type alertMsg struct{ message string }

type askMsg struct{ options []string }

type sqlMsg struct {
	result *store.QueryResult
	err    error
}

// replModel represents the REPL state
type replModel struct {
	ctx         context.Context
	session     *agent.Session
	store       *store.Store
	conv        *store.Conversation
	models      []llm.Model
	model       string
	toolNames   []string
	imageDir    string
	allowWrites bool
	events      chan tea.Msg

	prompt   ui.Prompt
	viewport viewport.Model
	spinner  spinner.Model
	selector *ui.Selector

	messages []chatMessage
	images   int
	loading  bool
	width    int
	height   int
	ready    bool
	quitting bool
}

func newReplModel(ctx context.Context, ag *agent.Agent, sess *agent.Session, st *store.Store, conv *store.Conversation, dataDir string, allowWrites bool) replModel {
	p := ui.NewPrompt()
	p.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.TitleStyle

	m := replModel{
		ctx:         ctx,
		session:     sess,
		store:       st,
		conv:        conv,
		models:      ag.GetProvider().Models(),
		model:       ag.GetProvider().DefaultModel(),
		toolNames:   ag.Registry().ToolSet().Names(),
		imageDir:    filepath.Join(dataDir, "images"),
		allowWrites: allowWrites,
		events:      make(chan tea.Msg, 16),
		prompt:      p,
		spinner:     sp,
		messages: []chatMessage{{
			role:    "system",
			content: fmt.Sprintf("Conversation %s. Type /help for commands, /quit to exit.", conv.ID),
		}},
	}

	events := m.events
	sess.Gate().OnAsk(func(options []string) {
		go func() { events <- askMsg{options: options} }()
	})
	return m
}

func (m replModel) alerter() tools.Alerter {
	events := m.events
	return tools.AlertFunc(func(message string) {
		go func() { events <- alertMsg{message: message} }()
	})
}

func (m replModel) listen() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		return <-events
	}
}

// Init initializes the model
func (m replModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

// Update handles messages and updates state
func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.quitting = true
			m.session.Gate().Cancel()
			return m, tea.Quit
		}
		if m.selector != nil {
			return m.updateSelector(msg)
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-6)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 6
		}
		m.prompt.SetWidth(msg.Width)
		m.updateViewport()

	case turnMsg:
		m.loading = false
		m.selector = nil
		m.prompt.Focus()
		m.applyTurn(msg)
		m.updateViewport()
		return m, nil

	case sqlMsg:
		m.loading = false
		if msg.err != nil {
			m.add("error", msg.err.Error())
		} else {
			m.add("system", renderQueryResult(m.width-4, msg.result))
		}
		m.updateViewport()
		return m, nil

	case alertMsg:
		m.add("alert", msg.message)
		m.updateViewport()
		return m, m.listen()

	case askMsg:
		sel := ui.NewChoiceSelector("Pick an option", msg.options)
		sel.SetWidth(m.width)
		m.selector = &sel
		m.prompt.Blur()
		return m, m.listen()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	if m.selector == nil {
		_, cmd := m.prompt.Update(msg)
		cmds = append(cmds, cmd)
	}
	// up and down belong to the prompt history
	if key, ok := msg.(tea.KeyMsg); !ok || (key.Type != tea.KeyUp && key.Type != tea.KeyDown) {
		var vpCmd tea.Cmd
		m.viewport, vpCmd = m.viewport.Update(msg)
		cmds = append(cmds, vpCmd)
	}
	return m, tea.Batch(cmds...)
}

func (m replModel) updateSelector(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.selector.Update(msg)
	if m.selector.Active() {
		return m, nil
	}

	gate := m.session.Gate()
	if m.selector.Cancelled() {
		gate.Cancel()
		m.add("system", "Choice canceled.")
	} else {
		value := m.selector.Selected()
		if err := gate.Resolve(value); err != nil {
			m.add("error", err.Error())
		} else {
			m.add("user", "» "+value)
		}
	}
	m.selector = nil
	m.prompt.Focus()
	m.updateViewport()
	return m, nil
}

func (m replModel) submit() (tea.Model, tea.Cmd) {
	if m.loading {
		return m, nil
	}
	input := strings.TrimSpace(m.prompt.Value())
	if input == "" {
		return m, nil
	}
	m.prompt.Reset()

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.add("user", input)
	m.loading = true
	m.updateViewport()
	return m, m.sendToAgent(input)
}

func (m *replModel) add(role, content string) {
	m.messages = append(m.messages, chatMessage{role: role, content: content})
}

func (m *replModel) applyTurn(msg turnMsg) {
	if msg.result != nil {
		for _, ev := range msg.result.Events {
			switch ev.Type {
			case "content":
				m.add("assistant", ev.Content)
			case "tool_call":
				m.add("tool", fmt.Sprintf("%s(%s)", ev.Tool, ev.Args))
			case "tool_result":
				m.messages = append(m.messages, chatMessage{role: "result", content: truncate(ev.Content, 400), isError: ev.IsError})
			case "image":
				path, err := m.saveImage(ev.Mime, ev.Content)
				if err != nil {
					m.add("error", fmt.Sprintf("could not save image: %v", err))
				} else {
					m.add("system", "Image saved to "+path)
				}
			}
		}
		if msg.result.Aborted {
			m.add("system", "The pending choice was canceled; the model was not asked to continue.")
		}
	}
	if msg.err != nil {
		m.add("error", msg.err.Error())
	}
}

// saveImage writes base64 image data under the image directory
func (m *replModel) saveImage(mime, data string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	ext := ".png"
	if t := mimetype.Lookup(mime); t != nil && t.Extension() != "" {
		ext = t.Extension()
	}
	if err := os.MkdirAll(m.imageDir, 0700); err != nil {
		return "", err
	}
	m.images++
	name := fmt.Sprintf("%s-%s-%d%s", m.conv.ID, time.Now().Format("20060102-150405"), m.images, ext)
	path := filepath.Join(m.imageDir, name)
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// View renders the UI
func (m replModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "Initializing...\n"
	}

	var b strings.Builder
	b.WriteString(ui.TitleStyle.Render("  chatd") + " " + ui.HelpStyle.Render(m.conv.Title) + "\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.selector != nil:
		b.WriteString(m.selector.View())
	case m.loading:
		b.WriteString(fmt.Sprintf("  %s Thinking...\n", m.spinner.View()))
	default:
		b.WriteString(m.prompt.View())
		b.WriteString("\n")
	}

	b.WriteString(ui.HelpStyle.Render("  /help • /model • /tools • /sql • /quit • Ctrl+C to exit"))
	return b.String()
}

// updateViewport updates the viewport content with messages
func (m *replModel) updateViewport() {
	var content strings.Builder

	for _, msg := range m.messages {
		switch msg.role {
		case "user":
			content.WriteString(ui.UserStyle.Render(ui.SymbolPrompt + " "))
			content.WriteString(msg.content)
		case "assistant":
			content.WriteString(ui.AssistantStyle.Render(ui.SymbolBullet + " "))
			content.WriteString(msg.content)
		case "tool":
			content.WriteString(ui.ToolCallStyle.Render(ui.SymbolBullet + " " + msg.content))
		case "result":
			symbol := ui.SymbolCheck
			style := ui.ToolResultStyle
			if msg.isError {
				symbol = ui.SymbolCross
				style = ui.ErrorStyle
			}
			content.WriteString(style.Render("  " + ui.SymbolTree + " " + symbol + " " + msg.content))
		case "alert":
			content.WriteString(ui.AlertStyle.Render("! " + msg.content))
		case "error":
			content.WriteString(ui.ErrorStyle.Render("Error: "))
			content.WriteString(msg.content)
		case "system":
			content.WriteString(ui.SystemStyle.Render(msg.content))
		}
		content.WriteString("\n\n")
	}

	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// handleCommand handles slash commands
func (m replModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		m.quitting = true
		return m, tea.Quit

	case "/clear":
		m.messages = nil
		m.add("system", "Screen cleared. The conversation is kept.")

	case "/model":
		m.handleModelCommand(arg)

	case "/tools":
		if len(m.toolNames) == 0 {
			m.add("system", "No tools are enabled.")
			break
		}
		m.add("system", "Tools: "+strings.Join(m.toolNames, ", "))

	case "/sql":
		if arg == "" {
			m.add("error", "Usage: /sql <query>")
			break
		}
		if !m.allowWrites {
			if err := tools.CheckReadOnly(arg); err != nil {
				m.add("error", err.Error())
				break
			}
		}
		m.loading = true
		m.updateViewport()
		return m, m.runSQL(arg)

	case "/id":
		m.add("system", "Conversation "+m.conv.ID)

	case "/help", "/?":
		m.add("system", `Available commands:
  /help, /?       - Show this help
  /model          - List available models
  /model <id>     - Use a different model for this conversation
  /tools          - List the tools the model can call
  /sql <query>    - Run a read-only query against the store
  /id             - Show the conversation ID
  /clear          - Clear the screen
  /quit, /exit    - Exit`)

	default:
		m.add("error", fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd))
	}

	m.updateViewport()
	return m, nil
}

// handleModelCommand lists models or stores a new one in the conversation settings
func (m *replModel) handleModelCommand(modelID string) {
	settings := agent.ParseSettings(m.conv.Settings)
	if modelID == "" {
		current := settings.Model
		if current == "" {
			current = m.model
		}
		var b strings.Builder
		b.WriteString("Models:\n")
		for _, md := range m.models {
			marker := "  "
			if md.ID == current {
				marker = ui.SymbolArrow + " "
			}
			b.WriteString(fmt.Sprintf("  %s%-24s %s\n", marker, md.ID, md.Name))
		}
		b.WriteString("\nUsage: /model <id>")
		m.add("system", b.String())
		return
	}

	if err := llm.ValidateModelID(modelID, m.models); err != nil {
		m.add("error", err.Error())
		return
	}
	settings.Model = modelID
	raw, err := json.Marshal(settings)
	if err != nil {
		m.add("error", err.Error())
		return
	}
	conv := *m.conv
	conv.Settings = raw
	if err := m.store.UpsertConversation(m.ctx, &conv); err != nil {
		m.add("error", fmt.Sprintf("Failed to switch model: %v", err))
		return
	}
	m.conv = &conv
	m.add("system", "Switched to "+modelID)
}

// sendToAgent runs one turn and reports back with a turnMsg
func (m replModel) sendToAgent(input string) tea.Cmd {
	ctx := m.ctx
	sess := m.session
	settings := agent.ParseSettings(m.conv.Settings)
	alerter := m.alerter()
	return func() tea.Msg {
		result, err := sess.Turn(ctx, settings, input, alerter)
		return turnMsg{result: result, err: err}
	}
}

func (m replModel) runSQL(q string) tea.Cmd {
	ctx := m.ctx
	run := m.store.QueryReadOnly
	if m.allowWrites {
		run = m.store.Query
	}
	return func() tea.Msg {
		res, err := run(ctx, q)
		return sqlMsg{result: res, err: err}
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	// keep log lines from tearing the alt screen
	logPath := filepath.Join(cfg.DataDir, "chatd.log")
	if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600); err == nil {
		defer f.Close()
		logger = logging.Setup(cfg.Log.Level, cfg.Log.Format, f)
	}

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	userName, _ := cmd.Flags().GetString("user")
	convID, _ := cmd.Flags().GetString("conversation")

	user, err := ensureUser(ctx, a.store, userName)
	if err != nil {
		return err
	}
	conv, err := openConversation(ctx, a.store, user, convID, "Terminal "+time.Now().Format("2006-01-02 15:04"))
	if err != nil {
		return err
	}
	sess, err := a.agent.Session(conv.ID)
	if err != nil {
		return err
	}

	m := newReplModel(ctx, a.agent, sess, a.store, conv, cfg.DataDir, cfg.Tools.Query.AllowWrites)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	sess.Gate().Cancel()

	fmt.Fprintf(cmd.OutOrStdout(), "Continue with: chatd chat --conversation %s\n", conv.ID)
	return err
}
