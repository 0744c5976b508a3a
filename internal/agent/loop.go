// Package agent runs the conversation loop between users, the model and tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yolodolo42/chatd/internal/choice"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/store"
	"github.com/yolodolo42/chatd/internal/tools"
)

// DefaultMaxToolRounds bounds model round trips within one turn
const DefaultMaxToolRounds = 8

const supersedePoll = 20 * time.Millisecond

// SystemPrompt is used when neither the config nor the conversation sets one
const SystemPrompt = `You are a helpful assistant in a chat application.

## Tools
- Use the tools you are given when they help answer the user.
- When you need the user to decide between options, call choice instead of asking in text.
- Images you generate are shown to the user directly; describe what you generated in one short sentence.
- The query tool runs SQL against the application database. Prefer small, read-only queries.

## Response Style
- Be concise and direct.
- Use markdown for lists and code.`

// Store is the persistence the loop needs
type Store interface {
	Messages(ctx context.Context, conversationID string, limit int) ([]store.Message, error)
	InsertMessage(ctx context.Context, m *store.Message) error
	TouchConversation(ctx context.Context, id string) error
}

// Config holds the loop options shared by all sessions
type Config struct {
	SystemPrompt  string
	ToolMode      llm.ToolMode
	MaxToolRounds int
	HistoryLimit  int
	DataDir       string
}

// ChatEvent represents a single event in the chat flow (tool call, result, or content)
type ChatEvent struct {
	Type    string `json:"type"`              // "tool_call", "tool_result", "content", "image"
	Tool    string `json:"tool,omitempty"`    // Tool name for tool_call/tool_result
	Args    string `json:"args,omitempty"`    // Tool arguments (redacted) for tool_call
	Content string `json:"content,omitempty"` // Text, or base64 data for image
	Mime    string `json:"mime,omitempty"`    // Mime type for image
	IsError bool   `json:"isError,omitempty"` // True if tool result was an error
}

// TurnResult is everything one user message produced
type TurnResult struct {
	Messages []store.Message
	Events   []ChatEvent
	// Aborted is set when a pending choice was canceled and the turn stopped
	Aborted bool
}

// Agent owns the provider, tool registry and the per-conversation sessions
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	store    Store
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// New creates an agent
func New(provider llm.Provider, registry *tools.Registry, st Store, cfg Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = SystemPrompt
	}
	if cfg.ToolMode == "" {
		cfg.ToolMode = llm.ToolModeAuto
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = store.DefaultMessageLimit
	}
	return &Agent{
		provider: provider,
		registry: registry,
		store:    st,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Registry returns the tool registry
func (a *Agent) Registry() *tools.Registry {
	return a.registry
}

// GetProvider returns the current provider
func (a *Agent) GetProvider() llm.Provider {
	return a.provider
}

// Session returns the session of a conversation, creating it on first use
func (a *Agent) Session(conversationID string) (*Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("agent closed")
	}
	if s, ok := a.sessions[conversationID]; ok {
		return s, nil
	}

	s := &Session{
		agent:          a,
		conversationID: conversationID,
		gate:           choice.New(),
	}
	if a.cfg.DataDir != "" {
		l, err := newSessionLogger(a.cfg.DataDir, conversationID)
		if err != nil {
			a.logger.Warn("session log disabled", "conversation", conversationID, "error", err)
		} else {
			s.log = l
		}
	}
	a.sessions[conversationID] = s
	return s, nil
}

// CancelPending cancels the pending choice of every session
func (a *Agent) CancelPending() {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	for _, s := range sessions {
		s.gate.Cancel()
	}
}

// Close cancels pending choices and closes session logs
func (a *Agent) Close() {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = map[string]*Session{}
	a.closed = true
	a.mu.Unlock()

	for _, s := range sessions {
		s.gate.Cancel()
		s.log.Close()
	}
	if gemini, ok := a.provider.(*llm.GeminiProvider); ok {
		_ = gemini.Close()
	}
}

// Session is one conversation. Turns are serialised; the choice gate is owned
// by the session.
type Session struct {
	agent          *Agent
	conversationID string
	gate           *choice.Gate
	log            *sessionLogger

	// mu protects the transcript from concurrent turns
	mu sync.Mutex
}

// ConversationID returns the conversation the session belongs to
func (s *Session) ConversationID() string {
	return s.conversationID
}

// Gate returns the session's choice gate
func (s *Session) Gate() *choice.Gate {
	return s.gate
}

// Turn handles one user message: persists it, runs the model and its tool
// calls until the model stops calling tools, and persists every produced turn.
// A pending choice from an earlier turn is canceled first.
func (s *Session) Turn(ctx context.Context, settings Settings, userText string, alerter tools.Alerter) (*TurnResult, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	a := s.agent
	result := &TurnResult{}

	msgs, err := a.store.Messages(ctx, s.conversationID, a.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history, err := ToContents(msgs)
	if err != nil {
		return nil, err
	}

	userContent := llm.Content{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(userText)}}
	if err := s.persist(ctx, result, userContent); err != nil {
		return nil, err
	}
	history = append(history, userContent)
	s.log.logRecord(sessionRecord{TS: nowTS(), Type: "user", Content: userText})

	dispatcher := tools.NewDispatcher(a.registry, tools.Env{Alerter: alerter, Chooser: s.gate})

	systemPrompt := a.cfg.SystemPrompt
	if settings.SystemInstruction != "" {
		systemPrompt = settings.SystemInstruction
	}

	for round := 0; ; round++ {
		if round >= a.cfg.MaxToolRounds {
			a.logger.Warn("tool round limit reached", "conversation", s.conversationID, "rounds", round)
			break
		}

		req := &llm.ChatRequest{
			SystemPrompt: systemPrompt,
			Contents:     pruneForModel(history),
			Tools:        a.registry.ToolSet(),
			ToolMode:     a.cfg.ToolMode,
			Model:        settings.Model,
			Temperature:  settings.Temperature,
		}
		response, err := a.provider.Chat(ctx, req)
		if err != nil {
			return result, fmt.Errorf("failed to get response: %w", err)
		}

		modelContent := response.Content
		modelContent.Role = llm.RoleModel
		if len(modelContent.Parts) > 0 {
			if err := s.persist(ctx, result, modelContent); err != nil {
				return result, err
			}
			history = append(history, modelContent)
		}
		if text := modelContent.Text(); text != "" {
			result.Events = append(result.Events, ChatEvent{Type: "content", Content: text})
			s.log.logRecord(sessionRecord{TS: nowTS(), Type: "model", Model: req.Model, Content: text})
		}

		calls := response.ToolCalls()
		if len(calls) == 0 {
			break
		}

		responses, suppressed, aborted, err := s.executeToolCalls(ctx, dispatcher, calls, result)
		if err != nil {
			return result, err
		}
		if len(responses) > 0 {
			c := llm.Content{Role: llm.RoleUser, Parts: responses}
			if err := s.persist(ctx, result, c); err != nil {
				return result, err
			}
			history = append(history, c)
		}
		// Shown to the user and stored, never part of the next request
		for _, c := range suppressed {
			if err := s.persist(ctx, result, c); err != nil {
				return result, err
			}
		}
		if aborted {
			result.Aborted = true
			break
		}
		if len(responses) == 0 {
			// Only fire-and-forget results; nothing to send back
			break
		}
	}

	if err := a.store.TouchConversation(ctx, s.conversationID); err != nil {
		a.logger.Warn("touch conversation", "conversation", s.conversationID, "error", err)
	}
	return result, nil
}

// lock acquires the turn lock, canceling any choice the running turn asks for
// while this one waits
func (s *Session) lock(ctx context.Context) error {
	for !s.mu.TryLock() {
		s.gate.Cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(supersedePoll):
		}
	}
	// a choice left over from an aborted request
	s.gate.Cancel()
	return nil
}

// executeToolCalls runs calls sequentially. Delivered parts are returned for the
// next model request, suppressed turns are returned for persistence only.
func (s *Session) executeToolCalls(ctx context.Context, d *tools.Dispatcher, calls []llm.ToolCall, result *TurnResult) ([]llm.Part, []llm.Content, bool, error) {
	var responses []llm.Part
	var suppressed []llm.Content
	for _, tc := range calls {
		args := Scrub(string(tc.Input))
		result.Events = append(result.Events, ChatEvent{Type: "tool_call", Tool: tc.Name, Args: args})
		s.log.logRecord(sessionRecord{TS: nowTS(), Type: "tool_call", ToolName: tc.Name, Args: args})

		res, err := d.Dispatch(ctx, tc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, false, ctx.Err()
			}
			errContent := fmt.Sprintf("Error: %v", err)
			if errors.Is(err, tools.ErrUnknownTool) {
				s.agent.logger.Warn("model called unknown tool", "conversation", s.conversationID, "tool", tc.Name)
			}
			result.Events = append(result.Events, ChatEvent{Type: "tool_result", Tool: tc.Name, Content: errContent, IsError: true})
			s.log.logRecord(sessionRecord{TS: nowTS(), Type: "tool_result", ToolName: tc.Name, Text: errContent, IsError: true})
			responses = append(responses, llm.FunctionResponsePart(tc.Name, map[string]any{"error": err.Error()}))
			continue
		}

		s.log.logRecord(sessionRecord{TS: nowTS(), Type: "tool_result", ToolName: tc.Name, Result: res.Kind().String()})
		switch res.Kind() {
		case tools.KindAborted:
			result.Events = append(result.Events, ChatEvent{Type: "tool_result", Tool: tc.Name, Content: "canceled"})
			return responses, suppressed, true, nil
		case tools.KindSuppressed:
			content, _ := res.Content()
			suppressed = append(suppressed, content)
			part := content.Parts[0]
			if part.InlineData != nil {
				result.Events = append(result.Events, ChatEvent{Type: "image", Tool: tc.Name, Content: part.InlineData.Data, Mime: part.InlineData.MimeType})
			} else {
				result.Events = append(result.Events, ChatEvent{Type: "tool_result", Tool: tc.Name, Content: part.Text, IsError: true})
			}
		case tools.KindDelivered:
			part, _ := res.Part()
			result.Events = append(result.Events, ChatEvent{Type: "tool_result", Tool: tc.Name, Content: summarize(part)})
			responses = append(responses, part)
		}
	}
	return responses, suppressed, false, nil
}

func (s *Session) persist(ctx context.Context, result *TurnResult, c llm.Content) error {
	raw, err := llm.MarshalParts(c.Parts)
	if err != nil {
		return fmt.Errorf("encode parts: %w", err)
	}
	m := store.Message{
		ConversationID: s.conversationID,
		Parts:          raw,
		Role:           string(c.Role),
	}
	if err := s.agent.store.InsertMessage(ctx, &m); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	result.Messages = append(result.Messages, m)
	return nil
}

func summarize(p llm.Part) string {
	if p.FunctionResponse == nil {
		return p.Text
	}
	out := p.FunctionResponse.Response["output"]
	if s, ok := out.(string); ok {
		return s
	}
	return Scrub(mustJSON(out))
}
