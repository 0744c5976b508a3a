package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/yolodolo42/chatd/internal/agent"
	"github.com/yolodolo42/chatd/internal/choice"
	"github.com/yolodolo42/chatd/internal/store"
	"github.com/yolodolo42/chatd/internal/tools"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Messages []store.Message   `json:"messages"`
	Alerts   []string          `json:"alerts"`
	Events   []agent.ChatEvent `json:"events"`
	Aborted  bool              `json:"aborted"`
}

// collectAlerts gathers alert tool messages for the response body
type collectAlerts struct {
	mu     sync.Mutex
	alerts []string
}

func (c *collectAlerts) Alert(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, message)
}

func (c *collectAlerts) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.alerts...)
}

var _ tools.Alerter = (*collectAlerts)(nil)

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*store.Conversation, *agent.Session, bool) {
	if s.agent == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "chat is not configured")
		return nil, nil, false
	}
	c, ok := s.ownedConversation(w, r, r.PathValue("conversationID"))
	if !ok {
		return nil, nil, false
	}
	sess, err := s.agent.Session(c.ID)
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return nil, nil, false
	}
	return c, sess, true
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	c, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	alerts := &collectAlerts{}
	result, err := sess.Turn(r.Context(), agent.ParseSettings(c.Settings), req.Message, alerts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info("chat request canceled", "conversation", c.ID)
			return
		}
		s.logger.Error("chat turn failed", "conversation", c.ID, "error", err)
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := chatResponse{
		Messages: result.Messages,
		Alerts:   alerts.list(),
		Events:   result.Events,
		Aborted:  result.Aborted,
	}
	if resp.Messages == nil {
		resp.Messages = []store.Message{}
	}
	if resp.Events == nil {
		resp.Events = []agent.ChatEvent{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChoiceState(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Gate().State())
}

type resolveChoiceRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleChoiceResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveChoiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	switch err := sess.Gate().Resolve(req.Choice); {
	case errors.Is(err, choice.ErrNotAsking):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, choice.ErrUnknownOption):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"choice": req.Choice})
	}
}

func (s *Server) handleChoiceCancel(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Gate().Cancel()
	w.WriteHeader(http.StatusNoContent)
}
