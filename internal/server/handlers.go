package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/llm"
	"github.com/yolodolo42/chatd/internal/store"
	"github.com/yolodolo42/chatd/internal/tools"
)

// ownedConversation loads a conversation of the authenticated user. Conversations
// of other users are reported as missing.
func (s *Server) ownedConversation(w http.ResponseWriter, r *http.Request, id string) (*store.Conversation, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return nil, false
	}
	c, err := s.store.Conversation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && c.UserID != user.ID) {
		writeJSONError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("load conversation", "conversation", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	return c, true
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	limit, err := queryLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	convs, err := s.store.Conversations(r.Context(), user.ID, limit)
	if err != nil {
		s.logger.Error("list conversations", "user", user.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

type upsertConversationRequest struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Settings json.RawMessage `json:"settings"`
}

func (s *Server) handleUpsertConversation(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	var req upsertConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Settings) > 0 && !json.Valid(req.Settings) {
		writeJSONError(w, http.StatusBadRequest, "settings must be JSON")
		return
	}

	c := &store.Conversation{
		ID:       strings.TrimSpace(req.ID),
		Title:    req.Title,
		UserID:   user.ID,
		Settings: req.Settings,
	}
	if err := s.store.UpsertConversation(r.Context(), c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		s.logger.Error("upsert conversation", "conversation", c.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save conversation")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversationID")
	if id == "" {
		id = r.URL.Query().Get("conversation_id")
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := s.ownedConversation(w, r, id); !ok {
		return
	}
	msgs, err := s.store.Messages(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("list messages", "conversation", id, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type createMessageRequest struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Parts          json.RawMessage `json:"parts"`
	Role           string          `json:"role"`
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if id := r.PathValue("conversationID"); id != "" {
		req.ConversationID = id
	}
	switch llm.Role(req.Role) {
	case llm.RoleUser, llm.RoleModel:
	default:
		writeJSONError(w, http.StatusBadRequest, "role must be user or model")
		return
	}
	if _, err := llm.UnmarshalParts(req.Parts); err != nil || len(req.Parts) == 0 {
		writeJSONError(w, http.StatusBadRequest, "parts must be a JSON array of parts")
		return
	}
	if _, ok := s.ownedConversation(w, r, req.ConversationID); !ok {
		return
	}

	m := &store.Message{
		ID:             strings.TrimSpace(req.ID),
		ConversationID: req.ConversationID,
		Parts:          req.Parts,
		Role:           req.Role,
	}
	if err := s.store.InsertMessage(r.Context(), m); err != nil {
		s.logger.Error("insert message", "conversation", m.ConversationID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save message")
		return
	}
	if err := s.store.TouchConversation(r.Context(), m.ConversationID); err != nil {
		s.logger.Warn("touch conversation", "conversation", m.ConversationID, "error", err)
	}
	writeJSON(w, http.StatusCreated, m)
}

type deleteMessageRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	var req deleteMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		writeJSONError(w, http.StatusBadRequest, "id is required")
		return
	}

	convID, err := s.store.MessageConversation(r.Context(), req.ID)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		s.logger.Error("load message", "message", req.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	if _, ok := s.ownedConversation(w, r, convID); !ok {
		return
	}

	if err := s.store.DeleteMessage(r.Context(), req.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "message not found")
			return
		}
		s.logger.Error("delete message", "message", req.ID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if strings.TrimSpace(q) == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	run := s.store.Query
	if !s.allowWrites {
		if err := tools.CheckReadOnly(q); err != nil {
			writeJSONError(w, http.StatusForbidden, err.Error())
			return
		}
		run = s.store.QueryReadOnly
	}

	res, err := run(r.Context(), q)
	if err != nil {
		s.logger.Warn("raw query failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeJSON(w, http.StatusOK, llm.ToolSet{FunctionDeclarations: []llm.Tool{}})
		return
	}
	writeJSON(w, http.StatusOK, s.agent.Registry().ToolSet())
}
