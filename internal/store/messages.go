package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Message is one stored turn. Parts is the JSON array of transcript parts.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Parts          json.RawMessage `json:"parts"`
	Role           string          `json:"role"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Messages returns the newest limit messages of a conversation, oldest first
func (s *Store) Messages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, conversation_id, parts, role, created_at FROM (
	SELECT id, conversation_id, parts, role, created_at FROM messages
	WHERE conversation_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?
) recent
ORDER BY created_at ASC, id ASC`),
		conversationID, limitOr(limit, DefaultMessageLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		var parts []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &parts, &m.Role, timestamp{&m.CreatedAt}); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Parts = normalizeJSON(parts, "[]")
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMessage stores m. A missing ID is generated; m is updated with the
// stored ID and timestamp.
func (s *Store) InsertMessage(ctx context.Context, m *Message) error {
	if m.ConversationID == "" {
		return fmt.Errorf("message conversation is required")
	}
	if m.Role == "" {
		return fmt.Errorf("message role is required")
	}
	if m.ID == "" {
		m.ID = generateID()
	}
	if len(m.Parts) > 0 && !json.Valid(m.Parts) {
		return fmt.Errorf("message parts are not valid JSON")
	}
	m.Parts = normalizeJSON(m.Parts, "[]")
	m.CreatedAt = s.stamp()

	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO messages (id, conversation_id, parts, role, created_at) VALUES (?, ?, ?, ?, ?)`),
		m.ID, m.ConversationID, string(m.Parts), m.Role, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// DeleteMessage removes a message by ID
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM messages WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// MessageConversation returns the conversation a message belongs to
func (s *Store) MessageConversation(ctx context.Context, id string) (string, error) {
	var conversationID string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT conversation_id FROM messages WHERE id = ?`), id).Scan(&conversationID)
	if err != nil {
		return "", notFound(err, "message "+id)
	}
	return conversationID, nil
}
