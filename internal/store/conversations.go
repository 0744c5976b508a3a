package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Conversation is a titled thread owned by one user
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	UserID    string          `json:"user_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Settings  json.RawMessage `json:"settings"`
}

const conversationColumns = `id, title, user_id, created_at, updated_at, settings`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var settings []byte
	if err := row.Scan(&c.ID, &c.Title, &c.UserID, timestamp{&c.CreatedAt}, timestamp{&c.UpdatedAt}, &settings); err != nil {
		return nil, err
	}
	c.Settings = normalizeJSON(settings, "{}")
	return &c, nil
}

// Conversations lists a user's conversations, most recently updated first
func (s *Store) Conversations(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`),
		userID, limitOr(limit, DefaultConversationLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Conversation returns one conversation by ID
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`), id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// UpsertConversation inserts c or updates its title and settings. An existing
// conversation owned by another user is reported as ErrNotFound. A missing ID
// is generated. c is updated with the stored timestamps.
func (s *Store) UpsertConversation(ctx context.Context, c *Conversation) error {
	if c.UserID == "" {
		return fmt.Errorf("conversation user is required")
	}
	if c.ID == "" {
		c.ID = generateID()
	}
	settings := normalizeJSON(c.Settings, "{}")
	now := s.now()

	row := s.db.QueryRowContext(ctx, s.rebind(`
INSERT INTO conversations (id, title, user_id, created_at, updated_at, settings)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	settings = excluded.settings,
	updated_at = excluded.updated_at
WHERE conversations.user_id = excluded.user_id
RETURNING created_at, updated_at`),
		c.ID, c.Title, c.UserID, now, now, string(settings),
	)
	if err := row.Scan(timestamp{&c.CreatedAt}, timestamp{&c.UpdatedAt}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", c.ID, ErrNotFound)
		}
		return fmt.Errorf("upsert conversation: %w", err)
	}
	c.Settings = settings
	return nil
}

// TouchConversation bumps updated_at
func (s *Store) TouchConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`UPDATE conversations SET updated_at = ? WHERE id = ?`), s.now(), id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func normalizeJSON(raw []byte, def string) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(def)
	}
	return json.RawMessage(raw)
}
