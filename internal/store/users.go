package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User owns conversations and authenticates with a passkey
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Passkey   string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

// UserByPasskey resolves a bearer passkey
func (s *Store) UserByPasskey(ctx context.Context, passkey string) (*User, error) {
	if passkey == "" {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	var u User
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, name, passkey, created_at FROM users WHERE passkey = ?`), passkey).
		Scan(&u.ID, &u.Name, &u.Passkey, timestamp{&u.CreatedAt})
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// CreateUser adds a user with a freshly generated passkey
func (s *Store) CreateUser(ctx context.Context, name string) (*User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("user name is required")
	}
	u := &User{
		ID:        generateID(),
		Name:      name,
		Passkey:   generatePasskey(),
		CreatedAt: s.now(),
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (id, name, passkey, created_at) VALUES (?, ?, ?, ?)`),
		u.ID, u.Name, u.Passkey, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Users lists all users by creation time
func (s *Store) Users(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, passkey, created_at FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Passkey, timestamp{&u.CreatedAt}); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
