// Package store persists users, conversations and messages.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "modernc.org/sqlite"
)

// Supported drivers
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const (
	DefaultConversationLimit = 1000
	DefaultMessageLimit      = 100
	DefaultConnectTimeout    = 30 * time.Second
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

const idCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func generateID() string {
	return gonanoid.MustGenerate(idCharset, 16)
}

func generatePasskey() string {
	return gonanoid.MustGenerate(idCharset, 32)
}

// Config selects the database
type Config struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// Store is the relational store. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
	now    func() time.Time

	// last message timestamp; messages of a conversation are ordered by it
	stampMu sync.Mutex
	last    time.Time
}

// Open connects, retrying with exponential backoff until ConnectTimeout, and
// applies the embedded schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var schema string
	switch cfg.Driver {
	case DriverPostgres:
		schema = schemaPostgres
	case DriverSQLite:
		schema = schemaSQLite
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// in-memory databases are per connection
		db.SetMaxOpenConns(1)
	}

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			logger.Warn("database not reachable", "driver", cfg.Driver, "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithMaxElapsedTime(cfg.ConnectTimeout))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("database ready", "driver", cfg.Driver)
	return &Store{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying DB
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// stamp returns now at microsecond precision, strictly after the previous stamp
func (s *Store) stamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	t := s.now().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the database driver name
func (s *Store) Driver() string {
	return s.driver
}

// rebind rewrites ? placeholders to $N for Postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timestamp scans both native time values and sqlite text
type timestamp struct {
	t *time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		*ts.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts timestamp) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparsable timestamp %q", s)
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
