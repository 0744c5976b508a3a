package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// QueryResult describes the outcome of a raw statement
type QueryResult struct {
	Command  string           `json:"command"`
	RowCount int64            `json:"rowCount"`
	Fields   []Field          `json:"fields"`
	Rows     []map[string]any `json:"rows"`
}

// Field is a result column
type Field struct {
	Name     string `json:"name"`
	DataType string `json:"dataType"`
}

var rowReturning = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
	"SHOW":    true,
	"VALUES":  true,
	"TABLE":   true,
	"PRAGMA":  true,
}

// queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Query runs raw SQL text without parameters. Callers decide what is allowed
// to reach it.
func (s *Store) Query(ctx context.Context, query string) (*QueryResult, error) {
	return runQuery(ctx, s.db, query)
}

// QueryReadOnly runs raw SQL with the database refusing writes: a READ ONLY
// transaction on Postgres, query_only on sqlite. Nothing is committed.
func (s *Store) QueryReadOnly(ctx context.Context, query string) (*QueryResult, error) {
	if s.driver == DriverSQLite {
		return s.querySQLiteReadOnly(ctx, query)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return runQuery(ctx, tx, query)
}

func (s *Store) querySQLiteReadOnly(ctx context.Context, query string) (*QueryResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("enable query_only: %w", err)
	}
	defer func() {
		// the connection goes back to the pool and must accept writes again
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF"); err != nil {
			s.logger.Error("failed to reset query_only", "error", err)
		}
	}()
	return runQuery(ctx, conn, query)
}

func runQuery(ctx context.Context, db queryer, query string) (*QueryResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}
	command := strings.ToUpper(strings.TrimLeft(strings.Fields(query)[0], "("))
	returning := rowReturning[command] || strings.Contains(strings.ToUpper(query), "RETURNING")

	if !returning {
		res, err := db.ExecContext(ctx, query)
		if err != nil {
			return nil, err
		}
		n, _ := res.RowsAffected()
		return &QueryResult{Command: command, RowCount: n, Fields: []Field{}, Rows: []map[string]any{}}, nil
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	result := &QueryResult{
		Command: command,
		Fields:  make([]Field, len(types)),
		Rows:    make([]map[string]any, 0),
	}
	for i, ct := range types {
		result.Fields[i] = Field{Name: ct.Name(), DataType: strings.ToLower(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(map[string]any, len(types))
		for i, f := range result.Fields {
			if b, ok := values[i].([]byte); ok {
				row[f.Name] = string(b)
				continue
			}
			row[f.Name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result.RowCount = int64(len(result.Rows))
	return result, nil
}
