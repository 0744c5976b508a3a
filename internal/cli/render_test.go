package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yolodolo42/chatd/internal/store"
)

func TestRenderTable(t *testing.T) {
	t.Run("aligns columns", func(t *testing.T) {
		out := renderTable(80, "", []string{"id", "name"}, [][]string{
			{"1", "alice"},
			{"22", "bob"},
		})
		lines := strings.Split(out, "\n")

		assert.Len(t, lines, 4)
		assert.Equal(t, "id | name", lines[0])
		assert.Equal(t, "----------", lines[1])
		assert.Equal(t, "1  | alice", lines[2])
		assert.Equal(t, "22 | bob", lines[3])
	})

	t.Run("shrinks wide columns", func(t *testing.T) {
		long := strings.Repeat("x", 200)
		out := renderTable(40, "", []string{"a", "b"}, [][]string{{"1", long}})

		for _, line := range strings.Split(out, "\n") {
			assert.LessOrEqual(t, len(line), 40)
		}
		assert.Contains(t, out, "...")
	})

	t.Run("no headers", func(t *testing.T) {
		assert.Empty(t, renderTable(80, "", nil, nil))
	})
}

func TestRenderQueryResult(t *testing.T) {
	t.Run("rows", func(t *testing.T) {
		out := renderQueryResult(80, &store.QueryResult{
			Command:  "SELECT",
			RowCount: 1,
			Fields:   []store.Field{{Name: "n"}, {Name: "note"}},
			Rows:     []map[string]any{{"n": int64(7), "note": nil}},
		})

		assert.Contains(t, out, "SELECT: 1 rows")
		assert.Contains(t, out, "7 | NULL")
	})

	t.Run("statement without fields", func(t *testing.T) {
		out := renderQueryResult(80, &store.QueryResult{Command: "DELETE", RowCount: 3})
		assert.Equal(t, "DELETE: 3 rows", out)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, renderQueryResult(80, nil))
	})
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "a b", cellString("a\nb"))
	assert.Equal(t, "true", cellString(true))
	assert.Equal(t, `{"k":1}`, cellString(map[string]int{"k": 1}))
}
