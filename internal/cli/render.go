package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yolodolo42/chatd/internal/store"
)

// renderQueryResult prints rows as a table, or the affected row count for
// statements without fields
func renderQueryResult(width int, res *store.QueryResult) string {
	if res == nil {
		return ""
	}
	if len(res.Fields) == 0 {
		return fmt.Sprintf("%s: %d rows", res.Command, res.RowCount)
	}

	headers := make([]string, len(res.Fields))
	for i, f := range res.Fields {
		headers[i] = f.Name
	}
	rows := make([][]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = cellString(r[h])
		}
		rows = append(rows, row)
	}
	title := fmt.Sprintf("%s: %d rows", res.Command, res.RowCount)
	return renderTable(width, title, headers, rows)
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case string:
		return strings.ReplaceAll(t, "\n", " ")
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case int64, int, float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func renderTable(width int, title string, headers []string, rows [][]string) string {
	cols := len(headers)
	if cols == 0 {
		return ""
	}

	colW := make([]int, cols)
	for c := 0; c < cols; c++ {
		colW[c] = len(headers[c])
	}
	for _, row := range rows {
		for c := 0; c < cols && c < len(row); c++ {
			if l := len(row[c]); l > colW[c] {
				colW[c] = l
			}
		}
	}

	// Shrink the last wide columns first until the table fits
	sep := 3 // " | "
	avail := width
	if avail < 20 {
		avail = 20
	}
	for totalWidth(colW, sep) > avail {
		shrunk := false
		for c := cols - 1; c >= 0; c-- {
			if colW[c] > 6 {
				colW[c]--
				shrunk = true
				break
			}
		}
		if !shrunk {
			break
		}
	}

	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}

	b.WriteString(renderTableRow(headers, colW))
	b.WriteString("\n")
	b.WriteString(renderTableSep(colW, sep))
	for _, row := range rows {
		b.WriteString("\n")
		b.WriteString(renderTableRow(row, colW))
	}
	return b.String()
}

func totalWidth(colW []int, sep int) int {
	total := 0
	for _, w := range colW {
		total += w
	}
	total += sep * (len(colW) - 1)
	return total
}

func renderTableSep(colW []int, sep int) string {
	var b strings.Builder
	for c, w := range colW {
		if c > 0 {
			b.WriteString(strings.Repeat("-", sep))
		}
		b.WriteString(strings.Repeat("-", w))
	}
	return b.String()
}

func renderTableRow(cells []string, colW []int) string {
	var b strings.Builder
	for c, w := range colW {
		if c > 0 {
			b.WriteString(" | ")
		}
		val := ""
		if c < len(cells) {
			val = cells[c]
		}
		b.WriteString(padRight(truncate(val, w), w))
	}
	return strings.TrimRight(b.String(), " ")
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func truncate(s string, w int) string {
	if w <= 0 || len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-3] + "..."
}
