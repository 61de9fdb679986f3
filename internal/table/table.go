// Package table holds fully materialized tabular data and the readers and
// writers that move it in and out of CSV and XLSX files.
package table

import (
	"math"
	"strconv"
	"strings"
)

// Source describes where a table came from and how it was decoded.
type Source struct {
	Name      string `json:"name,omitempty"`
	Format    string `json:"format,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Delimiter string `json:"delimiter,omitempty"`
}

// Table is a header row plus data rows. Every row has len(Headers) cells.
// A cell is nil, string, float64, int64, int or bool.
type Table struct {
	Headers []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Source  Source   `json:"source"`
}

// New creates an empty table with the given headers.
func New(headers []string) *Table {
	return &Table{Headers: append([]string(nil), headers...), Rows: [][]any{}}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at row, col; out-of-range positions read as nil.
func (t *Table) Cell(row, col int) any {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][col]
}

// Column returns a copy of one column.
func (t *Table) Column(col int) []any {
	out := make([]any, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Cell(i, col)
	}
	return out
}

// Append adds a row, padding or truncating it to the header width.
func (t *Table) Append(row []any) {
	r := make([]any, len(t.Headers))
	copy(r, row)
	t.Rows = append(t.Rows, r)
}

// Clone returns a deep copy of the table's rows and headers.
func (t *Table) Clone() *Table {
	c := &Table{
		Headers: append([]string(nil), t.Headers...),
		Rows:    make([][]any, len(t.Rows)),
		Source:  t.Source,
	}
	for i, r := range t.Rows {
		c.Rows[i] = append([]any(nil), r...)
	}
	return c
}

// IsMissing reports whether a cell is null, NaN, or a blank string.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}

// FormatValue renders a cell the way it is written to CSV.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return s.String()
		}
		return ""
	}
}
