package reconcile

import (
	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// ApplyFixes writes the suggestion of every accepted row-level issue into a
// copy of cleaned and returns it with the number of cells changed. A nil
// accept takes every suggestion. Issues pointing outside the table are
// skipped.
func ApplyFixes(cleaned *table.Table, issues []clean.Issue, accept func(clean.Issue) bool) (*table.Table, int) {
	out := cleaned.Clone()
	n := 0
	for _, i := range issues {
		if !i.RowLevel() || !i.HasSuggestion() {
			continue
		}
		if accept != nil && !accept(i) {
			continue
		}
		col := out.ColumnIndex(i.Column)
		row := *i.Row
		if col < 0 || row < 0 || row >= out.Len() {
			continue
		}
		out.Rows[row][col] = i.Suggestion
		n++
	}
	return out, n
}
