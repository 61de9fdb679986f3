package clean

import "github.com/JonMunkholm/schemafix/internal/schema"

// Issue is one problem found during a cleaning pass. Row is nil for
// table-level issues (missing and extra columns, header proposals).
type Issue struct {
	Row        *int                  `json:"row_index"`
	Column     string                `json:"column"`
	Value      any                   `json:"value"`
	Reason     string                `json:"reason"`
	Suggestion any                   `json:"suggestion"`
	Proposal   *schema.FieldProposal `json:"proposal,omitempty"`
}

// RowLevel reports whether the issue points at a single cell.
func (i Issue) RowLevel() bool {
	return i.Row != nil
}

// HasSuggestion reports whether the issue carries a usable suggestion.
func (i Issue) HasSuggestion() bool {
	if i.Suggestion == nil {
		return false
	}
	if s, ok := i.Suggestion.(string); ok {
		return s != ""
	}
	return true
}

func rowIssue(row int, column string, value any, reason string, suggestion any) Issue {
	return Issue{Row: &row, Column: column, Value: value, Reason: reason, Suggestion: suggestion}
}

func tableIssue(column, reason string) Issue {
	return Issue{Column: column, Reason: reason}
}
