package reconcile

import (
	"regexp"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// Proposals collects the header proposals attached to issues, in order.
func Proposals(issues []clean.Issue) []schema.FieldProposal {
	var out []schema.FieldProposal
	for _, i := range issues {
		if i.Proposal != nil {
			out = append(out, *i.Proposal)
		}
	}
	return out
}

// Promote returns a copy of model with every proposal whose name is
// non-empty and not yet defined appended in order. Later proposals for an
// already-present name are dropped. model itself is not modified.
func Promote(model *schema.Model, proposals []schema.FieldProposal, session uuid.UUID) (*schema.Model, []schema.Change) {
	next := model.Clone()
	var changes []schema.Change
	for _, p := range proposals {
		f := p.Field()
		if f.Name == "" || !next.Add(f) {
			continue
		}
		c := schema.NewChange(session, schema.ActionAddHeader, f.Name)
		c.Source = p.SourceHeader
		changes = append(changes, c)
	}
	return next, changes
}

// PromoteSynonyms returns a copy of model with the candidate synonyms added
// to their fields. Candidates for unknown fields and synonyms already
// present, case-insensitively, are skipped. Fields are visited in schema
// order so the change log is deterministic.
func PromoteSynonyms(model *schema.Model, candidates map[string][]string, session uuid.UUID) (*schema.Model, []schema.Change) {
	next := model.Clone()
	var changes []schema.Change
	for _, name := range next.Fields() {
		syns, ok := candidates[name]
		if !ok {
			continue
		}
		for _, s := range next.AddSynonyms(name, syns) {
			c := schema.NewChange(session, schema.ActionPromoteSynonym, name)
			c.Synonym = s
			c.Source = s
			changes = append(changes, c)
		}
	}
	return next, changes
}

// CandidateTransforms records a value transform for every row-level issue
// that carries a suggestion. The pattern matches the offending value
// literally. Duplicate (column, value) pairs are recorded once.
func CandidateTransforms(issues []clean.Issue, session uuid.UUID) []schema.Change {
	type key struct{ column, pattern string }
	seen := make(map[key]bool)

	var changes []schema.Change
	for _, i := range issues {
		if !i.RowLevel() || !i.HasSuggestion() {
			continue
		}
		k := key{i.Column, regexp.QuoteMeta(table.FormatValue(i.Value))}
		if seen[k] {
			continue
		}
		seen[k] = true

		c := schema.NewChange(session, schema.ActionRecordTransform, i.Column)
		c.Pattern = k.pattern
		c.Suggest = table.FormatValue(i.Suggestion)
		changes = append(changes, c)
	}
	return changes
}
