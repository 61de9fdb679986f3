package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// ErrNotMapped is returned when a step needs a mapping the session does not
// have yet.
var ErrNotMapped = errors.New("session has no mapping")

// ErrNotCleaned is returned when a step needs a cleaning pass first.
var ErrNotCleaned = errors.New("session has not been cleaned")

// Session carries one table through map, override, clean and fix. The model
// is the schema snapshot the session was opened against and is never
// modified. A Session is not safe for concurrent use.
type Session struct {
	ID    uuid.UUID
	Raw   *table.Table
	Model *schema.Model

	Mapping   mapping.Mapping
	Unmatched []string
	mapped    bool

	Cleaned *table.Table
	Issues  []clean.Issue

	Final *table.Table
	Fixed int
}

// NewSession opens a session for raw against model.
func NewSession(raw *table.Table, model *schema.Model) *Session {
	return &Session{ID: uuid.New(), Raw: raw, Model: model}
}

// Map runs the header cascade. Any earlier cleaning result is discarded.
func (s *Session) Map(ctx context.Context, eng *mapping.Engine, extra map[string][]string, fallback bool) {
	s.Mapping, s.Unmatched = eng.MapHeaders(ctx, s.Raw.Headers, s.Model, extra, fallback)
	s.mapped = true
	s.reset()
}

// Override applies user overrides to the mapping. On error the session is
// unchanged.
func (s *Session) Override(overrides map[string]string) error {
	if !s.mapped {
		return ErrNotMapped
	}
	if len(overrides) == 0 {
		return nil
	}
	m, err := ApplyOverrides(s.Mapping, overrides, s.Model)
	if err != nil {
		return err
	}
	s.Mapping = m
	s.Unmatched = m.Unmapped()
	s.reset()
	return nil
}

// Clean runs a cleaning pass with the current mapping.
func (s *Session) Clean(ctx context.Context, eng *clean.Engine, useAssist bool) error {
	if !s.mapped {
		return ErrNotMapped
	}
	s.Cleaned, s.Issues = eng.Clean(ctx, s.Raw, s.Mapping, s.Model, useAssist)
	s.Final, s.Fixed = nil, 0
	return nil
}

// Fix applies accepted suggestions to a copy of the cleaned table and keeps
// it as the final table. A nil accept takes every suggestion.
func (s *Session) Fix(accept func(clean.Issue) bool) (int, error) {
	if s.Cleaned == nil {
		return 0, ErrNotCleaned
	}
	s.Final, s.Fixed = ApplyFixes(s.Cleaned, s.Issues, accept)
	return s.Fixed, nil
}

// Result returns the final table when fixes were applied, otherwise the
// cleaned table. It is nil before Clean.
func (s *Session) Result() *table.Table {
	if s.Final != nil {
		return s.Final
	}
	return s.Cleaned
}

// Proposals returns the header proposals of the last cleaning pass.
func (s *Session) Proposals() []schema.FieldProposal {
	return Proposals(s.Issues)
}

// CandidateSynonyms returns mapped headers worth promoting as synonyms.
func (s *Session) CandidateSynonyms() map[string][]string {
	return s.Mapping.CandidateSynonyms()
}

// Transforms returns the value transforms suggested by the last pass.
func (s *Session) Transforms() []schema.Change {
	return CandidateTransforms(s.Issues, s.ID)
}

func (s *Session) reset() {
	s.Cleaned, s.Issues = nil, nil
	s.Final, s.Fixed = nil, 0
}
