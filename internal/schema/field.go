// Package schema holds the canonical field definitions that header mapping and
// cell cleaning are evaluated against.
//
// A Model is an ordered set of CanonicalField values. Declaration order is the
// canonical column order of every cleaned table. Each field carries derived
// matching caches (a lowercased synonym set and a compiled header pattern) that
// are rebuilt whenever the field is added or its synonyms change.
package schema

import (
	"regexp"
	"strings"
)

// PatternState describes the outcome of compiling a header pattern.
type PatternState int

const (
	// PatternNone means the field declares no header pattern.
	PatternNone PatternState = iota
	// PatternCompiled means the pattern compiled and can be matched.
	PatternCompiled
	// PatternInvalid means the pattern was declared but failed to compile.
	// An invalid pattern never matches.
	PatternInvalid
)

// String returns the state name used in logs and API output.
func (s PatternState) String() string {
	switch s {
	case PatternCompiled:
		return "compiled"
	case PatternInvalid:
		return "invalid"
	default:
		return "none"
	}
}

// Pattern is a header-matching regular expression compiled once at load time.
type Pattern struct {
	Source string
	State  PatternState
	re     *regexp.Regexp
}

// CompilePattern compiles src anchored at the start of the input. An empty
// source yields PatternNone and a syntax error yields PatternInvalid.
func CompilePattern(src string) Pattern {
	if strings.TrimSpace(src) == "" {
		return Pattern{State: PatternNone}
	}
	re, err := regexp.Compile(`^(?:` + src + `)`)
	if err != nil {
		return Pattern{Source: src, State: PatternInvalid}
	}
	return Pattern{Source: src, State: PatternCompiled, re: re}
}

// MatchPrefix reports whether the raw header matches the pattern from its
// first character.
func (p Pattern) MatchPrefix(header string) bool {
	if p.State != PatternCompiled || p.re == nil {
		return false
	}
	return p.re.MatchString(header)
}

// CanonicalField is one schema-defined target column.
type CanonicalField struct {
	Name        string
	Header      string
	Description string
	Example     string
	Synonyms    []string
	HeaderRegex string

	// Type optionally groups fields by semantic family so validators can be
	// selected by tag when no validator is registered for the name itself.
	Type string

	synonymKeys []string
	pattern     Pattern
}

// prepare rebuilds the derived caches from Synonyms and HeaderRegex.
func (f *CanonicalField) prepare() {
	f.Synonyms = append([]string(nil), f.Synonyms...)

	seen := make(map[string]bool, len(f.Synonyms)+2)
	keys := make([]string, 0, len(f.Synonyms)+2)
	add := func(s string) {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	for _, s := range f.Synonyms {
		add(s)
	}
	add(f.DisplayHeader())
	add(f.Name)

	f.synonymKeys = keys
	f.pattern = CompilePattern(f.HeaderRegex)
}

// DisplayHeader returns the declared header, or the field name when none is set.
func (f CanonicalField) DisplayHeader() string {
	if strings.TrimSpace(f.Header) != "" {
		return f.Header
	}
	return f.Name
}

// SynonymKeys returns the lowercased, trimmed synonym set including the
// field's own header and name.
func (f CanonicalField) SynonymKeys() []string {
	return f.synonymKeys
}

// Pattern returns the compiled header pattern.
func (f CanonicalField) Pattern() Pattern {
	return f.pattern
}

// FieldProposal is a candidate field described by the field-discovery
// collaborator for a header nothing in the schema matched.
type FieldProposal struct {
	SourceHeader string   `json:"source_header,omitempty"`
	Name         string   `json:"header"`
	Description  string   `json:"description,omitempty"`
	Example      string   `json:"example,omitempty"`
	Synonyms     []string `json:"synonyms,omitempty"`
	HeaderRegex  string   `json:"header_regex,omitempty"`
}

// Field converts the proposal into a CanonicalField ready to be appended.
func (p FieldProposal) Field() CanonicalField {
	return CanonicalField{
		Name:        strings.TrimSpace(p.Name),
		Header:      strings.TrimSpace(p.Name),
		Description: p.Description,
		Example:     p.Example,
		Synonyms:    append([]string(nil), p.Synonyms...),
		HeaderRegex: p.HeaderRegex,
	}
}
