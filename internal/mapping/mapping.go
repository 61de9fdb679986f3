// Package mapping resolves raw source headers to canonical schema fields.
//
// Every header runs through a fixed cascade and the first stage to fire wins:
//
//	canonical  compact key equals a field name's compact key     1.00
//	regex      raw header matches a field's pattern at the start 0.90
//	synonym    compact key equals a known synonym                0.95
//	fuzzy      best synonym similarity is at least 0.85          0.82
//
// Headers no stage resolves can be handed, in one batch, to a
// HeaderResolver (0.70, method "llm"). Anything still unresolved is
// recorded as unmapped and reported back to the caller.
package mapping

import (
	"encoding/json"
	"strings"
)

// Method names the cascade stage that produced a result.
type Method string

const (
	MethodCanonical Method = "canonical"
	MethodRegex     Method = "regex"
	MethodSynonym   Method = "synonym"
	MethodFuzzy     Method = "fuzzy"
	MethodLLM       Method = "llm"
	MethodOverride  Method = "override"
	MethodUnmapped  Method = "unmapped"
)

// Confidence per stage. The numbers are policy and must stay stable.
const (
	ConfidenceCanonical = 1.00
	ConfidenceSynonym   = 0.95
	ConfidenceRegex     = 0.90
	ConfidenceFuzzy     = 0.82
	ConfidenceLLM       = 0.70
	ConfidenceOverride  = 1.00

	// FuzzyThreshold is the minimum similarity the fuzzy stage accepts.
	FuzzyThreshold = 0.85
)

// Result is the mapping decision for one source header.
type Result struct {
	Source     string  `json:"source"`
	Canonical  string  `json:"canonical"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Mapped reports whether the header resolved to a canonical field.
func (r Result) Mapped() bool {
	return r.Canonical != ""
}

// Unmapped builds the result for a header nothing resolved.
func Unmapped(source string) Result {
	return Result{Source: source, Method: MethodUnmapped}
}

// Mapping holds one Result per source header in source order. The zero value
// is an empty mapping. A Mapping is a value: With returns a modified copy.
type Mapping struct {
	results []Result
	index   map[string]int
}

// New builds a mapping from results. A repeated source header keeps its first
// position and takes the later result.
func New(results ...Result) Mapping {
	m := Mapping{index: make(map[string]int, len(results))}
	for _, r := range results {
		m.set(r)
	}
	return m
}

func (m *Mapping) set(r Result) {
	if !r.Mapped() {
		r.Canonical = ""
		r.Confidence = 0
		r.Method = MethodUnmapped
	}
	if i, ok := m.index[r.Source]; ok {
		m.results[i] = r
		return
	}
	m.index[r.Source] = len(m.results)
	m.results = append(m.results, r)
}

// With returns a copy of m with r replacing the result for r.Source.
func (m Mapping) With(r Result) Mapping {
	c := Mapping{
		results: append([]Result(nil), m.results...),
		index:   make(map[string]int, len(m.index)+1),
	}
	for k, v := range m.index {
		c.index[k] = v
	}
	c.set(r)
	return c
}

// Results returns every result in source order.
func (m Mapping) Results() []Result {
	return append([]Result(nil), m.results...)
}

// Get returns the result for a source header.
func (m Mapping) Get(source string) (Result, bool) {
	i, ok := m.index[source]
	if !ok {
		return Result{}, false
	}
	return m.results[i], true
}

// Len returns the number of source headers.
func (m Mapping) Len() int {
	return len(m.results)
}

// Unmapped returns the source headers with no canonical field, in order.
func (m Mapping) Unmapped() []string {
	var out []string
	for _, r := range m.results {
		if !r.Mapped() {
			out = append(out, r.Source)
		}
	}
	return out
}

// Assignment pairs a source column with the canonical field it feeds.
type Assignment struct {
	Source    string
	Canonical string
}

// Assignments returns the source column chosen for each reached canonical
// field. When several sources map to one field, the first in source order
// wins and later ones are dropped.
func (m Mapping) Assignments() []Assignment {
	seen := make(map[string]bool)
	var out []Assignment
	for _, r := range m.results {
		if !r.Mapped() || seen[r.Canonical] {
			continue
		}
		seen[r.Canonical] = true
		out = append(out, Assignment{Source: r.Source, Canonical: r.Canonical})
	}
	return out
}

// CandidateSynonyms groups mapped source headers whose spelling differs from
// the canonical name, case-insensitively. These are the headers worth
// promoting into the schema as synonyms.
func (m Mapping) CandidateSynonyms() map[string][]string {
	out := make(map[string][]string)
	for _, r := range m.results {
		if !r.Mapped() {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(r.Source), strings.TrimSpace(r.Canonical)) {
			continue
		}
		dup := false
		for _, s := range out[r.Canonical] {
			if s == r.Source {
				dup = true
				break
			}
		}
		if !dup {
			out[r.Canonical] = append(out[r.Canonical], r.Source)
		}
	}
	return out
}

// MarshalJSON renders the mapping as an ordered list of results.
func (m Mapping) MarshalJSON() ([]byte, error) {
	if m.results == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(m.results)
}
