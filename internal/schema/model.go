package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no schema definition exists at the
	// configured source. Nothing can be validated without one.
	ErrNotFound = errors.New("schema definition not found")

	// ErrDuplicateField is returned when a definition declares a name twice.
	ErrDuplicateField = errors.New("duplicate canonical field")

	// ErrEmptySchema is returned when a definition contains no fields.
	ErrEmptySchema = errors.New("schema definition has no fields")
)

// Model is an ordered set of canonical fields keyed by name.
//
// A Model is not safe for concurrent mutation. Callers treat a loaded Model
// as a read-only snapshot for the duration of a pass and Clone it before
// promoting proposals or synonyms.
type Model struct {
	fields []CanonicalField
	index  map[string]int
}

// NewModel builds a model from fields in declaration order.
func NewModel(fields ...CanonicalField) (*Model, error) {
	m := &Model{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return nil, fmt.Errorf("canonical field with empty name")
		}
		if _, ok := m.index[f.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		m.append(f)
	}
	return m, nil
}

func (m *Model) append(f CanonicalField) {
	f.prepare()
	m.index[f.Name] = len(m.fields)
	m.fields = append(m.fields, f)
}

// Fields returns the canonical field names in declaration order.
func (m *Model) Fields() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// All returns every field in declaration order.
func (m *Model) All() []CanonicalField {
	return append([]CanonicalField(nil), m.fields...)
}

// Field looks up a field by its canonical name.
func (m *Model) Field(name string) (CanonicalField, bool) {
	i, ok := m.index[name]
	if !ok {
		return CanonicalField{}, false
	}
	return m.fields[i], true
}

// Has reports whether name is a canonical field.
func (m *Model) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Len returns the number of fields.
func (m *Model) Len() int {
	return len(m.fields)
}

// Add appends f if no field with the same name exists. Existing fields are
// never overwritten. Reports whether the field was added.
func (m *Model) Add(f CanonicalField) bool {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" || m.Has(f.Name) {
		return false
	}
	m.append(f)
	return true
}

// AddSynonyms appends synonyms to the named field, skipping any that already
// exist case-insensitively. Returns the synonyms actually added.
func (m *Model) AddSynonyms(name string, synonyms []string) []string {
	i, ok := m.index[name]
	if !ok {
		return nil
	}
	f := m.fields[i]

	existing := make(map[string]bool, len(f.Synonyms))
	for _, s := range f.Synonyms {
		existing[strings.ToLower(strings.TrimSpace(s))] = true
	}

	var added []string
	for _, s := range synonyms {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || existing[key] {
			continue
		}
		existing[key] = true
		f.Synonyms = append(f.Synonyms, strings.TrimSpace(s))
		added = append(added, strings.TrimSpace(s))
	}
	if len(added) > 0 {
		f.prepare()
		m.fields[i] = f
	}
	return added
}

// Clone returns an independent copy of the model.
func (m *Model) Clone() *Model {
	c := &Model{
		fields: make([]CanonicalField, len(m.fields)),
		index:  make(map[string]int, len(m.index)),
	}
	for i, f := range m.fields {
		f.Synonyms = append([]string(nil), f.Synonyms...)
		f.prepare()
		c.fields[i] = f
		c.index[f.Name] = i
	}
	return c
}
