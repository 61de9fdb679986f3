// Package reconcile applies user decisions to a pass: header overrides,
// promotion of proposals and synonyms into the schema, and accepted fixes.
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/schema"
)

// ErrUnknownField is returned when an override names a field the schema
// does not define.
var ErrUnknownField = errors.New("unknown canonical field")

// ApplyOverrides returns m with the user's choices applied. overrides maps a
// source header to a canonical name, or "" to leave the header unmapped.
// An override equal to the current choice keeps the original result.
// Overrides for headers absent from m are ignored. Either every override is
// applied or, on error, none is.
func ApplyOverrides(m mapping.Mapping, overrides map[string]string, model *schema.Model) (mapping.Mapping, error) {
	next := m
	for _, r := range m.Results() {
		choice, ok := overrides[r.Source]
		if !ok {
			continue
		}
		choice = strings.TrimSpace(choice)

		switch {
		case choice == r.Canonical:
			continue
		case choice == "":
			next = next.With(mapping.Unmapped(r.Source))
		case !model.Has(choice):
			return m, fmt.Errorf("%w: %q for header %q", ErrUnknownField, choice, r.Source)
		default:
			next = next.With(mapping.Result{
				Source:     r.Source,
				Canonical:  choice,
				Confidence: mapping.ConfidenceOverride,
				Method:     mapping.MethodOverride,
			})
		}
	}
	return next, nil
}
