// Package assist defines the contracts for the external collaborators the
// mapping and cleaning engines consult as a last resort, and an
// OpenAI-compatible client that implements them.
//
// Every collaborator is optional. Callers treat an error as "no result" for
// the headers or cells involved and carry on with the rest of the pass.
package assist

import (
	"context"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

// HeaderResolver maps headers no deterministic rule matched onto canonical
// field names. The returned map holds a field name or "" per header.
// Implementations are never called with an empty header list.
type HeaderResolver interface {
	ResolveHeaders(ctx context.Context, headers, fields []string) (map[string]string, error)
}

// FieldDiscoverer describes unknown headers as candidate canonical fields.
// samples holds up to MaxSamples non-empty values per header. Proposals
// without a name are dropped by the implementation.
type FieldDiscoverer interface {
	DiscoverFields(ctx context.Context, headers []string, samples map[string][]string) (map[string]schema.FieldProposal, error)
}

// RepairRequest asks for a conservative replacement for one invalid cell value.
type RepairRequest struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// CellRepairer proposes replacements for invalid cell values. The returned
// slice is aligned with reqs; "" means the collaborator declined. Callers never
// send empty values.
type CellRepairer interface {
	RepairCells(ctx context.Context, reqs []RepairRequest) ([]string, error)
}

// MaxSamples is the number of sample values sent per header for discovery.
const MaxSamples = 5
