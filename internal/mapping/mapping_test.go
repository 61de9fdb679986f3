package mapping

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

type fakeResolver struct {
	answer map[string]string
	err    error
	calls  [][]string
}

func (f *fakeResolver) ResolveHeaders(ctx context.Context, headers, fields []string) (map[string]string, error) {
	f.calls = append(f.calls, append([]string(nil), headers...))
	return f.answer, f.err
}

func mustModel(t *testing.T, fields ...schema.CanonicalField) *schema.Model {
	t.Helper()
	m, err := schema.NewModel(fields...)
	require.NoError(t, err)
	return m
}

func TestCompact(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Discount %  ", "discountpct"},
		{"Discount #", "discountnum"},
		{"E-Mail Addr.", "emailaddr"},
		{"Order\t  No", "orderno"},
		{"order_id", "orderid"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Compact(tt.in), "Compact(%q)", tt.in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("qty", "qty"))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 0.875, Similarity("quantiy", "quantity"), 1e-9)
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, Levenshtein("flaw", "lawn"), Levenshtein("lawn", "flaw"))
}

func TestMapHeaders_CanonicalBeatsPattern(t *testing.T) {
	model := mustModel(t,
		schema.CanonicalField{Name: "legacy", HeaderRegex: "(?i)order"},
		schema.CanonicalField{Name: "order_id"},
	)

	m, unmatched := NewEngine().MapHeaders(context.Background(), []string{"Order_ID", "ORDER ID"}, model, nil, false)

	assert.Empty(t, unmatched)
	for _, h := range []string{"Order_ID", "ORDER ID"} {
		r, ok := m.Get(h)
		require.True(t, ok)
		assert.Equal(t, "order_id", r.Canonical)
		assert.Equal(t, ConfidenceCanonical, r.Confidence)
		assert.Equal(t, MethodCanonical, r.Method)
	}
}

func TestMapHeaders_PatternBeforeSynonym(t *testing.T) {
	model := mustModel(t,
		schema.CanonicalField{Name: "a", Synonyms: []string{"order no"}},
		schema.CanonicalField{Name: "b", HeaderRegex: "(?i)order"},
		schema.CanonicalField{Name: "c", HeaderRegex: "(?i)order"},
	)

	m, _ := NewEngine().MapHeaders(context.Background(), []string{"Order No", "Legacy Order No"}, model, nil, false)

	r, _ := m.Get("Order No")
	assert.Equal(t, Result{Source: "Order No", Canonical: "b", Confidence: ConfidenceRegex, Method: MethodRegex}, r)

	// Patterns are anchored at the start; the synonym set does not contain it either.
	r, _ = m.Get("Legacy Order No")
	assert.False(t, r.Mapped())
}

func TestMapHeaders_SynonymAndExtras(t *testing.T) {
	model := mustModel(t,
		schema.CanonicalField{Name: "total", Synonyms: []string{"amount"}},
		schema.CanonicalField{Name: "grand", Synonyms: []string{"amount"}},
		schema.CanonicalField{Name: "email"},
	)
	extra := map[string][]string{
		"email":   {"Contact Mail"},
		"missing": {"Whatever"},
	}

	m, unmatched := NewEngine().MapHeaders(context.Background(), []string{"Amount", "contact-mail", "Whatever"}, model, extra, false)

	r, _ := m.Get("Amount")
	assert.Equal(t, "grand", r.Canonical, "later declaration owns a shared synonym")
	assert.Equal(t, MethodSynonym, r.Method)
	assert.Equal(t, ConfidenceSynonym, r.Confidence)

	r, _ = m.Get("contact-mail")
	assert.Equal(t, "email", r.Canonical)
	assert.Equal(t, MethodSynonym, r.Method)

	assert.Equal(t, []string{"Whatever"}, unmatched)
}

func TestMapHeaders_Fuzzy(t *testing.T) {
	model := mustModel(t,
		schema.CanonicalField{Name: "total", Synonyms: []string{"amount"}},
		schema.CanonicalField{Name: "grand", Synonyms: []string{"amount"}},
		schema.CanonicalField{Name: "quantity", Synonyms: []string{"qty"}},
	)

	m, unmatched := NewEngine().MapHeaders(context.Background(), []string{"Amounts", "Quantiy", "Amt"}, model, nil, false)

	r, _ := m.Get("Amounts")
	assert.Equal(t, "total", r.Canonical, "ties go to the first declared field")
	assert.Equal(t, MethodFuzzy, r.Method)
	assert.Equal(t, ConfidenceFuzzy, r.Confidence)

	r, _ = m.Get("Quantiy")
	assert.Equal(t, "quantity", r.Canonical)

	r, _ = m.Get("Amt")
	assert.Equal(t, Unmapped("Amt"), r)
	assert.Equal(t, []string{"Amt"}, unmatched)
}

func TestMapHeaders_UnmatchedKeptWithoutResolver(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "order_id"})
	headers := []string{"Gift Wrap", "order_id", "  Loyalty Tier "}

	m, unmatched := NewEngine().MapHeaders(context.Background(), headers, model, nil, true)

	assert.Equal(t, []string{"Gift Wrap", "  Loyalty Tier "}, unmatched)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, unmatched, m.Unmapped())
	for _, h := range unmatched {
		r, ok := m.Get(h)
		require.True(t, ok)
		assert.Equal(t, MethodUnmapped, r.Method)
		assert.Zero(t, r.Confidence)
	}
}

func TestMapHeaders_Resolver(t *testing.T) {
	model := mustModel(t,
		schema.CanonicalField{Name: "order_id"},
		schema.CanonicalField{Name: "gift_wrap"},
	)
	res := &fakeResolver{answer: map[string]string{
		"Wrapped?": "gift_wrap",
		"Tier":     "loyalty_tier",
		"Notes":    "",
	}}

	e := NewEngine(WithResolver(res))
	m, unmatched := e.MapHeaders(context.Background(), []string{"order_id", "Wrapped?", "Tier", "Notes"}, model, nil, true)

	require.Len(t, res.calls, 1)
	assert.Equal(t, []string{"Wrapped?", "Tier", "Notes"}, res.calls[0])

	r, _ := m.Get("Wrapped?")
	assert.Equal(t, Result{Source: "Wrapped?", Canonical: "gift_wrap", Confidence: ConfidenceLLM, Method: MethodLLM}, r)

	r, _ = m.Get("Tier")
	assert.Equal(t, MethodUnmapped, r.Method, "unknown field names are rejected")
	assert.Equal(t, []string{"Tier", "Notes"}, unmatched)
}

func TestMapHeaders_ResolverSkipped(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "order_id"})
	res := &fakeResolver{}
	e := NewEngine(WithResolver(res))

	_, unmatched := e.MapHeaders(context.Background(), []string{"Order ID"}, model, nil, true)
	assert.Empty(t, unmatched)
	assert.Empty(t, res.calls, "nothing to resolve")

	_, unmatched = e.MapHeaders(context.Background(), []string{"Mystery"}, model, nil, false)
	assert.Equal(t, []string{"Mystery"}, unmatched)
	assert.Empty(t, res.calls, "fallback disabled")
}

func TestMapHeaders_ResolverFailureDegrades(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "order_id"})
	res := &fakeResolver{err: errors.New("timeout")}

	m, unmatched := NewEngine(WithResolver(res)).MapHeaders(context.Background(), []string{"Mystery"}, model, nil, true)

	assert.Equal(t, []string{"Mystery"}, unmatched)
	r, _ := m.Get("Mystery")
	assert.Equal(t, MethodUnmapped, r.Method)
}

func TestMapHeaders_DefaultOrders(t *testing.T) {
	model, err := schema.DefaultOrders()
	require.NoError(t, err)

	headers := []string{"Order No", "Date", "Email Addr", "Qty", "Discount %", "Pin Code", "GSTIN"}
	m, unmatched := NewEngine().MapHeaders(context.Background(), headers, model, nil, false)
	assert.Empty(t, unmatched)

	want := map[string]string{
		"Order No":   "order_id",
		"Date":       "order_date",
		"Email Addr": "email",
		"Qty":        "quantity",
		"Discount %": "discount_pct",
		"Pin Code":   "postal_code",
		"GSTIN":      "tax_id",
	}
	for h, canon := range want {
		r, _ := m.Get(h)
		assert.Equal(t, canon, r.Canonical, h)
	}

	r, _ := m.Get("Order No")
	assert.Equal(t, MethodRegex, r.Method)
	r, _ = m.Get("Date")
	assert.Equal(t, MethodSynonym, r.Method)
}

func TestMapping_AssignmentsFirstWins(t *testing.T) {
	m := New(
		Result{Source: "Email", Canonical: "email", Confidence: 1, Method: MethodCanonical},
		Result{Source: "Notes"},
		Result{Source: "E-mail 2", Canonical: "email", Confidence: 0.95, Method: MethodSynonym},
		Result{Source: "Phone", Canonical: "phone", Confidence: 1, Method: MethodCanonical},
	)

	assert.Equal(t, []Assignment{
		{Source: "Email", Canonical: "email"},
		{Source: "Phone", Canonical: "phone"},
	}, m.Assignments())
	assert.Equal(t, []string{"Notes"}, m.Unmapped())

	r, _ := m.Get("Notes")
	assert.Equal(t, MethodUnmapped, r.Method)
}

func TestMapping_WithDoesNotMutate(t *testing.T) {
	m := New(Result{Source: "A", Canonical: "a", Confidence: 1, Method: MethodCanonical})
	n := m.With(Result{Source: "A"})

	r, _ := m.Get("A")
	assert.Equal(t, "a", r.Canonical)
	r, _ = n.Get("A")
	assert.Equal(t, Unmapped("A"), r)
}

func TestMapping_CandidateSynonyms(t *testing.T) {
	m := New(
		Result{Source: "email", Canonical: "email", Confidence: 1, Method: MethodCanonical},
		Result{Source: "Email Addr", Canonical: "email", Confidence: 0.9, Method: MethodRegex},
		Result{Source: "Qty", Canonical: "quantity", Confidence: 0.95, Method: MethodSynonym},
		Result{Source: "Mystery"},
	)

	assert.Equal(t, map[string][]string{
		"email":    {"Email Addr"},
		"quantity": {"Qty"},
	}, m.CandidateSynonyms())
}
