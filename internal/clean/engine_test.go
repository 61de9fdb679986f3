package clean

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schemafix/internal/assist"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

type fakeRepairer struct {
	answers []string
	err     error
	calls   [][]assist.RepairRequest
}

func (f *fakeRepairer) RepairCells(ctx context.Context, reqs []assist.RepairRequest) ([]string, error) {
	f.calls = append(f.calls, reqs)
	return f.answers, f.err
}

type fakeDiscoverer struct {
	found   map[string]schema.FieldProposal
	calls   int
	headers []string
	samples map[string][]string
}

func (f *fakeDiscoverer) DiscoverFields(ctx context.Context, headers []string, samples map[string][]string) (map[string]schema.FieldProposal, error) {
	f.calls++
	f.headers = headers
	f.samples = samples
	return f.found, nil
}

func mustModel(t *testing.T, fields ...schema.CanonicalField) *schema.Model {
	t.Helper()
	m, err := schema.NewModel(fields...)
	require.NoError(t, err)
	return m
}

func rawTable(headers []string, rows ...[]any) *table.Table {
	tbl := table.New(headers)
	for _, r := range rows {
		tbl.Append(r)
	}
	return tbl
}

func mapAll(t *testing.T, raw *table.Table, model *schema.Model) mapping.Mapping {
	t.Helper()
	m, _ := mapping.NewEngine().MapHeaders(context.Background(), raw.Headers, model, nil, false)
	return m
}

func issuesFor(issues []Issue, column string) []Issue {
	var out []Issue
	for _, i := range issues {
		if i.Column == column {
			out = append(out, i)
		}
	}
	return out
}

func TestClean_EndToEnd(t *testing.T) {
	model, err := schema.DefaultOrders()
	require.NoError(t, err)

	raw := rawTable([]string{"Order No", "Date", "Email Addr"},
		[]any{"ord-1234", "5/1/24", "not-an-email"},
	)
	m := mapAll(t, raw, model)

	out, issues := NewEngine().Clean(context.Background(), raw, m, model, false)

	require.Equal(t, model.Fields(), out.Headers)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "ORD-1234", out.Cell(0, out.ColumnIndex("order_id")))
	assert.Equal(t, "2024-01-05", out.Cell(0, out.ColumnIndex("order_date")))
	assert.Nil(t, out.Cell(0, out.ColumnIndex("email")))

	emailIssues := issuesFor(issues, "email")
	require.Len(t, emailIssues, 1)
	assert.Equal(t, ReasonEmail, emailIssues[0].Reason)
	assert.Equal(t, "not-an-email", emailIssues[0].Value)
	require.NotNil(t, emailIssues[0].Row)
	assert.Equal(t, 0, *emailIssues[0].Row)
	assert.Nil(t, emailIssues[0].Suggestion)

	assert.Empty(t, issuesFor(issues, "order_id"))

	phone := issuesFor(issues, "phone")
	require.Len(t, phone, 2)
	assert.Equal(t, ReasonNullOrEmpty, phone[0].Reason)
	assert.Equal(t, ReasonMissingColumn, phone[1].Reason)
	assert.Nil(t, phone[1].Row)

	for _, i := range issues {
		assert.NotEqual(t, ReasonExtraColumn, i.Reason, i.Column)
	}
}

func TestClean_IssueOrder(t *testing.T) {
	model := mustModel(t,
		schema.CanonicalField{Name: "order_id"},
		schema.CanonicalField{Name: "quantity"},
		schema.CanonicalField{Name: "email"},
	)
	raw := rawTable([]string{"quantity", "Notes", "order_id"},
		[]any{"x", "n1", "bad"},
		[]any{"2", "n2", nil},
	)

	_, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

	type key struct {
		col    string
		reason string
	}
	var got []key
	for _, i := range issues {
		got = append(got, key{i.Column, i.Reason})
	}
	assert.Equal(t, []key{
		{"order_id", ReasonOrderID},
		{"order_id", ReasonNullOrEmpty},
		{"quantity", ReasonQuantity},
		{"email", ReasonNullOrEmpty},
		{"email", ReasonNullOrEmpty},
		{"email", ReasonMissingColumn},
		{"Notes", ReasonExtraColumn},
	}, got)
}

func TestClean_FirstSourceWins(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "email"}, schema.CanonicalField{Name: "phone"})
	raw := rawTable([]string{"Email", "E-mail 2"},
		[]any{"first@example.com", "second@example.com"},
	)
	m := mapping.New(
		mapping.Result{Source: "Email", Canonical: "email", Confidence: 1, Method: mapping.MethodCanonical},
		mapping.Result{Source: "E-mail 2", Canonical: "email", Confidence: 0.9, Method: mapping.MethodRegex},
	)

	out, issues := NewEngine().Clean(context.Background(), raw, m, model, false)

	assert.Equal(t, "first@example.com", out.Cell(0, 0))
	assert.Nil(t, out.Cell(0, 1))
	assert.Empty(t, issuesFor(issues, "E-mail 2"), "a source mapped to a taken field is not extra")
}

func TestClean_MissingCellsLeftEmpty(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "customer_name"}, schema.CanonicalField{Name: "quantity"})
	raw := rawTable([]string{"customer_name", "quantity"},
		[]any{"   ", math.NaN()},
	)

	out, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

	assert.Nil(t, out.Cell(0, 0))
	assert.Nil(t, out.Cell(0, 1))
	require.Len(t, issues, 2)
	assert.Equal(t, ReasonNullOrEmpty, issues[0].Reason)
	assert.Equal(t, "   ", issues[0].Value)
	assert.Equal(t, ReasonNullOrEmpty, issues[1].Reason)
	assert.Nil(t, issues[1].Value)

	_, err := json.Marshal(issues)
	assert.NoError(t, err)
}

func TestClean_ContactRecovery(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "email"}, schema.CanonicalField{Name: "phone"})

	t.Run("email embedded in contact column", func(t *testing.T) {
		raw := rawTable([]string{"Email", "Phone", "Contact Info"},
			[]any{"bad", "9876543210", "reach me at asha@example.com"},
		)
		_, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

		e := issuesFor(issues, "email")
		require.Len(t, e, 1)
		assert.Equal(t, ReasonEmail, e[0].Reason)
		assert.Equal(t, "asha@example.com", e[0].Suggestion)
	})

	t.Run("phone from mobile column", func(t *testing.T) {
		raw := rawTable([]string{"Email", "Phone", "Mobile/Contact"},
			[]any{"a@b.com", "123", "+91 98765 43210"},
		)
		out, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

		assert.Nil(t, out.Cell(0, 1))
		p := issuesFor(issues, "phone")
		require.Len(t, p, 1)
		assert.Equal(t, ReasonPhone, p[0].Reason)
		assert.Equal(t, "+919876543210", p[0].Suggestion)
	})

	t.Run("digits never suggested as email", func(t *testing.T) {
		raw := rawTable([]string{"Email", "Phone", "Mobile/Contact"},
			[]any{"", "", "9876543210"},
		)
		_, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

		e := issuesFor(issues, "email")
		require.Len(t, e, 1)
		assert.Equal(t, ReasonNullOrEmpty, e[0].Reason)
		assert.Nil(t, e[0].Suggestion)

		p := issuesFor(issues, "phone")
		require.Len(t, p, 1)
		assert.Equal(t, ReasonNullOrEmpty, p[0].Reason)
		assert.Equal(t, "9876543210", p[0].Suggestion)
	})

	t.Run("empty email recovered", func(t *testing.T) {
		raw := rawTable([]string{"Email", "Phone", "Contact"},
			[]any{"", "9876543210", "asha@example.com / 98765"},
		)
		_, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

		e := issuesFor(issues, "email")
		require.Len(t, e, 1)
		assert.Equal(t, ReasonNullOrEmpty, e[0].Reason)
		assert.Equal(t, "asha@example.com", e[0].Suggestion)
	})

	// Phone helpers also scan email columns, so an empty phone picks up an
	// address. Applying it must fail phone validation.
	t.Run("email surfaced for empty phone", func(t *testing.T) {
		raw := rawTable([]string{"Phone", "Email"},
			[]any{nil, "asha@example.com"},
		)
		_, issues := NewEngine().Clean(context.Background(), raw, mapAll(t, raw, model), model, false)

		p := issuesFor(issues, "phone")
		require.Len(t, p, 1)
		assert.Equal(t, ReasonNullOrEmpty, p[0].Reason)
		assert.Equal(t, "asha@example.com", p[0].Suggestion)

		res := Phone(p[0].Suggestion)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonEmailInPhone, res.Reason)
	})
}

func TestClean_RepairBatch(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "order_id", Description: "Order identifier"})
	raw := rawTable([]string{"order_id"},
		[]any{"bad"},
		[]any{"bad"},
		[]any{"x-1"},
		[]any{""},
	)
	rep := &fakeRepairer{answers: []string{"ORD-0001", ""}}
	e := NewEngine(WithRepairer(rep))

	_, issues := e.Clean(context.Background(), raw, mapAll(t, raw, model), model, true)

	require.Len(t, rep.calls, 1)
	assert.Equal(t, []assist.RepairRequest{
		{Field: "order_id", Value: "bad", Description: "Order identifier"},
		{Field: "order_id", Value: "x-1", Description: "Order identifier"},
	}, rep.calls[0])

	o := issuesFor(issues, "order_id")
	require.Len(t, o, 4)
	assert.Equal(t, "ORD-0001", o[0].Suggestion)
	assert.Equal(t, "ORD-0001", o[1].Suggestion)
	assert.Nil(t, o[2].Suggestion)
	assert.Equal(t, ReasonNullOrEmpty, o[3].Reason)

	_, _ = e.Clean(context.Background(), raw, mapAll(t, raw, model), model, false)
	assert.Len(t, rep.calls, 1, "assist disabled")
}

func TestClean_RepairFailureDegrades(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "order_id"})
	raw := rawTable([]string{"order_id"}, []any{"bad"})
	rep := &fakeRepairer{err: errors.New("upstream 500")}

	_, issues := NewEngine(WithRepairer(rep)).Clean(context.Background(), raw, mapAll(t, raw, model), model, true)

	require.Len(t, issues, 1)
	assert.Equal(t, ReasonOrderID, issues[0].Reason)
	assert.Nil(t, issues[0].Suggestion)
}

func TestClean_Proposals(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "order_id"})
	raw := rawTable([]string{"order_id", "Gift Wrap", "Notes"},
		[]any{"ORD-0001", "yes", nil},
		[]any{"ORD-0002", "", "call first"},
		[]any{"ORD-0003", "no", nil},
		[]any{"ORD-0004", "yes", nil},
		[]any{"ORD-0005", "no", nil},
		[]any{"ORD-0006", "yes", nil},
		[]any{"ORD-0007", "no", nil},
	)
	disc := &fakeDiscoverer{found: map[string]schema.FieldProposal{
		"Gift Wrap": {Name: "gift_wrap", Description: "Gift wrapping requested", Synonyms: []string{"gift wrap"}},
		"Notes":     {Name: ""},
	}}

	_, issues := NewEngine(WithDiscoverer(disc)).Clean(context.Background(), raw, mapAll(t, raw, model), model, true)

	require.Equal(t, 1, disc.calls)
	assert.Equal(t, []string{"Gift Wrap", "Notes"}, disc.headers)
	assert.Equal(t, []string{"yes", "no", "yes", "no", "yes"}, disc.samples["Gift Wrap"])
	assert.Equal(t, []string{"call first"}, disc.samples["Notes"])

	n := len(issues)
	require.GreaterOrEqual(t, n, 3)
	assert.Equal(t, ReasonExtraColumn, issues[n-3].Reason)
	assert.Equal(t, ReasonExtraColumn, issues[n-2].Reason)

	last := issues[n-1]
	assert.Equal(t, ReasonNewHeader, last.Reason)
	assert.Equal(t, "Gift Wrap", last.Column)
	require.NotNil(t, last.Proposal)
	assert.Equal(t, "gift_wrap", last.Proposal.Name)
	assert.Equal(t, "Gift Wrap", last.Proposal.SourceHeader)
}

func TestClean_Idempotent(t *testing.T) {
	model, err := schema.DefaultOrders()
	require.NoError(t, err)

	raw := rawTable(
		[]string{"Order No", "Date", "Cust ID", "Customer Name", "Email", "Phone", "City", "Pin Code",
			"SKU", "Qty", "Unit Price", "Currency", "Discount %", "Tax Rate", "Shipping Fee", "Total", "GSTIN"},
		[]any{"ord-0001", "05/01/2024", "cust-1", " Asha Rao ", "Asha@Example.com", "+91 98765 43210", " Pune ", "560 001",
			"ab-1234", "2", "₹1,200.50", "rs", "15%", "18", "50", "1,250.50", "27aapfu0939f1zv"},
	)
	e := NewEngine()

	first, _ := e.Clean(context.Background(), raw, mapAll(t, raw, model), model, false)
	second, _ := e.Clean(context.Background(), first, mapAll(t, first, model), model, false)

	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, int64(2), first.Cell(0, first.ColumnIndex("quantity")))
	assert.Equal(t, 0.15, first.Cell(0, first.ColumnIndex("discount_pct")))
	assert.Equal(t, 0.18, first.Cell(0, first.ColumnIndex("tax_pct")))
	assert.Equal(t, "INR", first.Cell(0, first.ColumnIndex("currency")))
	assert.Equal(t, "560001", first.Cell(0, first.ColumnIndex("postal_code")))
}

func TestReshape_UnmappedFieldsAreNil(t *testing.T) {
	model := mustModel(t, schema.CanonicalField{Name: "a"}, schema.CanonicalField{Name: "b"})
	raw := rawTable([]string{"b", "z"}, []any{"1", "2"})

	out := Reshape(raw, mapAll(t, raw, model), model)

	assert.Equal(t, []string{"a", "b"}, out.Headers)
	assert.Equal(t, [][]any{{nil, "1"}}, out.Rows)
}
