// Package clean validates and normalizes cell values against a canonical
// schema and reports every problem as an Issue.
//
// A pass reshapes the raw table into canonical column order, runs each
// field's validator over its column, and then appends table-level issues:
// canonical fields no source column reached, source columns that feed no
// field, and (optionally) proposals for brand-new fields.
package clean

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/schemafix/internal/assist"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// Engine runs cleaning passes. It is safe for concurrent use when its
// collaborators are.
type Engine struct {
	registry   *Registry
	repairer   assist.CellRepairer
	discoverer assist.FieldDiscoverer
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the default validator registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithRepairer sets the collaborator asked for suggestions on invalid cells.
func WithRepairer(r assist.CellRepairer) Option {
	return func(e *Engine) { e.repairer = r }
}

// WithDiscoverer sets the collaborator asked to describe unmatched headers.
func WithDiscoverer(d assist.FieldDiscoverer) Option {
	return func(e *Engine) { e.discoverer = d }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a cleaning engine backed by DefaultRegistry.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{registry: DefaultRegistry(), logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's validator registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// repairKey dedupes repair requests within a pass.
type repairKey struct {
	field string
	value string
}

// Clean runs one pass over raw. The returned table has one column per
// canonical field in schema order and one row per raw row. Issues are
// ordered column by column, then missing columns, extra columns and header
// proposals. useAssist gates the repair and discovery collaborators; each is
// called at most once per pass and a failure only means fewer suggestions.
func (e *Engine) Clean(ctx context.Context, raw *table.Table, m mapping.Mapping, model *schema.Model, useAssist bool) (*table.Table, []Issue) {
	fields := model.All()
	out := Reshape(raw, m, model)
	helpers := helperColumns(raw.Headers)

	var issues []Issue
	pending := make(map[repairKey][]int)
	var requests []assist.RepairRequest

	for j, f := range fields {
		validate := e.registry.Lookup(f)
		kind := kindOf(f)

		for i, row := range out.Rows {
			val := row[j]

			if table.IsMissing(val) {
				row[j] = nil
				if _, ok := val.(string); !ok {
					val = nil
				}
				var suggestion any
				if kind != contactNone {
					suggestion = recoverContact(kind, raw.Rows[i], helpers)
				}
				issues = append(issues, rowIssue(i, f.Name, val, ReasonNullOrEmpty, suggestion))
				continue
			}

			res := validate(val)
			row[j] = res.Value
			if res.Valid {
				continue
			}

			issue := rowIssue(i, f.Name, val, res.Reason, res.Suggestion)
			if issue.Suggestion == nil && kind != contactNone {
				issue.Suggestion = recoverContact(kind, raw.Rows[i], helpers)
			}
			if issue.Suggestion == nil && useAssist && e.repairer != nil {
				key := repairKey{field: f.Name, value: table.FormatValue(val)}
				if key.value != "" {
					if _, seen := pending[key]; !seen {
						requests = append(requests, assist.RepairRequest{
							Field:       f.Name,
							Value:       key.value,
							Description: f.Description,
						})
					}
					pending[key] = append(pending[key], len(issues))
				}
			}
			issues = append(issues, issue)
		}
	}

	if len(requests) > 0 {
		e.applyRepairs(ctx, requests, pending, issues)
	}

	issues = append(issues, e.columnIssues(ctx, raw, m, model, useAssist)...)

	e.logger.Debug("clean pass complete",
		"rows", out.Len(),
		"fields", len(fields),
		"issues", len(issues),
	)
	return out, issues
}

// applyRepairs sends the batched requests and fills the suggestions of every
// issue that shares a request's field and value.
func (e *Engine) applyRepairs(ctx context.Context, requests []assist.RepairRequest, pending map[repairKey][]int, issues []Issue) {
	answers, err := e.repairer.RepairCells(ctx, requests)
	if err != nil {
		e.logger.Warn("cell repair failed, continuing without suggestions",
			"requests", len(requests),
			"error", err,
		)
		return
	}
	if len(answers) != len(requests) {
		e.logger.Warn("cell repair returned a misaligned batch",
			"requests", len(requests),
			"answers", len(answers),
		)
	}

	for k, req := range requests {
		if k >= len(answers) || answers[k] == "" {
			continue
		}
		for _, idx := range pending[repairKey{field: req.Field, value: req.Value}] {
			issues[idx].Suggestion = answers[k]
		}
	}
}

// columnIssues reports unreached canonical fields, extra source columns and,
// when enabled, proposals for the extra columns.
func (e *Engine) columnIssues(ctx context.Context, raw *table.Table, m mapping.Mapping, model *schema.Model, useAssist bool) []Issue {
	var issues []Issue

	reached := make(map[string]bool)
	for _, a := range assignments(raw, m, model) {
		reached[a.Canonical] = true
	}
	for _, name := range model.Fields() {
		if !reached[name] {
			issues = append(issues, tableIssue(name, ReasonMissingColumn))
		}
	}

	var extra []string
	for _, h := range raw.Headers {
		r, ok := m.Get(h)
		if ok && r.Mapped() && model.Has(r.Canonical) {
			continue
		}
		extra = append(extra, h)
		issues = append(issues, tableIssue(h, ReasonExtraColumn))
	}

	if useAssist && e.discoverer != nil && len(extra) > 0 {
		issues = append(issues, e.proposals(ctx, raw, extra)...)
	}
	return issues
}

// proposals asks the discoverer about the extra headers once, with up to
// assist.MaxSamples non-empty values each.
func (e *Engine) proposals(ctx context.Context, raw *table.Table, headers []string) []Issue {
	samples := make(map[string][]string, len(headers))
	for _, h := range headers {
		col := raw.ColumnIndex(h)
		var vals []string
		for i := 0; i < raw.Len() && len(vals) < assist.MaxSamples; i++ {
			v := raw.Cell(i, col)
			if table.IsMissing(v) {
				continue
			}
			vals = append(vals, table.FormatValue(v))
		}
		samples[h] = vals
	}

	found, err := e.discoverer.DiscoverFields(ctx, headers, samples)
	if err != nil {
		e.logger.Warn("field discovery failed, no proposals this pass",
			"headers", len(headers),
			"error", err,
		)
		return nil
	}

	var issues []Issue
	for _, h := range headers {
		p, ok := found[h]
		if !ok || p.Name == "" {
			continue
		}
		p.SourceHeader = h
		issue := tableIssue(h, ReasonNewHeader)
		issue.Proposal = &p
		issues = append(issues, issue)
	}
	return issues
}

// assignments keeps the mapping's first-source-wins assignments whose source
// exists in raw and whose field exists in model.
func assignments(raw *table.Table, m mapping.Mapping, model *schema.Model) []mapping.Assignment {
	var out []mapping.Assignment
	for _, a := range m.Assignments() {
		if raw.ColumnIndex(a.Source) < 0 || !model.Has(a.Canonical) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Reshape projects raw onto the model's canonical columns. Each reached
// field takes its first mapped source column; unreached fields are all nil.
// Values are copied as-is.
func Reshape(raw *table.Table, m mapping.Mapping, model *schema.Model) *table.Table {
	fields := model.Fields()
	src := make([]int, len(fields))
	for j := range src {
		src[j] = -1
	}

	pos := make(map[string]int, len(fields))
	for j, name := range fields {
		pos[name] = j
	}
	for _, a := range assignments(raw, m, model) {
		src[pos[a.Canonical]] = raw.ColumnIndex(a.Source)
	}

	out := table.New(fields)
	out.Source = raw.Source
	for i := 0; i < raw.Len(); i++ {
		row := make([]any, len(fields))
		for j, c := range src {
			if c >= 0 {
				row[j] = raw.Cell(i, c)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}
