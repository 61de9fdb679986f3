package mapping

import (
	"context"
	"log/slog"

	"github.com/JonMunkholm/schemafix/internal/assist"
	"github.com/JonMunkholm/schemafix/internal/schema"
)

// Engine runs the header cascade. It holds no per-pass state and is safe for
// concurrent use when the resolver is.
type Engine struct {
	resolver assist.HeaderResolver
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the collaborator consulted for headers the cascade leaves
// unmatched.
func WithResolver(r assist.HeaderResolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a mapping engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// index is the per-pass lookup built from the schema snapshot.
type index struct {
	fields    []schema.CanonicalField
	canonical map[string]string
	synonyms  map[string]string
	fuzzy     [][]string
}

func buildIndex(model *schema.Model, extra map[string][]string) *index {
	fields := model.All()
	idx := &index{
		fields:    fields,
		canonical: make(map[string]string, len(fields)),
		synonyms:  make(map[string]string),
		fuzzy:     make([][]string, len(fields)),
	}

	for i, f := range fields {
		if key := Compact(f.Name); key != "" {
			if _, taken := idx.canonical[key]; !taken {
				idx.canonical[key] = f.Name
			}
		}

		// Later declarations overwrite earlier ones on a shared synonym.
		keys := make([]string, 0, len(f.SynonymKeys()))
		for _, s := range f.SynonymKeys() {
			key := Compact(s)
			if key == "" {
				continue
			}
			idx.synonyms[key] = f.Name
			keys = append(keys, key)
		}
		for _, s := range extra[f.Name] {
			if key := Compact(s); key != "" {
				idx.synonyms[key] = f.Name
			}
		}
		idx.fuzzy[i] = keys
	}
	return idx
}

// match runs the deterministic stages for one header.
func (idx *index) match(header string) (Result, bool) {
	key := Compact(header)

	if name, ok := idx.canonical[key]; ok && key != "" {
		return Result{Source: header, Canonical: name, Confidence: ConfidenceCanonical, Method: MethodCanonical}, true
	}

	for _, f := range idx.fields {
		if f.Pattern().MatchPrefix(header) {
			return Result{Source: header, Canonical: f.Name, Confidence: ConfidenceRegex, Method: MethodRegex}, true
		}
	}

	if key == "" {
		return Result{}, false
	}

	if name, ok := idx.synonyms[key]; ok {
		return Result{Source: header, Canonical: name, Confidence: ConfidenceSynonym, Method: MethodSynonym}, true
	}

	bestField, bestScore := "", 0.0
	for i, keys := range idx.fuzzy {
		for _, syn := range keys {
			if score := Similarity(key, syn); score > bestScore {
				bestField, bestScore = idx.fields[i].Name, score
			}
		}
	}
	if bestField != "" && bestScore >= FuzzyThreshold {
		return Result{Source: header, Canonical: bestField, Confidence: ConfidenceFuzzy, Method: MethodFuzzy}, true
	}

	return Result{}, false
}

// MapHeaders maps every header against model. extra supplies learned
// synonyms per canonical field; names absent from the model are ignored.
// When fallback is set and a resolver is configured, headers the cascade
// leaves unmatched are sent to it in a single call.
//
// Every header gets a Result. The second return value lists, in source order,
// the headers that ended up unmapped.
func (e *Engine) MapHeaders(ctx context.Context, headers []string, model *schema.Model, extra map[string][]string, fallback bool) (Mapping, []string) {
	idx := buildIndex(model, extra)

	results := make([]Result, 0, len(headers))
	var unmatched []string
	for _, h := range headers {
		if r, ok := idx.match(h); ok {
			results = append(results, r)
			continue
		}
		results = append(results, Unmapped(h))
		unmatched = append(unmatched, h)
	}

	m := New(results...)

	if fallback && e.resolver != nil && len(unmatched) > 0 {
		m, unmatched = e.resolve(ctx, m, unmatched, model)
	}

	e.logger.Debug("headers mapped",
		"headers", len(headers),
		"unmatched", len(unmatched),
	)
	return m, unmatched
}

// resolve asks the collaborator about unmatched headers. A failed call leaves
// every header unmapped.
func (e *Engine) resolve(ctx context.Context, m Mapping, unmatched []string, model *schema.Model) (Mapping, []string) {
	resolved, err := e.resolver.ResolveHeaders(ctx, unmatched, model.Fields())
	if err != nil {
		e.logger.Warn("header resolution failed, leaving headers unmapped",
			"headers", len(unmatched),
			"error", err,
		)
		resolved = nil
	}

	var still []string
	for _, h := range unmatched {
		name := resolved[h]
		if name != "" && model.Has(name) {
			m = m.With(Result{Source: h, Canonical: name, Confidence: ConfidenceLLM, Method: MethodLLM})
			continue
		}
		m = m.With(Unmapped(h))
		still = append(still, h)
	}
	return m, still
}
