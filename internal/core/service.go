package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/reconcile"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// ErrAssistUnavailable is returned when a caller asks for the assistant but
// none is configured.
var ErrAssistUnavailable = errors.New("assistant unavailable")

// PassTimeout bounds a single reconcile pass, assistant calls included.
var PassTimeout = 5 * time.Minute

// ServiceConfig holds the collaborators a Service is built from. Store is
// required; nil engines get defaults without an assistant.
type ServiceConfig struct {
	Store         schema.Store
	Mapper        *mapping.Engine
	Cleaner       *clean.Engine
	Limiter       *PassLimiter
	AssistEnabled bool
	Logger        *slog.Logger
}

// Service owns the live schema and runs reconcile passes against snapshots
// of it. Promotions replace the model copy-on-write, so passes in flight
// keep the snapshot they started with.
type Service struct {
	store         schema.Store
	mapper        *mapping.Engine
	cleaner       *clean.Engine
	limiter       *PassLimiter
	assistEnabled bool
	logger        *slog.Logger

	mu    sync.RWMutex
	model *schema.Model
}

// NewService loads the schema from the store. A missing definition is
// returned as schema.ErrNotFound.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("service: schema store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mapper := cfg.Mapper
	if mapper == nil {
		mapper = mapping.NewEngine(mapping.WithLogger(logger))
	}
	cleaner := cfg.Cleaner
	if cleaner == nil {
		cleaner = clean.NewEngine(clean.WithLogger(logger))
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewPassLimiter(DefaultMaxConcurrentPasses, DefaultMaxWaitTime)
	}

	model, err := cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	logger.Info("schema loaded", "fields", model.Len())

	return &Service{
		store:         cfg.Store,
		mapper:        mapper,
		cleaner:       cleaner,
		limiter:       limiter,
		assistEnabled: cfg.AssistEnabled,
		logger:        logger,
		model:         model,
	}, nil
}

// Schema returns the current schema snapshot. Callers must not modify it.
func (s *Service) Schema() *schema.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// AssistEnabled reports whether an assistant is configured.
func (s *Service) AssistEnabled() bool {
	return s.assistEnabled
}

func (s *Service) checkAssist(requested bool) error {
	if requested && !s.assistEnabled {
		return ErrAssistUnavailable
	}
	return nil
}

// MapHeaders maps headers against the current schema without reading any
// rows.
func (s *Service) MapHeaders(ctx context.Context, headers []string, extra map[string][]string, useAssist bool) (mapping.Mapping, []string, error) {
	if err := s.checkAssist(useAssist); err != nil {
		return mapping.Mapping{}, nil, err
	}
	m, unmatched := s.mapper.MapHeaders(ctx, headers, s.Schema(), extra, useAssist)
	return m, unmatched, nil
}

// ReconcileRequest is one table plus the caller's choices for the pass.
type ReconcileRequest struct {
	Table      *table.Table
	Overrides  map[string]string
	Extra      map[string][]string
	Assist     bool
	ApplyFixes bool
}

// Reconcile maps, overrides, cleans and optionally fixes one table. The pass
// holds a limiter slot for its whole duration.
func (s *Service) Reconcile(ctx context.Context, req ReconcileRequest) (*reconcile.Session, error) {
	if req.Table == nil {
		return nil, errors.New("reconcile: no file provided")
	}
	if err := s.checkAssist(req.Assist); err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, PassTimeout)
	defer cancel()

	start := time.Now()
	sess := reconcile.NewSession(req.Table, s.Schema())
	logger := s.logger.With("session_id", sess.ID.String(), "source", req.Table.Source.Name)

	sess.Map(ctx, s.mapper, req.Extra, req.Assist)
	if err := sess.Override(req.Overrides); err != nil {
		return nil, err
	}
	if err := sess.Clean(ctx, s.cleaner, req.Assist); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if req.ApplyFixes {
		fixed, err := sess.Fix(nil)
		if err != nil {
			return nil, err
		}
		if fixed > 0 {
			if err := s.store.RecordChanges(ctx, sess.Transforms()); err != nil {
				logger.Warn("failed to record transforms", "error", err)
			}
		}
	}

	logger.Info("pass complete",
		"rows", req.Table.Len(),
		"unmatched", len(sess.Unmatched),
		"issues", len(sess.Issues),
		"fixed", sess.Fixed,
		"duration", time.Since(start),
	)
	return sess, nil
}

// Export writes the session's result table as CSV.
func (s *Service) Export(w io.Writer, sess *reconcile.Session) error {
	result := sess.Result()
	if result == nil {
		return reconcile.ErrNotCleaned
	}
	return table.WriteCSV(w, result)
}

// PromoteProposals appends proposed fields to the schema. Names that already
// exist are skipped. The returned changes describe what was added.
func (s *Service) PromoteProposals(ctx context.Context, session uuid.UUID, proposals []schema.FieldProposal) ([]schema.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changes := reconcile.Promote(s.model, proposals, session)
	if len(changes) == 0 {
		return nil, nil
	}

	fields := make([]schema.CanonicalField, 0, len(changes))
	for _, c := range changes {
		if f, ok := next.Field(c.Canonical); ok {
			fields = append(fields, f)
		}
	}
	if _, err := s.store.Append(ctx, fields); err != nil {
		return nil, fmt.Errorf("persist fields: %w", err)
	}
	s.record(ctx, changes)

	s.model = next
	s.logger.Info("schema fields promoted",
		"session_id", session.String(),
		"added", len(changes),
		"actor", ActorFromContext(ctx),
		"ip", IPAddressFromContext(ctx),
	)
	return changes, nil
}

// PromoteSynonyms appends synonyms to existing fields. Unknown fields and
// synonyms already present are skipped.
func (s *Service) PromoteSynonyms(ctx context.Context, session uuid.UUID, candidates map[string][]string) ([]schema.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, changes := reconcile.PromoteSynonyms(s.model, candidates, session)
	if len(changes) == 0 {
		return nil, nil
	}

	added := make(map[string][]string)
	for _, c := range changes {
		added[c.Canonical] = append(added[c.Canonical], c.Synonym)
	}
	if _, err := s.store.AppendSynonyms(ctx, added); err != nil {
		return nil, fmt.Errorf("persist synonyms: %w", err)
	}
	s.record(ctx, changes)

	s.model = next
	s.logger.Info("schema synonyms promoted",
		"session_id", session.String(),
		"added", len(changes),
		"actor", ActorFromContext(ctx),
		"ip", IPAddressFromContext(ctx),
	)
	return changes, nil
}

// record writes the change log. The schema itself is already persisted, so
// a failure here is only logged.
func (s *Service) record(ctx context.Context, changes []schema.Change) {
	if err := s.store.RecordChanges(ctx, changes); err != nil {
		s.logger.Warn("failed to record schema changes", "changes", len(changes), "error", err)
	}
}

// ChangeLister is implemented by stores that keep a queryable change log.
type ChangeLister interface {
	Changes(ctx context.Context, limit int) ([]schema.Change, error)
}

// Changes returns the most recent schema changes, newest first. Stores
// without a change log return nil.
func (s *Service) Changes(ctx context.Context, limit int) ([]schema.Change, error) {
	cl, ok := s.store.(ChangeLister)
	if !ok {
		return nil, nil
	}
	return cl.Changes(ctx, limit)
}

// PassStatus reports limiter usage.
func (s *Service) PassStatus() PassLimiterStatus {
	return s.limiter.Status()
}

// WaitForPasses blocks until in-flight passes finish or ctx is done.
func (s *Service) WaitForPasses(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
