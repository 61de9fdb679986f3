package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps canonical fields and the schema change log in PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a store on an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const migrateSQL = `
CREATE TABLE IF NOT EXISTS canonical_fields (
	name         TEXT PRIMARY KEY,
	position     INTEGER NOT NULL,
	header       TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	example      TEXT NOT NULL DEFAULT '',
	synonyms     TEXT[] NOT NULL DEFAULT '{}',
	header_regex TEXT NOT NULL DEFAULT '',
	field_type   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS canonical_fields_position_idx ON canonical_fields (position);

CREATE TABLE IF NOT EXISTS schema_changes (
	id         UUID PRIMARY KEY,
	session_id UUID NOT NULL,
	action     TEXT NOT NULL,
	canonical  TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	synonym    TEXT NOT NULL DEFAULT '',
	pattern    TEXT NOT NULL DEFAULT '',
	suggest    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the tables if they do not exist.
func (s *PgStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrateSQL); err != nil {
		return fmt.Errorf("migrate schema tables: %w", err)
	}
	return nil
}

// Load reads every field ordered by position. An empty table yields ErrNotFound.
func (s *PgStore) Load(ctx context.Context) (*Model, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, header, description, example, synonyms, header_regex, field_type
		FROM canonical_fields
		ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query canonical fields: %w", err)
	}

	fields, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CanonicalField, error) {
		var f CanonicalField
		err := row.Scan(&f.Name, &f.Header, &f.Description, &f.Example, &f.Synonyms, &f.HeaderRegex, &f.Type)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan canonical fields: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: canonical_fields is empty", ErrNotFound)
	}
	return NewModel(fields...)
}

// Seed inserts every field of m that is not already stored.
func (s *PgStore) Seed(ctx context.Context, m *Model) ([]string, error) {
	return s.Append(ctx, m.All())
}

// Append inserts fields after the current last position. Existing names are
// left untouched.
func (s *PgStore) Append(ctx context.Context, fields []CanonicalField) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position), -1) + 1 FROM canonical_fields`).Scan(&next); err != nil {
		return nil, fmt.Errorf("read next position: %w", err)
	}

	var added []string
	for _, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		synonyms := f.Synonyms
		if synonyms == nil {
			synonyms = []string{}
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO canonical_fields (name, position, header, description, example, synonyms, header_regex, field_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (name) DO NOTHING`,
			name, next, f.Header, f.Description, f.Example, synonyms, f.HeaderRegex, f.Type,
		)
		if err != nil {
			return nil, fmt.Errorf("insert field %s: %w", name, err)
		}
		if tag.RowsAffected() == 1 {
			added = append(added, name)
			next++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return added, nil
}

// AppendSynonyms merges synonyms into stored fields, case-insensitively.
func (s *PgStore) AppendSynonyms(ctx context.Context, synonyms map[string][]string) (map[string][]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin synonyms: %w", err)
	}
	defer tx.Rollback(ctx)

	added := make(map[string][]string)
	for name, syns := range synonyms {
		var current []string
		err := tx.QueryRow(ctx, `SELECT synonyms FROM canonical_fields WHERE name = $1 FOR UPDATE`, name).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read synonyms for %s: %w", name, err)
		}

		m, err := NewModel(CanonicalField{Name: name, Synonyms: current})
		if err != nil {
			return nil, err
		}
		got := m.AddSynonyms(name, syns)
		if len(got) == 0 {
			continue
		}
		f, _ := m.Field(name)
		if _, err := tx.Exec(ctx, `UPDATE canonical_fields SET synonyms = $2 WHERE name = $1`, name, f.Synonyms); err != nil {
			return nil, fmt.Errorf("update synonyms for %s: %w", name, err)
		}
		added[name] = got
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit synonyms: %w", err)
	}
	return added, nil
}

// RecordChanges appends entries to schema_changes.
func (s *PgStore) RecordChanges(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(changes))
	for _, c := range changes {
		rows = append(rows, []any{
			c.ID, c.SessionID, string(c.Action), c.Canonical,
			c.Source, c.Synonym, c.Pattern, c.Suggest, c.CreatedAt,
		})
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"schema_changes"},
		[]string{"id", "session_id", "action", "canonical", "source", "synonym", "pattern", "suggest", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("record schema changes: %w", err)
	}
	return nil
}

// Changes returns the most recent change log entries, newest first.
func (s *PgStore) Changes(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, action, canonical, source, synonym, pattern, suggest, created_at
		FROM schema_changes
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query schema changes: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Change, error) {
		var (
			c      Change
			action string
		)
		err := row.Scan(&c.ID, &c.SessionID, &action, &c.Canonical, &c.Source, &c.Synonym, &c.Pattern, &c.Suggest, &c.CreatedAt)
		c.Action = ChangeAction(action)
		return c, err
	})
}
