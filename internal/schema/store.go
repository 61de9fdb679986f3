package schema

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ChangeAction names a kind of schema change recorded during a session.
type ChangeAction string

const (
	ActionAddHeader       ChangeAction = "add_header"
	ActionPromoteSynonym  ChangeAction = "promote_synonym"
	ActionRecordTransform ChangeAction = "record_transform"
)

// Change is one entry of the schema change log.
type Change struct {
	ID        uuid.UUID    `json:"id"`
	SessionID uuid.UUID    `json:"session_id"`
	Action    ChangeAction `json:"action"`
	Canonical string       `json:"canonical"`
	Source    string       `json:"source,omitempty"`
	Synonym   string       `json:"synonym,omitempty"`
	Pattern   string       `json:"pattern,omitempty"`
	Suggest   string       `json:"suggest,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewChange stamps a change with a fresh id and the current time.
func NewChange(session uuid.UUID, action ChangeAction, canonical string) Change {
	return Change{
		ID:        uuid.New(),
		SessionID: session,
		Action:    action,
		Canonical: canonical,
		CreatedAt: time.Now().UTC(),
	}
}

// Store loads the schema definition at startup and persists promotions.
// Implementations never overwrite or remove existing fields.
type Store interface {
	Load(ctx context.Context) (*Model, error)
	Append(ctx context.Context, fields []CanonicalField) ([]string, error)
	AppendSynonyms(ctx context.Context, synonyms map[string][]string) (map[string][]string, error)
	RecordChanges(ctx context.Context, changes []Change) error
}

// FileStore keeps the definition in a single JSON or YAML file.
type FileStore struct {
	path   string
	format Format

	mu sync.Mutex
}

// NewFileStore returns a store for path; the format follows the extension.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, format: FormatFromPath(path)}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the definition. A missing file yields ErrNotFound.
func (s *FileStore) Load(ctx context.Context) (*Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*Model, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("open schema: %w", err)
	}
	defer f.Close()

	m, err := Load(f, s.format)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", s.path, err)
	}
	return m, nil
}

// Save writes the full model, replacing the file atomically.
func (s *FileStore) Save(ctx context.Context, m *Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(m)
}

func (s *FileStore) save(m *Model) error {
	var buf bytes.Buffer
	if err := Encode(&buf, m, s.format); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create schema dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".schema-*")
	if err != nil {
		return fmt.Errorf("create temp schema: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write schema: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}

// Append adds fields whose names are not yet defined and returns the names
// that were added.
func (s *FileStore) Append(ctx context.Context, fields []CanonicalField) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	var added []string
	for _, f := range fields {
		if m.Add(f) {
			added = append(added, f.Name)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}
	if err := s.save(m); err != nil {
		return nil, err
	}
	return added, nil
}

// AppendSynonyms adds new synonyms per field and returns what was added.
func (s *FileStore) AppendSynonyms(ctx context.Context, synonyms map[string][]string) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.load()
	if err != nil {
		return nil, err
	}
	added := make(map[string][]string)
	for _, name := range m.Fields() {
		if got := m.AddSynonyms(name, synonyms[name]); len(got) > 0 {
			added[name] = got
		}
	}
	if len(added) == 0 {
		return added, nil
	}
	if err := s.save(m); err != nil {
		return nil, err
	}
	return added, nil
}

// RecordChanges is a no-op for file storage; the change log is only kept in
// the session.
func (s *FileStore) RecordChanges(ctx context.Context, changes []Change) error {
	return nil
}
