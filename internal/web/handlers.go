package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/core"
	"github.com/JonMunkholm/schemafix/internal/logging"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/reconcile"
	"github.com/JonMunkholm/schemafix/internal/schema"
	"github.com/JonMunkholm/schemafix/internal/table"
)

// errBadRequest marks malformed request bodies and form fields.
var errBadRequest = errors.New("bad request")

// maxJSONBody caps the JSON endpoints; files go through /reconcile.
const maxJSONBody = 1 << 20

// ---- Health ----

// HealthResponse reports liveness plus pass limiter usage.
type HealthResponse struct {
	Status string                 `json:"status"`
	Fields int                    `json:"fields"`
	Assist bool                   `json:"assist"`
	Passes core.PassLimiterStatus `json:"passes"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status: "ok",
		Fields: s.service.Schema().Len(),
		Assist: s.service.AssistEnabled(),
		Passes: s.service.PassStatus(),
	})
}

// ---- Schema ----

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Schema())
}

func (s *Server) handleSchemaChanges(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	changes, err := s.service.Changes(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if changes == nil {
		changes = []schema.Change{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"changes": changes})
}

// PromoteProposalsRequest is the body of POST /api/schema/proposals.
type PromoteProposalsRequest struct {
	SessionID uuid.UUID              `json:"session_id"`
	Proposals []schema.FieldProposal `json:"proposals"`
}

// PromoteSynonymsRequest is the body of POST /api/schema/synonyms.
type PromoteSynonymsRequest struct {
	SessionID uuid.UUID           `json:"session_id"`
	Synonyms  map[string][]string `json:"synonyms"`
}

// PromoteResponse lists the schema changes a promotion made.
type PromoteResponse struct {
	Changes []schema.Change `json:"changes"`
}

func (s *Server) handlePromoteProposals(w http.ResponseWriter, r *http.Request) {
	var req PromoteProposalsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == uuid.Nil {
		req.SessionID = uuid.New()
	}

	ctx := withRequestMetadata(r.Context(), r)
	changes, err := s.service.PromoteProposals(ctx, req.SessionID, req.Proposals)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, PromoteResponse{Changes: nonNil(changes)})
}

func (s *Server) handlePromoteSynonyms(w http.ResponseWriter, r *http.Request) {
	var req PromoteSynonymsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == uuid.Nil {
		req.SessionID = uuid.New()
	}

	ctx := withRequestMetadata(r.Context(), r)
	changes, err := s.service.PromoteSynonyms(ctx, req.SessionID, req.Synonyms)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, PromoteResponse{Changes: nonNil(changes)})
}

func nonNil(changes []schema.Change) []schema.Change {
	if changes == nil {
		return []schema.Change{}
	}
	return changes
}

// ---- Mapping ----

// MapRequest is the body of POST /api/map.
type MapRequest struct {
	Headers       []string            `json:"headers"`
	ExtraSynonyms map[string][]string `json:"extra_synonyms,omitempty"`
	Assist        bool                `json:"assist"`
}

// MapResponse carries the mapping in source order.
type MapResponse struct {
	Mapping   mapping.Mapping `json:"mapping"`
	Unmatched []string        `json:"unmatched"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req MapRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Headers) == 0 {
		respondError(w, r, fmt.Errorf("%w: headers are required", errBadRequest), http.StatusBadRequest)
		return
	}

	m, unmatched, err := s.service.MapHeaders(r.Context(), req.Headers, req.ExtraSynonyms, req.Assist)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	if unmatched == nil {
		unmatched = []string{}
	}
	writeJSON(w, r, http.StatusOK, MapResponse{Mapping: m, Unmatched: unmatched})
}

// ---- Reconcile ----

// ReconcileResponse is the full result of one pass.
type ReconcileResponse struct {
	SessionID         uuid.UUID              `json:"session_id"`
	Mapping           mapping.Mapping        `json:"mapping"`
	Unmatched         []string               `json:"unmatched"`
	Columns           []string               `json:"columns"`
	Rows              [][]any                `json:"rows"`
	Issues            []clean.Issue          `json:"issues"`
	Proposals         []schema.FieldProposal `json:"proposals"`
	CandidateSynonyms map[string][]string    `json:"candidate_synonyms"`
	Fixed             int                    `json:"fixed"`
	Source            table.Source           `json:"source"`
}

func newReconcileResponse(sess *reconcile.Session) ReconcileResponse {
	result := sess.Result()
	resp := ReconcileResponse{
		SessionID:         sess.ID,
		Mapping:           sess.Mapping,
		Unmatched:         sess.Unmatched,
		Columns:           result.Headers,
		Rows:              result.Rows,
		Issues:            sess.Issues,
		Proposals:         sess.Proposals(),
		CandidateSynonyms: sess.CandidateSynonyms(),
		Fixed:             sess.Fixed,
		Source:            sess.Raw.Source,
	}
	if resp.Unmatched == nil {
		resp.Unmatched = []string{}
	}
	if resp.Issues == nil {
		resp.Issues = []clean.Issue{}
	}
	if resp.Proposals == nil {
		resp.Proposals = []schema.FieldProposal{}
	}
	return resp
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.runPass(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, newReconcileResponse(sess))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.runPass(w, r)
	if !ok {
		return
	}

	name := strings.TrimSuffix(sess.Raw.Source.Name, filepath.Ext(sess.Raw.Source.Name))
	if name == "" {
		name = "export"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".clean.csv"))
	w.Header().Set("X-Session-ID", sess.ID.String())
	w.Header().Set("X-Issue-Count", strconv.Itoa(len(sess.Issues)))

	if err := s.service.Export(w, sess); err != nil {
		logging.FromContext(r.Context()).Error("export failed", "session_id", sess.ID.String(), "error", err)
	}
}

// runPass reads the multipart upload and runs a reconcile pass. On failure
// the error response is already written.
func (s *Server) runPass(w http.ResponseWriter, r *http.Request) (*reconcile.Session, bool) {
	req, err := s.readReconcileRequest(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return nil, false
	}

	logger := logging.WithFields(r.Context(), "file", req.Table.Source.Name, "rows", req.Table.Len())
	logger.Info("reconcile requested", "assist", req.Assist, "apply_fixes", req.ApplyFixes)

	sess, err := s.service.Reconcile(r.Context(), req)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return nil, false
	}
	return sess, true
}

// readReconcileRequest parses the multipart form: a file field plus
// optional overrides, extra_synonyms (JSON), assist and apply_fixes.
func (s *Server) readReconcileRequest(w http.ResponseWriter, r *http.Request) (core.ReconcileRequest, error) {
	var req core.ReconcileRequest

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, fmt.Errorf("file too large: limit is %d bytes: %w", maxSize, err)
		}
		return req, fmt.Errorf("%w: no file provided: %v", errBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return req, fmt.Errorf("%w: no file provided", errBadRequest)
	}
	defer file.Close()

	tbl, err := table.Read(header.Filename, file)
	if err != nil {
		if !errors.Is(err, table.ErrEmptyInput) && !errors.Is(err, table.ErrUnsupportedFormat) {
			err = fmt.Errorf("%w: %w", errBadRequest, err)
		}
		return req, err
	}
	req.Table = tbl

	if v := r.FormValue("overrides"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Overrides); err != nil {
			return req, fmt.Errorf("%w: overrides must be a JSON object of header to field: %v", errBadRequest, err)
		}
	}
	if v := r.FormValue("extra_synonyms"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Extra); err != nil {
			return req, fmt.Errorf("%w: extra_synonyms must be a JSON object of field to synonyms: %v", errBadRequest, err)
		}
	}
	if req.Assist, err = formBool(r, "assist"); err != nil {
		return req, err
	}
	if req.ApplyFixes, err = formBool(r, "apply_fixes"); err != nil {
		return req, err
	}
	return req, nil
}

func formBool(r *http.Request, name string) (bool, error) {
	v := r.FormValue(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}
	return b, nil
}

// decodeJSON reads a bounded JSON body into v. On failure the 400 response
// is already written.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err), http.StatusBadRequest)
		return false
	}
	return true
}
