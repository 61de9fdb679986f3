package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/schemafix/internal/clean"
	"github.com/JonMunkholm/schemafix/internal/core"
	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/schema"
)

type cleanOptions struct {
	outDir     string
	overrides  string
	extra      string
	assist     bool
	applyFixes bool
	jobs       int
}

func newCleanCmd(a *app) *cobra.Command {
	opts := &cleanOptions{}
	cmd := &cobra.Command{
		Use:   "clean FILE...",
		Short: "Map, validate and clean one or more files",
		Long: `clean runs a full pass over each file and writes two outputs next to
each other in --out:

  <name>.clean.csv     canonical columns in schema order
  <name>.issues.json   mapping, issues, proposals and candidate synonyms

Files are processed in parallel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runClean(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&opts.overrides, "overrides", "", `header overrides as JSON, e.g. {"Cust Mail":"email","Notes":""}`)
	cmd.Flags().StringVar(&opts.extra, "extra-synonyms", "", "learned synonyms as JSON")
	cmd.Flags().BoolVar(&opts.assist, "assist", false, "use the assistant for headers, repairs and proposals")
	cmd.Flags().BoolVar(&opts.applyFixes, "apply-fixes", false, "write suggested values into the cleaned output")
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 0, "files processed at once (default UPLOAD_MAX_CONCURRENT)")
	return cmd
}

// report is the issues file written next to each cleaned CSV. It is also the
// input of "schema promote".
type report struct {
	SessionID         uuid.UUID              `json:"session_id"`
	Source            string                 `json:"source"`
	Mapping           mapping.Mapping        `json:"mapping"`
	Unmatched         []string               `json:"unmatched"`
	Issues            []clean.Issue          `json:"issues"`
	Proposals         []schema.FieldProposal `json:"proposals"`
	CandidateSynonyms map[string][]string    `json:"candidate_synonyms"`
	Rows              int                    `json:"rows"`
	Fixed             int                    `json:"fixed"`
}

type cleanResult struct {
	input  string
	output string
	report report
}

func (a *app) runClean(cmd *cobra.Command, paths []string, opts *cleanOptions) error {
	var overrides map[string]string
	if err := parseJSONFlag("overrides", opts.overrides, &overrides); err != nil {
		return err
	}
	var extra map[string][]string
	if err := parseJSONFlag("extra-synonyms", opts.extra, &extra); err != nil {
		return err
	}

	if err := checkOutputNames(paths); err != nil {
		return err
	}

	rt, err := a.runtime(cmd.Context())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	jobs := opts.jobs
	if jobs <= 0 {
		jobs = a.cfg.Upload.MaxConcurrent
	}

	results := make([]cleanResult, len(paths))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(jobs)
	for i, path := range paths {
		g.Go(func() error {
			res, err := cleanFile(ctx, rt.Service, path, opts.outDir, core.ReconcileRequest{
				Overrides:  overrides,
				Extra:      extra,
				Assist:     opts.assist,
				ApplyFixes: opts.applyFixes,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", path, explain(err))
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, res := range results {
		fmt.Fprintf(out, "%s -> %s (%d rows, %d issues, %d fixed, %d unmatched)\n",
			res.input, res.output, res.report.Rows, len(res.report.Issues), res.report.Fixed, len(res.report.Unmatched))
	}
	return nil
}

func outputStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// checkOutputNames rejects inputs that would write the same output files,
// since they run in parallel into one directory.
func checkOutputNames(paths []string) error {
	owner := make(map[string]string, len(paths))
	for _, p := range paths {
		stem := outputStem(p)
		if prev, ok := owner[stem]; ok {
			return fmt.Errorf("%s and %s both write %s.clean.csv", prev, p, stem)
		}
		owner[stem] = p
	}
	return nil
}

// cleanFile runs one pass and writes its outputs.
func cleanFile(ctx context.Context, svc *core.Service, path, outDir string, req core.ReconcileRequest) (cleanResult, error) {
	tbl, err := readTable(path)
	if err != nil {
		return cleanResult{}, err
	}
	req.Table = tbl

	sess, err := svc.Reconcile(ctx, req)
	if err != nil {
		return cleanResult{}, err
	}

	var csvBuf bytes.Buffer
	if err := svc.Export(&csvBuf, sess); err != nil {
		return cleanResult{}, err
	}

	rep := report{
		SessionID:         sess.ID,
		Source:            filepath.Base(path),
		Mapping:           sess.Mapping,
		Unmatched:         nonNil(sess.Unmatched),
		Issues:            nonNil(sess.Issues),
		Proposals:         nonNil(sess.Proposals()),
		CandidateSynonyms: sess.CandidateSynonyms(),
		Rows:              sess.Result().Len(),
		Fixed:             sess.Fixed,
	}
	repBuf, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return cleanResult{}, fmt.Errorf("encode report: %w", err)
	}

	stem := outputStem(path)
	csvPath := filepath.Join(outDir, stem+".clean.csv")
	if err := os.WriteFile(csvPath, csvBuf.Bytes(), 0o644); err != nil {
		return cleanResult{}, err
	}
	if err := os.WriteFile(filepath.Join(outDir, stem+".issues.json"), append(repBuf, '\n'), 0o644); err != nil {
		return cleanResult{}, err
	}
	return cleanResult{input: path, output: csvPath, report: rep}, nil
}

// promotable is the part of a report "schema promote" reads back.
type promotable struct {
	SessionID         uuid.UUID              `json:"session_id"`
	Proposals         []schema.FieldProposal `json:"proposals"`
	CandidateSynonyms map[string][]string    `json:"candidate_synonyms"`
}

// readReport loads an issues file written by clean.
func readReport(path string) (promotable, error) {
	var rep promotable
	raw, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(raw, &rep); err != nil {
		return rep, fmt.Errorf("decode report %s: %w", path, err)
	}
	return rep, nil
}
