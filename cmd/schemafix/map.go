package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schemafix/internal/mapping"
	"github.com/JonMunkholm/schemafix/internal/table"
)

type mapOptions struct {
	assist bool
	extra  string
	asJSON bool
}

func newMapCmd(a *app) *cobra.Command {
	opts := &mapOptions{}
	cmd := &cobra.Command{
		Use:   "map FILE",
		Short: "Show how a file's headers map onto the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMap(cmd, args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.assist, "assist", false, "ask the assistant about headers the cascade leaves unmatched")
	cmd.Flags().StringVar(&opts.extra, "extra-synonyms", "", `learned synonyms as JSON, e.g. {"email":["Contact Mail"]}`)
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the mapping as JSON")
	return cmd
}

func (a *app) runMap(cmd *cobra.Command, path string, opts *mapOptions) error {
	var extra map[string][]string
	if err := parseJSONFlag("extra-synonyms", opts.extra, &extra); err != nil {
		return err
	}

	rt, err := a.runtime(cmd.Context())
	if err != nil {
		return err
	}

	tbl, err := readTable(path)
	if err != nil {
		return explain(err)
	}

	m, unmatched, err := rt.Service.MapHeaders(cmd.Context(), tbl.Headers, extra, opts.assist)
	if err != nil {
		return explain(err)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Mapping   mapping.Mapping `json:"mapping"`
			Unmatched []string        `json:"unmatched"`
		}{m, nonNil(unmatched)})
	}
	return printMapping(out, m)
}

func printMapping(w io.Writer, m mapping.Mapping) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tCANONICAL\tMETHOD\tCONFIDENCE")
	for _, r := range m.Results() {
		canonical := r.Canonical
		if canonical == "" {
			canonical = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Source, canonical, r.Method, strconv.FormatFloat(r.Confidence, 'f', 2, 64))
	}
	return tw.Flush()
}

func readTable(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return table.Read(path, f)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
