package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

func newSchemaCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and evolve the canonical schema",
	}
	cmd.AddCommand(
		newSchemaShowCmd(a),
		newSchemaInitCmd(a),
		newSchemaPromoteCmd(a),
		newSchemaChangesCmd(a),
	)
	return cmd
}

func newSchemaShowCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the canonical fields in schema order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			model := rt.Service.Schema()
			switch format {
			case "table":
				return printFields(cmd.OutOrStdout(), model)
			case string(schema.FormatJSON), string(schema.FormatYAML):
				return schema.Encode(cmd.OutOrStdout(), model, schema.Format(format))
			default:
				return fmt.Errorf("--format must be table, json or yaml, got %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "output format: table, json or yaml")
	return cmd
}

func printFields(w io.Writer, model *schema.Model) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHEADER\tTYPE\tSYNONYMS")
	for _, f := range model.All() {
		typ := f.Type
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.DisplayHeader(), typ, strings.Join(f.Synonyms, ", "))
	}
	return tw.Flush()
}

func newSchemaInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the bundled order schema to PATH (default SCHEMA_PATH)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Schema.Path
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			model, err := schema.DefaultOrders()
			if err != nil {
				return err
			}
			if err := schema.NewFileStore(path).Save(cmd.Context(), model); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d fields to %s\n", model.Len(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newSchemaPromoteCmd(a *app) *cobra.Command {
	var (
		withProposals bool
		withSynonyms  bool
	)
	cmd := &cobra.Command{
		Use:   "promote REPORT.json",
		Short: "Append proposals and learned synonyms from a clean report",
		Long: `promote reads an issues file written by "schemafix clean" and appends its
header proposals and candidate synonyms to the schema. Existing fields are
never modified or removed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := readReport(args[0])
			if err != nil {
				return err
			}
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}

			var changes []schema.Change
			if withProposals && len(rep.Proposals) > 0 {
				c, err := rt.Service.PromoteProposals(cmd.Context(), rep.SessionID, rep.Proposals)
				if err != nil {
					return explain(err)
				}
				changes = append(changes, c...)
			}
			if withSynonyms && len(rep.CandidateSynonyms) > 0 {
				c, err := rt.Service.PromoteSynonyms(cmd.Context(), rep.SessionID, rep.CandidateSynonyms)
				if err != nil {
					return explain(err)
				}
				changes = append(changes, c...)
			}

			if len(changes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema unchanged")
				return nil
			}
			return printChanges(cmd.OutOrStdout(), changes)
		},
	}
	cmd.Flags().BoolVar(&withProposals, "proposals", true, "append proposed fields")
	cmd.Flags().BoolVar(&withSynonyms, "synonyms", false, "append candidate synonyms")
	return cmd
}

func newSchemaChangesCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "List recent schema changes (postgres store only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			changes, err := rt.Service.Changes(cmd.Context(), limit)
			if err != nil {
				return explain(err)
			}
			return printChanges(cmd.OutOrStdout(), changes)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of changes")
	return cmd
}

func printChanges(w io.Writer, changes []schema.Change) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tCANONICAL\tDETAIL")
	for _, c := range changes {
		detail := c.Synonym
		switch {
		case c.Suggest != "":
			detail = c.Source + " -> " + c.Suggest
		case detail == "":
			detail = c.Source
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Action, c.Canonical, detail)
	}
	return tw.Flush()
}
