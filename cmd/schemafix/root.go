package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/schemafix/internal/config"
	"github.com/JonMunkholm/schemafix/internal/core"
	"github.com/JonMunkholm/schemafix/internal/logging"
)

// app holds state shared by every subcommand.
type app struct {
	envFile    string
	schemaPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
	rt     *core.Runtime
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "schemafix",
		Short: "Map messy spreadsheet headers onto a canonical schema and clean the cells",
		Long: `schemafix reads CSV, TSV and XLSX files, maps their headers onto the
canonical schema, validates every cell and writes a cleaned CSV plus an
issue report. Proposals and learned synonyms can be promoted back into
the schema.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.rt != nil {
				a.rt.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load if present")
	root.PersistentFlags().StringVarP(&a.schemaPath, "schema", "s", "", "schema definition file (overrides SCHEMA_PATH)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newMapCmd(a),
		newCleanCmd(a),
		newSchemaCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if a.envFile != "" {
		// A missing file is fine; the environment may already be populated.
		_ = godotenv.Overload(a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.schemaPath != "" {
		cfg.Schema.Path = a.schemaPath
		cfg.Schema.Store = config.StoreFile
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.verbose {
		level = "debug"
	}
	a.logger = logging.New(cmd.ErrOrStderr(), level, cfg.Logging.Format)
	return nil
}

// runtime opens the store and engines on first use.
func (a *app) runtime(ctx context.Context) (*core.Runtime, error) {
	if a.rt != nil {
		return a.rt, nil
	}
	rt, err := core.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, explain(err)
	}
	a.rt = rt
	return rt, nil
}

// parseJSONFlag decodes an optional JSON flag value into v.
func parseJSONFlag(name, value string, v any) error {
	if value == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("--%s: %w", name, err)
	}
	return nil
}

// explain prefixes recognised errors with their user message and code.
func explain(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
}
