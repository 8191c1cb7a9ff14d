package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/config"
	"github.com/nao1215/torcorrelate/internal/correlation"
	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/log"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/report"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// latestSnapshot selects the newest stored snapshot.
const latestSnapshot = "latest"

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// newLogger creates the secure logger used by every command and makes it
// the process default so library packages pick it up.
func newLogger(cmd *cobra.Command, verbose bool) *slog.Logger {
	logger := log.NewSecureLogger(cmd.ErrOrStderr(), verbose)
	slog.SetDefault(logger)
	return logger
}

// loadConfig builds a Config from defaults, the configuration file and the
// global flags.
//
// If the user explicitly specified a config file path, a missing file is an
// error. Otherwise the defaults are used silently.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	if f := cmd.Flags().Lookup("config"); f != nil {
		cfg.ConfigFilePath = f.Value.String()
	}

	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case explicitConfigPath:
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if f := cmd.Flags().Lookup("db-dir"); f != nil && f.Value.String() != "" {
		cfg.DBDir = f.Value.String()
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// openCaseDB opens the case database in cfg.DBDir.
func openCaseDB(cfg *config.Config, logger *slog.Logger) (*database.CaseDB, error) {
	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", db.Path())
	return db, nil
}

// loadSnapshot returns the snapshot with the given id, or the newest one
// when id is empty or "latest".
func loadSnapshot(ctx context.Context, db *database.CaseDB, id string) (*model.TopologySnapshot, error) {
	if id == "" || id == latestSnapshot {
		return db.LatestSnapshot(ctx)
	}
	return db.GetSnapshot(ctx, id)
}

// optionalSnapshot is loadSnapshot for commands that can run without a
// topology. A missing latest snapshot yields nil, a missing named one fails.
func optionalSnapshot(ctx context.Context, db *database.CaseDB, id string) (*model.TopologySnapshot, error) {
	snap, err := loadSnapshot(ctx, db, id)
	if err == nil {
		return snap, nil
	}
	if errors.Is(err, database.ErrNotFound) && (id == "" || id == latestSnapshot) {
		return nil, nil
	}
	return nil, err
}

// newEngine creates a correlation engine for cfg. A nil analyzer leaves the
// engine without guard selection estimates.
func newEngine(cfg *config.Config, analyzer *topology.Analyzer, logger *slog.Logger) (*correlation.Engine, error) {
	profile, err := cfg.ResolveProfile()
	if err != nil {
		return nil, err
	}

	opts := []correlation.Option{
		correlation.WithWeightProfile(profile),
		correlation.WithLogger(logger),
	}
	if analyzer != nil {
		opts = append(opts, correlation.WithGuardEstimator(analyzer))
	}

	engine, err := correlation.NewEngine(cfg.EngineSettings(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create correlation engine: %w", err)
	}
	return engine, nil
}

// openOutput returns the report destination: the file at path or fallback.
// The returned close function is never nil.
func openOutput(path string, fallback io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return fallback, func() error { return nil }, nil
	}
	if err := ensureParentDir(path); err != nil {
		return nil, nil, err
	}

	// Reports identify cases and relays, so only the owner may read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter picks the writer for the requested format.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
