package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/config"
	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/pipeline"
	"github.com/nao1215/torcorrelate/internal/synthetic"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [observation-file ...]",
		Short: "Correlate entry and exit observations",
		Long: `Analyze pairs entry and exit observations, scores every pair, clusters pairs
by their hypothesized guard relay and checks each hypothesis against the
latest relay directory snapshot (see 'torcorrelate topology fetch').

Observation files are JSON: either an array of observations or an object
{"case_number": "...", "observations": [...]}. Each file is one case. Several
files are analyzed concurrently, each with its own correlation engine.

Examples:
  # Analyze one case
  torcorrelate analyze case-42.json

  # Analyze several cases, two at a time
  torcorrelate analyze --batch 2 case-42.json case-43.json

  # Try the engine on generated data
  torcorrelate analyze --synthetic --sessions 12 --noise 40

  # Prioritize timing and write a Markdown report
  torcorrelate analyze --profile time_focused --markdown -o report.md case-42.json`,
		Args: cobra.ArbitraryArgs,
		RunE: runAnalyzeCmd,
	}

	// Input flags
	cmd.Flags().StringP("case", "C", "",
		"Case number for a single input (default: from the file)")
	cmd.Flags().BoolP("synthetic", "S", false,
		"Analyze generated observations instead of files")
	cmd.Flags().Int("sessions", synthetic.DefaultScenario().Sessions,
		"Synthetic: sessions of the simulated user")
	cmd.Flags().Int("noise", synthetic.DefaultScenario().Noise,
		"Synthetic: unrelated entry/exit observation pairs")
	cmd.Flags().Uint64("seed", 1,
		"Synthetic: random seed")

	// Engine flags
	cmd.Flags().StringP("profile", "p", "",
		"Weight profile: a preset or a profile from the config file")
	cmd.Flags().Duration("time-window", config.NewConfig().TimeWindow,
		"Largest entry/exit gap that is scored")
	cmd.Flags().Float64("min-confidence", config.NewConfig().MinConfidence,
		"Drop pairs weaker than this strength (0-100)")
	cmd.Flags().Int("min-cluster", config.NewConfig().MinObservationsForCluster,
		"Pairs sharing a guard needed to form a cluster")
	cmd.Flags().Bool("no-repetition", false,
		"Disable repetition weighting")
	cmd.Flags().StringP("snapshot", "s", "",
		"Topology snapshot id for guard estimates and circuit checks (default: latest)")

	// Batch and persistence flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of cases analyzed concurrently")
	cmd.Flags().Bool("no-save", false,
		"Do not store observations and results in the case database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// analyzeOptions are the analyze flags that do not live in config.Config.
type analyzeOptions struct {
	sessions int
	noise    int
	seed     uint64
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, opts, err := buildAnalyzeConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.ValidateInputs(); err != nil {
		return err
	}

	logger := newLogger(cmd, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openCaseDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := optionalSnapshot(ctx, db, cfg.SnapshotID)
	if err != nil {
		return fmt.Errorf("failed to load topology snapshot: %w", err)
	}

	var cases []pipeline.Case
	if cfg.Synthetic {
		if snap == nil {
			logger.Warn("no topology snapshot stored, using the built-in demo topology")
			snap = synthetic.DemoSnapshot(opts.seed, time.Now())
		}
		c, err := syntheticCase(cfg, opts, snap)
		if err != nil {
			return err
		}
		cases = append(cases, c)
	} else {
		now := time.Now()
		for _, path := range cfg.Inputs {
			number, obs, err := readCaseFile(path, now)
			if err != nil {
				return err
			}
			if cfg.CaseNumber != "" && len(cfg.Inputs) == 1 {
				number = cfg.CaseNumber
			}
			cases = append(cases, pipeline.Case{Number: number, Observations: obs})
		}
	}

	var analyzer *topology.Analyzer
	if snap != nil {
		analyzer = topology.NewAnalyzer(snap, topology.WithLogger(logger))
	} else {
		logger.Warn("no topology snapshot stored, guard estimates and circuit checks are skipped " +
			"(run 'torcorrelate topology fetch' first)")
	}

	// Probe once so that a bad profile or setting is reported before any work.
	if _, err := newEngine(cfg, analyzer, logger); err != nil {
		return err
	}

	out, closeOut, err := openOutput(cfg.ReportFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut() //nolint:errcheck // report errors are returned from Write

	var store pipeline.Store
	if cfg.SaveToDB {
		store = db
	}

	return runAnalysis(ctx, cfg, cases, analyzer, store, out, logger)
}

// buildAnalyzeConfig applies analyze flags on top of the loaded configuration.
// Engine flags only override the file when they were given explicitly.
func buildAnalyzeConfig(cmd *cobra.Command, args []string) (*config.Config, analyzeOptions, error) {
	var opts analyzeOptions

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, opts, err
	}

	flags := cmd.Flags()
	if flags.Changed("profile") {
		if cfg.Profile, err = flags.GetString("profile"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("time-window") {
		if cfg.TimeWindow, err = flags.GetDuration("time-window"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("min-confidence") {
		if cfg.MinConfidence, err = flags.GetFloat64("min-confidence"); err != nil {
			return nil, opts, err
		}
	}
	if flags.Changed("min-cluster") {
		if cfg.MinObservationsForCluster, err = flags.GetInt("min-cluster"); err != nil {
			return nil, opts, err
		}
	}
	noRepetition, err := flags.GetBool("no-repetition")
	if err != nil {
		return nil, opts, err
	}
	if noRepetition {
		cfg.RepetitionEnabled = false
	}

	if cfg.CaseNumber, err = flags.GetString("case"); err != nil {
		return nil, opts, err
	}
	if cfg.Synthetic, err = flags.GetBool("synthetic"); err != nil {
		return nil, opts, err
	}
	if cfg.SnapshotID, err = flags.GetString("snapshot"); err != nil {
		return nil, opts, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, opts, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, opts, err
	}
	cfg.SaveToDB = !noSave

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, opts, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, opts, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, opts, err
	}

	if opts.sessions, err = flags.GetInt("sessions"); err != nil {
		return nil, opts, err
	}
	if opts.noise, err = flags.GetInt("noise"); err != nil {
		return nil, opts, err
	}
	if opts.seed, err = flags.GetUint64("seed"); err != nil {
		return nil, opts, err
	}

	cfg.Inputs = args

	if err := cfg.Validate(); err != nil {
		return nil, opts, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, opts, nil
}

// syntheticCase generates one case over the relays of snap.
func syntheticCase(cfg *config.Config, opts analyzeOptions, snap *model.TopologySnapshot) (pipeline.Case, error) {
	gen, err := synthetic.NewGenerator(topology.NewAnalyzer(snap), synthetic.WithSeed(opts.seed))
	if err != nil {
		return pipeline.Case{}, fmt.Errorf("failed to create synthetic generator: %w", err)
	}

	scenario := synthetic.DefaultScenario()
	scenario.Sessions = opts.sessions
	scenario.Noise = opts.noise
	if cfg.CaseNumber != "" {
		scenario.CaseNumber = cfg.CaseNumber
	}

	obs, err := gen.Generate(snap.ValidAfter.Add(-scenario.Spread), scenario)
	if err != nil {
		return pipeline.Case{}, err
	}
	return pipeline.Case{Number: scenario.CaseNumber, Observations: obs}, nil
}

// runAnalysis analyzes the cases and writes one report per case to out.
//
// Design decision: every case gets its own engine, so repetition counts
// from one case never boost pairs of another.
func runAnalysis(
	ctx context.Context,
	cfg *config.Config,
	cases []pipeline.Case,
	analyzer *topology.Analyzer,
	store pipeline.Store,
	out io.Writer,
	logger *slog.Logger,
) error {
	factory := func() *pipeline.Pipeline {
		// Settings and profile were validated by the probe in runAnalyzeCmd.
		engine, _ := newEngine(cfg, analyzer, logger) //nolint:errcheck // validated above
		return pipeline.NewAnalysisPipeline(engine,
			pipeline.AnalysisConfig{Analyzer: analyzer, Store: store},
			pipeline.WithLogger(logger),
		)
	}

	writer := newReportWriter(cfg, out)

	if len(cases) == 1 {
		report := model.NewAnalysisReport(cases[0].Number, cases[0].Observations)
		if err := factory().Execute(ctx, report); err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		_, err := writer.Write(report)
		return err
	}

	bp := pipeline.NewBatchProcessor(factory,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Reports are written in completion order, one at a time.
	var (
		mu       sync.Mutex
		failed   int
		writeErr error
	)
	err := bp.ProcessBatchWithCallback(ctx, cases, func(report *model.AnalysisReport, _ int) {
		mu.Lock()
		defer mu.Unlock()

		if report.Error != "" {
			failed++
		}
		if _, err := writer.Write(report); err != nil && writeErr == nil {
			writeErr = err
		}
	})
	if err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write report: %w", writeErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cases failed", failed, len(cases))
	}
	return nil
}

var _ pipeline.Store = (*database.CaseDB)(nil)
