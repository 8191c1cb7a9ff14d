package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/api"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// shutdownTimeout bounds how long in-flight requests may take after a signal.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the correlation engine and case database over HTTP",
		Long: `Serve starts a JSON HTTP API over one shared correlation engine and the case
database. Repetition counts accumulate across requests until reset.

Guard selection estimates use the newest stored snapshot at startup.
The server binds to loopback by default; results identify cases, so only
expose it behind an authenticating proxy.

Examples:
  torcorrelate serve
  torcorrelate serve --listen 127.0.0.1:9090 --profile time_focused`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
	cmd.Flags().StringP("listen", "l", "", "Listen address (default 127.0.0.1:8080)")
	cmd.Flags().StringP("profile", "p", "", "Initial weight profile")
	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		if cfg.ListenAddress, err = cmd.Flags().GetString("listen"); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("profile") {
		if cfg.Profile, err = cmd.Flags().GetString("profile"); err != nil {
			return err
		}
	}

	logger := newLogger(cmd, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openCaseDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := optionalSnapshot(ctx, db, latestSnapshot)
	if err != nil {
		return fmt.Errorf("failed to load topology snapshot: %w", err)
	}
	var analyzer *topology.Analyzer
	if snap != nil {
		analyzer = topology.NewAnalyzer(snap, topology.WithLogger(logger))
		logger.Info("guard estimates enabled", "snapshot_id", snap.ID)
	} else {
		logger.Warn("no topology snapshot stored, guard estimates are disabled")
	}

	engine, err := newEngine(cfg, analyzer, logger)
	if err != nil {
		return err
	}

	handlerOpts := []api.HandlerOption{
		api.WithLogger(logger),
		api.WithVersion(getVersion()),
	}
	if cfg.File != nil {
		custom, err := cfg.File.CustomProfiles()
		if err != nil {
			return err
		}
		handlerOpts = append(handlerOpts, api.WithCustomProfiles(custom...))
	}

	server := api.NewServer(api.DefaultConfig(cfg.ListenAddress), api.NewHandler(engine, db, handlerOpts...))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()
	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", cfg.ListenAddress)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return <-errCh
}
