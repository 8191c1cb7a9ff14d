package main

import (
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/config"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/onionoo"
	"github.com/nao1215/torcorrelate/internal/report"
	"github.com/nao1215/torcorrelate/internal/tor"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// defaultTopRelays is how many guards and exits 'topology show' lists.
const defaultTopRelays = 10

// NewTopologyCmd creates the topology command and its subcommands.
func NewTopologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Fetch and inspect relay directory snapshots",
		Long: `Topology manages the relay directory snapshots used to estimate guard
selection probabilities and to check circuit hypotheses.

Snapshots are fetched from an Onionoo instance and stored in the case
database. Fetching an unchanged consensus again reuses the stored snapshot.`,
	}

	cmd.AddCommand(newTopologyFetchCmd())
	cmd.AddCommand(newTopologyListCmd())
	cmd.AddCommand(newTopologyShowCmd())

	return cmd
}

func newTopologyFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the running relays and store a snapshot",
		Long: `Fetch downloads the details of every running relay from Onionoo and stores
them as a snapshot in the case database.

By default the request goes straight to the directory. Use --tor to start
an embedded Tor daemon (requires tor in PATH) or --external-tor to use a
running SOCKS5 proxy.

Examples:
  # Fetch directly
  torcorrelate topology fetch

  # Fetch through the system Tor service
  torcorrelate topology fetch --external-tor 127.0.0.1:9050

  # Fetch 500 relays through an embedded daemon and keep the raw response
  torcorrelate topology fetch --tor --limit 500 --cache-raw`,
		Args: cobra.NoArgs,
		RunE: runTopologyFetchCmd,
	}

	cmd.Flags().Int("limit", 0,
		"Maximum number of relays to fetch (0 for all)")
	cmd.Flags().String("onionoo-url", "",
		"Onionoo base URL (default "+config.DefaultOnionooURL+")")
	cmd.Flags().Bool("tor", false,
		"Fetch through an embedded Tor daemon (requires tor in PATH)")
	cmd.Flags().StringP("external-tor", "e", "",
		"Fetch through an external Tor SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor daemon startup")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for the directory request")
	cmd.Flags().Bool("cache-raw", false,
		"Keep the raw directory response in the cache directory")

	return cmd
}

// runTopologyFetchCmd executes 'topology fetch'.
func runTopologyFetchCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyFetchFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := torMode(cfg)
	if mode == tor.ModeEmbedded {
		fmt.Fprintln(cmd.ErrOrStderr(), "Starting embedded Tor daemon (this may take a while)...")
	}
	session, err := tor.Connect(ctx, tor.Options{
		Mode:           mode,
		ProxyAddress:   cfg.TorProxyAddress,
		Timeout:        cfg.Timeout,
		StartupTimeout: cfg.TorStartupTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to stop tor", "error", err)
		}
	}()

	opts := []onionoo.Option{
		onionoo.WithHTTPClient(session.HTTPClient()),
		onionoo.WithLogger(logger),
	}
	cacheRaw, err := cmd.Flags().GetBool("cache-raw")
	if err != nil {
		return err
	}
	if cacheRaw {
		opts = append(opts, onionoo.WithCacheDir(filepath.Join(config.XDGCacheDir(), "onionoo")))
	}

	client := onionoo.NewClient(cfg.OnionooURL, opts...)
	snap, err := client.FetchSnapshot(ctx, cfg.RelayLimit)
	if err != nil {
		return err
	}

	db, err := openCaseDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	id, created, err := db.SaveSnapshot(ctx, snap)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if created {
		fmt.Fprintf(out, "Stored snapshot %s\n", id)
	} else {
		fmt.Fprintf(out, "Consensus unchanged, reusing snapshot %s\n", id)
	}
	fmt.Fprintf(out, "  relays: %d  guards: %d  exits: %d  via: %s\n",
		snap.TotalRelays, snap.GuardCount, snap.ExitCount, session.Mode())
	return nil
}

// applyFetchFlags copies explicitly given fetch flags onto cfg.
func applyFetchFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("limit") {
		if cfg.RelayLimit, err = flags.GetInt("limit"); err != nil {
			return err
		}
	}
	if flags.Changed("onionoo-url") {
		if cfg.OnionooURL, err = flags.GetString("onionoo-url"); err != nil {
			return err
		}
	}
	if flags.Changed("tor") {
		if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
			return err
		}
		cfg.UseExternalTor = false
	}
	if flags.Changed("external-tor") {
		externalTor, err := flags.GetString("external-tor")
		if err != nil {
			return err
		}
		cfg.UseTor = true
		cfg.UseExternalTor = true
		cfg.TorProxyAddress = externalTor
	}
	if flags.Changed("tor-timeout") {
		if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	return nil
}

// torMode maps the Tor settings onto a session mode.
func torMode(cfg *config.Config) tor.Mode {
	switch {
	case !cfg.UseTor:
		return tor.ModeDirect
	case cfg.UseExternalTor:
		return tor.ModeExternal
	default:
		return tor.ModeEmbedded
	}
}

func newTopologyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE:  runTopologyListCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

// runTopologyListCmd executes 'topology list'.
func runTopologyListCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.Verbose)

	db, err := openCaseDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	snapshots, err := db.ListSnapshots(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON { //nolint:errcheck // flag is defined above
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(snapshots)
		return err
	}

	if len(snapshots) == 0 {
		fmt.Fprintln(out, "No snapshots stored. Run 'torcorrelate topology fetch' first.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SNAPSHOT\tCAPTURED\tRELAYS\tGUARDS\tEXITS\tDIGEST")
	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			s.ID,
			s.CapturedAt.Format(time.RFC3339),
			s.TotalRelays,
			s.GuardRelays,
			s.ExitRelays,
			shortDigest(s.Digest),
		)
	}
	return tw.Flush()
}

func newTopologyShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [snapshot-id]",
		Short: "Show a snapshot and its heaviest guards and exits",
		Long: `Show prints the aggregates of a snapshot (the newest one by default) and
lists its heaviest guard and exit relays with their estimated guard
selection probability.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTopologyShowCmd,
	}
	cmd.Flags().IntP("top", "n", defaultTopRelays, "Number of guards and exits to list")
	cmd.Flags().BoolP("json", "j", false, "Output the full snapshot as JSON")
	return cmd
}

// runTopologyShowCmd executes 'topology show'.
func runTopologyShowCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg.Verbose)

	db, err := openCaseDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	id := latestSnapshot
	if len(args) == 1 {
		id = args[0]
	}
	snap, err := loadSnapshot(cmd.Context(), db, id)
	if err != nil {
		return fmt.Errorf("failed to load snapshot %q: %w", id, err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON { //nolint:errcheck // flag is defined above
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(snap)
		return err
	}

	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}
	return writeSnapshot(out, snap, top)
}

// writeSnapshot prints the snapshot aggregates and its top relays.
func writeSnapshot(out io.Writer, snap *model.TopologySnapshot, top int) error {
	analyzer := topology.NewAnalyzer(snap)

	fmt.Fprintf(out, "Snapshot:     %s\n", snap.ID)
	fmt.Fprintf(out, "Valid after:  %s\n", snap.ValidAfter.Format(time.RFC3339))
	fmt.Fprintf(out, "Valid until:  %s\n", snap.ValidUntil.Format(time.RFC3339))
	fmt.Fprintf(out, "Relays:       %d (guards %d, exits %d)\n", snap.TotalRelays, snap.GuardCount, snap.ExitCount)
	fmt.Fprintf(out, "Bandwidth:    %d B/s total, %.0f B/s average\n", snap.TotalBandwidth, snap.AverageBandwidth)
	fmt.Fprintf(out, "Digest:       %s\n", snap.Digest)

	if err := writeRelayTable(out, "Top guards", analyzer.Guards(), top, analyzer); err != nil {
		return err
	}
	return writeRelayTable(out, "Top exits", analyzer.Exits(), top, analyzer)
}

// writeRelayTable lists up to top relays. The probability column is only
// meaningful for guards and is left empty for relays without the Guard flag.
func writeRelayTable(out io.Writer, title string, relays []model.Relay, top int, analyzer *topology.Analyzer) error {
	fmt.Fprintf(out, "\n%s:\n", title)
	if len(relays) == 0 {
		fmt.Fprintln(out, "  (none)")
		return nil
	}
	if top > 0 && len(relays) > top {
		relays = relays[:top]
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  FINGERPRINT\tNICKNAME\tADDRESS\tWEIGHT\tGUARD PROB")
	for _, r := range relays {
		prob := ""
		if r.IsGuard() {
			prob = fmt.Sprintf("%.3f%%", analyzer.EstimateGuardSelectionProbability(r.Fingerprint))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%s\n",
			r.ShortFingerprint(), r.Nickname, r.Address, r.ConsensusWeight, prob)
	}
	return tw.Flush()
}

// shortDigest abbreviates a digest for tables.
func shortDigest(d string) string {
	if len(d) <= 12 {
		return d
	}
	return d[:12]
}
