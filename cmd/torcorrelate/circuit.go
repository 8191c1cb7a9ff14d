package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/api"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/report"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// NewCircuitCmd creates the circuit command.
func NewCircuitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit <guard> <middle> <exit>",
		Short: "Check a guard/middle/exit hypothesis against a snapshot",
		Long: `Circuit checks whether three relays, given by fingerprint, could form a
Tor circuit: the first must be a guard, the last an exit, no two may share
a /16 subnet and all three must be Running and Valid.

The command exits with an error when the circuit is not valid.

Examples:
  torcorrelate circuit 9695DFC35FFEB861329B9F1AB04C46397020CE31 \
    ABCDEF0123456789ABCDEF0123456789ABCDEF01 \
    0123456789ABCDEF0123456789ABCDEF01234567`,
		Args: cobra.ExactArgs(3),
		RunE: runCircuitCmd,
	}
	cmd.Flags().StringP("snapshot", "s", latestSnapshot, "Snapshot id")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

// errInvalidCircuit is returned after the violations have been printed.
var errInvalidCircuit = errors.New("circuit is not valid")

// runCircuitCmd executes the circuit command.
func runCircuitCmd(cmd *cobra.Command, args []string) error {
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

	id, err := cmd.Flags().GetString("snapshot")
	if err != nil {
		return err
	}
	snap, err := loadSnapshot(cmd.Context(), db, id)
	if err != nil {
		return fmt.Errorf("failed to load snapshot %q: %w", id, err)
	}

	guard := strings.ToUpper(args[0])
	middle := strings.ToUpper(args[1])
	exit := strings.ToUpper(args[2])

	analyzer := topology.NewAnalyzer(snap, topology.WithLogger(logger))
	valid, violations := analyzer.IsValidCircuit(guard, middle, exit)
	if violations == nil {
		violations = []string{}
	}
	resp := api.CircuitResponse{
		Valid:                     valid,
		Violations:                violations,
		SnapshotID:                snap.ID,
		GuardSelectionProbability: analyzer.EstimateGuardSelectionProbability(guard),
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON { //nolint:errcheck // flag is defined above
		if _, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(resp); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Snapshot: %s\n", resp.SnapshotID)
		fmt.Fprintf(out, "Circuit:  %s -> %s -> %s\n",
			model.ShortFingerprint(guard), model.ShortFingerprint(middle), model.ShortFingerprint(exit))
		if valid {
			fmt.Fprintln(out, "Result:   valid")
		} else {
			fmt.Fprintln(out, "Result:   INVALID")
			for _, v := range violations {
				fmt.Fprintf(out, "  - %s\n", v)
			}
		}
		fmt.Fprintf(out, "Guard selection probability: %.3f%%\n", resp.GuardSelectionProbability)
		fmt.Fprintf(out, "Guards compatible with this exit: %d\n", len(analyzer.CompatibleGuardsForExit(exit)))
	}

	if !valid {
		return errInvalidCircuit
	}
	return nil
}
