package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/torcorrelate/internal/api"
	"github.com/nao1215/torcorrelate/internal/database"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/report"
)

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [run-id]",
		Short: "List stored analyses or show the statistics of one",
		Long: `Stats lists the analysis runs stored in the case database, newest first.

Given a run id, it shows the summary of that run together with the
repetition weighting statistics recorded when it finished.

Examples:
  torcorrelate stats
  torcorrelate stats --case CASE-42
  torcorrelate stats 0b6c6a59-0f3c-4bd2-9a1a-5b0e1b2f3c4d`,
		Args: cobra.MaximumNArgs(1),
		RunE: runStatsCmd,
	}
	cmd.Flags().StringP("case", "C", "", "Only list runs of this case")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

// runStatsCmd executes the stats command.
func runStatsCmd(cmd *cobra.Command, args []string) error {
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

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		caseNumber, err := cmd.Flags().GetString("case")
		if err != nil {
			return err
		}
		runs, err := db.ListAnalyses(cmd.Context(), caseNumber)
		if err != nil {
			return err
		}
		if asJSON {
			_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(runs)
			return err
		}
		return writeAnalysisList(out, runs)
	}

	r, err := db.GetAnalysis(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load analysis %q: %w", args[0], err)
	}
	resp := api.SummaryResponse{
		RunID:      r.RunID,
		CaseNumber: r.CaseNumber,
		Profile:    r.Profile.DisplayName(),
		Summary:    r.Summary,
		Repetition: r.Repetition,
	}
	if asJSON {
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(resp)
		return err
	}
	return writeSummary(out, resp)
}

// writeAnalysisList prints stored runs as a table.
func writeAnalysisList(out io.Writer, runs []database.AnalysisMetadata) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No analyses stored.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCASE\tSTARTED\tPROFILE\tSNAPSHOT\tPAIRS\tHIGH\tCLUSTERS")
	for _, r := range runs {
		snapshot := r.SnapshotID
		if snapshot == "" {
			snapshot = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			r.RunID, r.CaseNumber, r.StartedAt.Format(time.RFC3339), r.ProfileID, snapshot,
			r.TotalPairs, r.HighConfidence, r.TotalClusters)
	}
	return tw.Flush()
}

// writeSummary prints a run summary and its repetition statistics.
func writeSummary(out io.Writer, s api.SummaryResponse) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", s.RunID)
	if s.CaseNumber != "" {
		fmt.Fprintf(tw, "Case:\t%s\n", s.CaseNumber)
	}
	fmt.Fprintf(tw, "Profile:\t%s\n", s.Profile)
	fmt.Fprintf(tw, "Session pairs:\t%d\n", s.Summary.TotalPairs)
	fmt.Fprintf(tw, "Clusters:\t%d\n", s.Summary.TotalClusters)
	fmt.Fprintf(tw, "Average strength:\t%.2f\n", s.Summary.AverageCorrelation)
	d := s.Summary.ConfidenceDistribution
	fmt.Fprintf(tw, "Confidence:\thigh %d, medium %d, low %d\n", d.High, d.Medium, d.Low)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(s.Summary.TopClusters) > 0 {
		fmt.Fprintln(out, "\nTop clusters:")
		tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  CLUSTER\tPAIRS\tCONFIDENCE\tGUARD")
		for _, c := range s.Summary.TopClusters {
			fmt.Fprintf(tw, "  %s\t%d\t%.2f\t%s\n",
				c.ClusterID, c.ObservationCount, c.Confidence, model.ShortFingerprint(c.ProbableGuard))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	return writeRepetition(out, s.Repetition)
}

// writeRepetition prints the repetition table statistics, if recorded.
func writeRepetition(out io.Writer, r *model.RepetitionStats) error {
	if r == nil {
		return nil
	}
	fmt.Fprintln(out, "\nRepetition weighting:")
	if !r.Enabled {
		fmt.Fprintln(out, "  disabled")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Unique patterns:\t%d\n", r.TotalUniquePatterns)
	fmt.Fprintf(tw, "  Repeated patterns:\t%d\n", r.RepeatedPatterns)
	fmt.Fprintf(tw, "  Max repetitions:\t%d\n", r.MaxRepetitions)
	fmt.Fprintf(tw, "  Avg repetitions:\t%.2f\n", r.AvgRepetitions)
	fmt.Fprintf(tw, "  Boost:\tfactor %.2f, min %d, max %.2f\n",
		r.BoostParameters.BoostFactor, r.BoostParameters.MinRepetitions, r.BoostParameters.MaxBoost)
	for _, p := range r.TopPatterns {
		fmt.Fprintf(tw, "  %d x\t%s\n", p.Count, p.Pattern)
	}
	return tw.Flush()
}
