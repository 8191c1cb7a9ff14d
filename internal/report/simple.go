package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/torcorrelate/internal/model"
)

// timeLayout formats timestamps in text and Markdown reports.
const timeLayout = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs human-readable text reports.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. Reports are attached to case files as plain text
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose adds the reasoning trail under each pair and cluster.
	verbose bool

	// maxPairs limits the pair listing; zero lists all pairs.
	maxPairs int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables the reasoning trail in the output.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMaxPairs limits how many pairs are listed. Pairs keep engine order.
func WithMaxPairs(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n >= 0 {
			w.maxPairs = n
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.AnalysisReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSummary(&sb, report)
	w.writePairs(&sb, report)
	w.writeClusters(&sb, report)
	w.writeCircuitNotes(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.AnalysisReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                   TRAFFIC CORRELATION REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:         %s\n", report.RunID)
	if report.CaseNumber != "" {
		fmt.Fprintf(sb, "Case:           %s\n", report.CaseNumber)
	}
	fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Profile:        %s (time %.2f, volume %.2f, pattern %.2f)\n",
		report.Profile.DisplayName(),
		report.Profile.TimeWeight, report.Profile.VolumeWeight, report.Profile.PatternWeight)
	if report.SnapshotID != "" {
		fmt.Fprintf(sb, "Topology:       %s\n", report.SnapshotID)
	}
	fmt.Fprintf(sb, "Observations:   %d entry, %d exit\n", report.EntryCount, report.ExitCount)
	fmt.Fprintf(sb, "Status:         %s\n", status(report))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSummary(sb *strings.Builder, report *model.AnalysisReport) {
	section(sb, "SUMMARY")

	s := report.Summary
	fmt.Fprintf(sb, "  Session pairs:    %d\n", s.TotalPairs)
	fmt.Fprintf(sb, "  Clusters:         %d\n", s.TotalClusters)
	fmt.Fprintf(sb, "  Avg correlation:  %.1f%%\n", s.AverageCorrelation)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  HIGH:     %d\n", s.ConfidenceDistribution.High)
	fmt.Fprintf(sb, "  MEDIUM:   %d\n", s.ConfidenceDistribution.Medium)
	fmt.Fprintf(sb, "  LOW:      %d\n", s.ConfidenceDistribution.Low)
	sb.WriteString("\n")

	if r := report.Repetition; r != nil && r.Enabled {
		fmt.Fprintf(sb, "  Repetition:       %d unique patterns, %d repeated, max %d\n",
			r.TotalUniquePatterns, r.RepeatedPatterns, r.MaxRepetitions)
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writePairs(sb *strings.Builder, report *model.AnalysisReport) {
	if len(report.Pairs) == 0 && !w.showEmpty {
		return
	}
	section(sb, "SESSION PAIRS")

	if len(report.Pairs) == 0 {
		sb.WriteString("  No pairs above the confidence threshold\n\n")
		return
	}

	pairs := report.Pairs
	if w.maxPairs > 0 && len(pairs) > w.maxPairs {
		pairs = pairs[:w.maxPairs]
	}
	for _, p := range pairs {
		fmt.Fprintf(sb, "  [%s] %s  %.1f%%\n", confidenceIndicator(p.Confidence), p.ID, p.CorrelationStrength)
		fmt.Fprintf(sb, "    entry %s -> exit %s (%.2fs apart)\n", p.EntryObservationID, p.ExitObservationID, p.TimeDeltaSeconds)
		pattern := "n/a"
		if v, ok := p.PatternScore.Value(); ok {
			pattern = fmt.Sprintf("%.1f", v)
		}
		fmt.Fprintf(sb, "    time %.1f  volume %.1f  pattern %s  boost x%.2f\n",
			p.TimeScore, p.VolumeScore, pattern, p.Breakdown.RepetitionBoost)
		if p.HypothesizedGuard != "" {
			fmt.Fprintf(sb, "    guard %s (confidence %.1f%%)\n", shortID(p.HypothesizedGuard), p.GuardConfidence)
		}
		if w.verbose {
			for _, line := range p.Reasoning {
				fmt.Fprintf(sb, "      - %s\n", line)
			}
		}
	}
	if len(pairs) < len(report.Pairs) {
		fmt.Fprintf(sb, "  ... %d more\n", len(report.Pairs)-len(pairs))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeClusters(sb *strings.Builder, report *model.AnalysisReport) {
	if len(report.Clusters) == 0 && !w.showEmpty {
		return
	}
	section(sb, "CLUSTERS")

	if len(report.Clusters) == 0 {
		sb.WriteString("  No clusters\n\n")
		return
	}

	for _, c := range report.Clusters {
		fmt.Fprintf(sb, "  [%s] %s  %.1f%%\n", confidenceIndicator(c.ConfidenceLevel()), c.ID, c.Confidence)
		fmt.Fprintf(sb, "    %d observations, %d pairs, consistency %.1f, persistence %.1f\n",
			c.ObservationCount, len(c.PairIDs), c.ConsistencyScore, c.PersistenceScore)
		if len(c.ProbableGuards) > 0 {
			fmt.Fprintf(sb, "    probable guard %s\n", shortID(c.ProbableGuards[0]))
		}
		fmt.Fprintf(sb, "    %s .. %s\n", c.FirstObservation.Format(timeLayout), c.LastObservation.Format(timeLayout))
		if w.verbose {
			for _, line := range c.Reasoning {
				fmt.Fprintf(sb, "      - %s\n", line)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCircuitNotes(sb *strings.Builder, report *model.AnalysisReport) {
	if len(report.CircuitNotes) == 0 && !w.showEmpty {
		return
	}
	section(sb, "CIRCUIT CHECKS")

	if len(report.CircuitNotes) == 0 {
		sb.WriteString("  No pairs could be checked against the topology\n\n")
		return
	}

	for _, n := range report.CircuitNotes {
		mark := "ok"
		if !n.Compatible {
			mark = "!!"
		}
		fmt.Fprintf(sb, "  [%s] %s  guard %s  exit %s  p(guard) %.3f%%\n",
			mark, n.PairID, shortID(n.Guard), shortID(n.Exit), n.GuardProbability)
		if n.Reason != "" {
			fmt.Fprintf(sb, "    %s\n", n.Reason)
		}
	}
	sb.WriteString("\n")
}

// confidenceIndicator returns a visual indicator for the confidence level.
func confidenceIndicator(level model.ConfidenceLevel) string {
	switch level {
	case model.ConfidenceHigh:
		return "!!!"
	case model.ConfidenceMedium:
		return "!!"
	case model.ConfidenceLow:
		return "!"
	default:
		return "?"
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Scores are hypotheses over traffic metadata, not identifications.\n")
	sb.WriteString("Report generated by torcorrelate\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
