package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/torcorrelate/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for case files and review.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Tables for pairs, clusters and circuit checks
// 2. Collapsible details for the reasoning trail
// 3. GitHub-flavored alerts and mermaid charts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.AnalysisReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writePairs(md, report)
	w.writeClusters(md, report)
	w.writeCircuitNotes(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.AnalysisReport) {
	md.H1("Traffic Correlation Report")
	md.PlainText("")

	rows := [][]string{
		{"Run ID", "`" + report.RunID + "`"},
	}
	if report.CaseNumber != "" {
		rows = append(rows, []string{"Case", report.CaseNumber})
	}
	rows = append(rows,
		[]string{"Started", report.StartedAt.Format(timeLayout)},
		[]string{"Profile", fmt.Sprintf("%s (time %.2f, volume %.2f, pattern %.2f)",
			report.Profile.DisplayName(),
			report.Profile.TimeWeight, report.Profile.VolumeWeight, report.Profile.PatternWeight)},
	)
	if report.SnapshotID != "" {
		rows = append(rows, []string{"Topology", "`" + report.SnapshotID + "`"})
	}
	rows = append(rows,
		[]string{"Observations", fmt.Sprintf("%d entry, %d exit", report.EntryCount, report.ExitCount)},
		[]string{"Status", w.statusText(report)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(report *model.AnalysisReport) string {
	if report.Error != "" {
		return "❌ Error - " + report.Error
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.AnalysisReport) {
	s := report.Summary
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Session pairs", strconv.Itoa(s.TotalPairs)},
			{"Clusters", strconv.Itoa(s.TotalClusters)},
			{"Average correlation", fmt.Sprintf("%.1f%%", s.AverageCorrelation)},
			{"🔴 High confidence", strconv.Itoa(s.ConfidenceDistribution.High)},
			{"🟠 Medium confidence", strconv.Itoa(s.ConfidenceDistribution.Medium)},
			{"🔵 Low confidence", strconv.Itoa(s.ConfidenceDistribution.Low)},
		},
	})
	md.PlainText("")

	if s.TotalPairs > 0 {
		w.writePieChart(md, s.ConfidenceDistribution)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart for the confidence distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, d model.ConfidenceDistribution) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Pair Confidence Distribution"),
		piechart.WithShowData(true),
	)

	if d.High > 0 {
		chart.LabelAndIntValue("High", uint64(d.High))
	}
	if d.Medium > 0 {
		chart.LabelAndIntValue("Medium", uint64(d.Medium))
	}
	if d.Low > 0 {
		chart.LabelAndIntValue("Low", uint64(d.Low))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.AnalysisReport) {
	incompatible := 0
	for _, n := range report.CircuitNotes {
		if !n.Compatible {
			incompatible++
		}
	}

	switch {
	case report.Error != "":
		md.Cautionf("The analysis stopped early: %s", report.Error)
	case incompatible > 0:
		md.Warningf(
			"%d pair(s) name a guard that could not have been combined with the observed exit relay.",
			incompatible,
		)
	case report.Summary.ConfidenceDistribution.High > 0:
		md.Importantf(
			"%d high confidence pair(s). Confirm them with independent evidence before acting.",
			report.Summary.ConfidenceDistribution.High,
		)
	case report.Summary.TotalPairs > 0:
		md.Note("Only medium and low confidence pairs were found.")
	default:
		md.Tip("No entry/exit combination scored above the confidence threshold.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePairs(md *markdown.Markdown, report *model.AnalysisReport) {
	md.H2("Session Pairs")
	md.PlainText("")

	if len(report.Pairs) == 0 {
		md.PlainText("No session pairs.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Pairs))
	for i, p := range report.Pairs {
		pattern := "-"
		if v, ok := p.PatternScore.Value(); ok {
			pattern = fmt.Sprintf("%.1f", v)
		}
		rows[i] = []string{
			"`" + truncateString(p.ID, 40) + "`",
			p.Confidence.String(),
			fmt.Sprintf("%.1f", p.CorrelationStrength),
			fmt.Sprintf("%.2fs", p.TimeDeltaSeconds),
			fmt.Sprintf("%.1f", p.TimeScore),
			fmt.Sprintf("%.1f", p.VolumeScore),
			pattern,
			shortID(p.HypothesizedGuard),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Pair", "Confidence", "Strength", "Δt", "Time", "Volume", "Pattern", "Guard"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, p := range report.Pairs {
		if len(p.Reasoning) == 0 {
			continue
		}
		md.Details(p.ID, bulletText(p.Reasoning))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeClusters(md *markdown.Markdown, report *model.AnalysisReport) {
	md.H2("Clusters")
	md.PlainText("")

	if len(report.Clusters) == 0 {
		md.PlainText("No clusters.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Clusters))
	for i, c := range report.Clusters {
		guard := "-"
		if len(c.ProbableGuards) > 0 {
			guard = shortID(c.ProbableGuards[0])
		}
		rows[i] = []string{
			c.ID,
			c.ConfidenceLevel().String(),
			fmt.Sprintf("%.1f", c.Confidence),
			strconv.Itoa(c.ObservationCount),
			fmt.Sprintf("%.1f", c.ConsistencyScore),
			fmt.Sprintf("%.1f", c.PersistenceScore),
			guard,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Cluster", "Confidence", "Score", "Observations", "Consistency", "Persistence", "Guard"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, c := range report.Clusters {
		if len(c.Reasoning) == 0 {
			continue
		}
		md.Details(c.ID, bulletText(c.Reasoning))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeCircuitNotes(md *markdown.Markdown, report *model.AnalysisReport) {
	if len(report.CircuitNotes) == 0 {
		return
	}

	md.H2("Circuit Checks")
	md.PlainText("")

	rows := make([][]string, len(report.CircuitNotes))
	for i, n := range report.CircuitNotes {
		compatible := "✅"
		if !n.Compatible {
			compatible = "❌"
		}
		reason := n.Reason
		if reason == "" {
			reason = "-"
		}
		rows[i] = []string{
			"`" + truncateString(n.PairID, 40) + "`",
			shortID(n.Guard),
			shortID(n.Exit),
			compatible,
			fmt.Sprintf("%.3f%%", n.GuardProbability),
			reason,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Pair", "Guard", "Exit", "Compatible", "Guard selection", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// bulletText renders lines as a Markdown list inside a details block.
func bulletText(lines []string) string {
	return "- " + strings.Join(lines, "\n- ")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Scores are hypotheses over traffic metadata, not identifications. " +
		"Report generated by torcorrelate.*")
}
