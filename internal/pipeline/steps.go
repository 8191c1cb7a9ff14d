package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/topology"
)

// Step names as they appear in AnalysisReport.StepsPerformed.
const (
	StepCorrelate    = "correlate"
	StepCluster      = "cluster"
	StepCircuitCheck = "circuit_check"
	StepSummary      = "summary"
	StepPersist      = "persist"
)

// Correlator scores entry/exit combinations. *correlation.Engine satisfies it.
type Correlator interface {
	Correlate(entries, exits []model.TrafficObservation) []model.SessionPair
	WeightProfile() model.WeightProfile
}

// Clusterer groups pairs by hypothesized guard. *correlation.Engine satisfies it.
type Clusterer interface {
	Cluster(pairs []model.SessionPair) []model.CorrelationCluster
}

// RepetitionReporter exposes the repetition table. *correlation.Engine satisfies it.
type RepetitionReporter interface {
	RepetitionStats() model.RepetitionStats
}

// Store persists observations and analysis runs. *database.CaseDB satisfies it.
type Store interface {
	SaveObservations(ctx context.Context, caseNumber string, obs []model.TrafficObservation) error
	SaveAnalysis(ctx context.Context, r *model.AnalysisReport) error
}

// CorrelateStep validates the report's observations and scores every
// entry/exit combination.
type CorrelateStep struct {
	correlator Correlator
	logger     *slog.Logger
}

// NewCorrelateStep creates a CorrelateStep.
func NewCorrelateStep(c Correlator, logger *slog.Logger) *CorrelateStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrelateStep{correlator: c, logger: logger}
}

// Name returns the step name.
func (s *CorrelateStep) Name() string {
	return StepCorrelate
}

// Do fills EntryCount, ExitCount, Profile and Pairs.
// One malformed observation fails the step before anything is scored.
func (s *CorrelateStep) Do(_ context.Context, report *model.AnalysisReport) error {
	for _, o := range report.Observations {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("failed to validate observations: %w", err)
		}
	}

	entries, exits := model.SplitObservations(report.Observations)
	report.EntryCount = len(entries)
	report.ExitCount = len(exits)
	report.Profile = s.correlator.WeightProfile()
	report.Pairs = s.correlator.Correlate(entries, exits)

	s.logger.Debug("correlation finished",
		"entries", len(entries),
		"exits", len(exits),
		"pairs", len(report.Pairs),
	)
	return nil
}

// ClusterStep groups the report's pairs into clusters.
type ClusterStep struct {
	clusterer Clusterer
}

// NewClusterStep creates a ClusterStep.
func NewClusterStep(c Clusterer) *ClusterStep {
	return &ClusterStep{clusterer: c}
}

// Name returns the step name.
func (s *ClusterStep) Name() string {
	return StepCluster
}

// Do fills Clusters.
func (s *ClusterStep) Do(_ context.Context, report *model.AnalysisReport) error {
	report.Clusters = s.clusterer.Cluster(report.Pairs)
	return nil
}

// CircuitCheckStep checks each pair's hypothesized guard against the exit
// relay recorded on the exit observation.
//
// Pairs without a guard, or whose exit observation names no relay, get no
// note: there is nothing to check them against.
type CircuitCheckStep struct {
	analyzer *topology.Analyzer
}

// NewCircuitCheckStep creates a CircuitCheckStep over one snapshot.
func NewCircuitCheckStep(a *topology.Analyzer) *CircuitCheckStep {
	return &CircuitCheckStep{analyzer: a}
}

// Name returns the step name.
func (s *CircuitCheckStep) Name() string {
	return StepCircuitCheck
}

// Do fills SnapshotID and CircuitNotes.
func (s *CircuitCheckStep) Do(_ context.Context, report *model.AnalysisReport) error {
	report.SnapshotID = s.analyzer.SnapshotID()

	exitRelay := make(map[string]string, report.ExitCount)
	for _, o := range report.Observations {
		if o.Type == model.ObservationExit && o.RelayFingerprint != "" {
			exitRelay[o.ID] = o.RelayFingerprint
		}
	}

	notes := make([]model.CircuitNote, 0, len(report.Pairs))
	for _, p := range report.Pairs {
		exitFp, ok := exitRelay[p.ExitObservationID]
		if p.HypothesizedGuard == "" || !ok {
			continue
		}
		note := model.CircuitNote{
			PairID:           p.ID,
			Guard:            p.HypothesizedGuard,
			Exit:             exitFp,
			Compatible:       s.analyzer.IsCompatibleGuard(p.HypothesizedGuard, exitFp),
			GuardProbability: s.analyzer.EstimateGuardSelectionProbability(p.HypothesizedGuard),
		}
		if !note.Compatible {
			note.Reason = s.incompatibility(p.HypothesizedGuard, exitFp)
		}
		notes = append(notes, note)
	}
	report.CircuitNotes = notes
	return nil
}

// incompatibility names the first constraint a guard/exit combination breaks.
func (s *CircuitCheckStep) incompatibility(guardFp, exitFp string) string {
	exit, ok := s.analyzer.Relay(exitFp)
	if !ok {
		return "exit relay not found in topology"
	}
	guard, ok := s.analyzer.Relay(guardFp)
	switch {
	case !ok:
		return "guard relay not found in topology"
	case !guard.IsGuard():
		return "hypothesized guard lacks the Guard flag"
	case guard.Fingerprint == exit.Fingerprint:
		return "guard and exit are the same relay"
	case topology.SameSubnet(guard.Address, exit.Address):
		return "guard and exit in same /16 subnet"
	default:
		return "guard not compatible with exit"
	}
}

// SummaryStep computes the run summary and snapshots the repetition table.
type SummaryStep struct {
	repetition RepetitionReporter
}

// NewSummaryStep creates a SummaryStep. repetition may be nil.
func NewSummaryStep(repetition RepetitionReporter) *SummaryStep {
	return &SummaryStep{repetition: repetition}
}

// Name returns the step name.
func (s *SummaryStep) Name() string {
	return StepSummary
}

// Do fills Summary and Repetition.
func (s *SummaryStep) Do(_ context.Context, report *model.AnalysisReport) error {
	report.Summary = model.Summarize(report.Pairs, report.Clusters)
	if s.repetition != nil {
		stats := s.repetition.RepetitionStats()
		report.Repetition = &stats
	}
	return nil
}

// PersistStep writes the observations and the finished run to the case store.
type PersistStep struct {
	store Store
	now   func() time.Time
}

// NewPersistStep creates a PersistStep.
func NewPersistStep(store Store) *PersistStep {
	return &PersistStep{store: store, now: time.Now}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return StepPersist
}

// Do saves the observations under the report's case number, then the report.
// It must run last: the stored report lists itself among the steps performed.
func (s *PersistStep) Do(ctx context.Context, report *model.AnalysisReport) error {
	if len(report.Observations) > 0 {
		if err := s.store.SaveObservations(ctx, report.CaseNumber, report.Observations); err != nil {
			return fmt.Errorf("failed to save observations: %w", err)
		}
	}

	report.FinishedAt = s.now().UTC()
	report.StepsPerformed = append(report.StepsPerformed, s.Name())
	err := s.store.SaveAnalysis(ctx, report)
	report.StepsPerformed = report.StepsPerformed[:len(report.StepsPerformed)-1]
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Engine is the part of *correlation.Engine an analysis pipeline needs.
type Engine interface {
	Correlator
	Clusterer
	RepetitionReporter
}

// AnalysisConfig selects the optional steps of an analysis pipeline.
type AnalysisConfig struct {
	// Analyzer enables the circuit check when set.
	Analyzer *topology.Analyzer

	// Store enables persistence when set.
	Store Store
}

// NewAnalysisPipeline builds the standard step order:
// correlate, cluster, circuit check, summary and persist.
//
// Design decision: We provide a default pipeline because the CLI, the HTTP
// API and batch runs must produce identical reports for the same input.
func NewAnalysisPipeline(engine Engine, cfg AnalysisConfig, opts ...Option) *Pipeline {
	p := New(opts...)
	p.AddSteps(
		NewCorrelateStep(engine, p.logger),
		NewClusterStep(engine),
	)
	if cfg.Analyzer != nil {
		p.AddStep(NewCircuitCheckStep(cfg.Analyzer))
	}
	p.AddStep(NewSummaryStep(engine))
	if cfg.Store != nil {
		p.AddStep(NewPersistStep(cfg.Store))
	}
	return p
}
