package model

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ConfidenceDistribution counts pairs per confidence level.
type ConfidenceDistribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// ClusterSummary is the short form of a cluster used in summaries.
type ClusterSummary struct {
	ClusterID        string  `json:"cluster_id"`
	ObservationCount int     `json:"observation_count"`
	Confidence       float64 `json:"confidence"`
	ProbableGuard    string  `json:"probable_guard,omitempty"`
}

// CorrelationSummary aggregates the outcome of one analysis run.
type CorrelationSummary struct {
	TotalPairs             int                    `json:"total_session_pairs"`
	TotalClusters          int                    `json:"total_clusters"`
	AverageCorrelation     float64                `json:"avg_correlation_strength"`
	ConfidenceDistribution ConfidenceDistribution `json:"confidence_distribution"`
	TopClusters            []ClusterSummary       `json:"top_clusters"`
}

// maxTopClusters is how many clusters a summary lists.
const maxTopClusters = 5

// Summarize computes the summary for a set of pairs and clusters.
func Summarize(pairs []SessionPair, clusters []CorrelationCluster) CorrelationSummary {
	s := CorrelationSummary{
		TotalPairs:    len(pairs),
		TotalClusters: len(clusters),
		TopClusters:   []ClusterSummary{},
	}

	var total float64
	for _, p := range pairs {
		total += p.CorrelationStrength
		switch ConfidenceFor(p.CorrelationStrength) {
		case ConfidenceHigh:
			s.ConfidenceDistribution.High++
		case ConfidenceMedium:
			s.ConfidenceDistribution.Medium++
		case ConfidenceLow:
			s.ConfidenceDistribution.Low++
		}
	}
	if len(pairs) > 0 {
		s.AverageCorrelation = total / float64(len(pairs))
	}

	sorted := slices.Clone(clusters)
	slices.SortStableFunc(sorted, func(a, b CorrelationCluster) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	for _, c := range sorted[:min(len(sorted), maxTopClusters)] {
		cs := ClusterSummary{
			ClusterID:        c.ID,
			ObservationCount: c.ObservationCount,
			Confidence:       c.Confidence,
		}
		if len(c.ProbableGuards) > 0 {
			cs.ProbableGuard = c.ProbableGuards[0]
		}
		s.TopClusters = append(s.TopClusters, cs)
	}

	return s
}

// CircuitNote records whether a pair's hypothesized guard could have been
// combined with the exit relay seen on the exit side.
type CircuitNote struct {
	PairID     string `json:"pair_id"`
	Guard      string `json:"guard"`
	Exit       string `json:"exit"`
	Compatible bool   `json:"compatible"`

	// GuardProbability is the guard's selection probability in percent.
	GuardProbability float64 `json:"guard_selection_probability"`
	Reason           string  `json:"reason,omitempty"`
}

// AnalysisReport is the unit of work flowing through the analysis pipeline
// and the record stored for each run.
//
// Design decision: like a scan report, one struct carries inputs, results and
// run metadata so that pipeline steps, writers and the case store share a
// single type without conversions.
type AnalysisReport struct {
	RunID      string `json:"run_id"`
	CaseNumber string `json:"case_number,omitempty"`

	Profile    WeightProfile `json:"profile"`
	SnapshotID string        `json:"snapshot_id,omitempty"`

	Observations []TrafficObservation `json:"-"`
	EntryCount   int                  `json:"entry_observations"`
	ExitCount    int                  `json:"exit_observations"`

	Pairs        []SessionPair        `json:"session_pairs"`
	Clusters     []CorrelationCluster `json:"clusters"`
	CircuitNotes []CircuitNote        `json:"circuit_notes,omitempty"`
	Summary      CorrelationSummary   `json:"summary"`
	Repetition   *RepetitionStats     `json:"repetition_stats,omitempty"`

	// StepsPerformed lists completed pipeline steps in order.
	StepsPerformed []string `json:"steps_performed"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`

	// Error holds the message of the step that stopped the run, if any.
	Error string `json:"error,omitempty"`
}

// NewAnalysisReport creates a report with a fresh run id.
func NewAnalysisReport(caseNumber string, observations []TrafficObservation) *AnalysisReport {
	return &AnalysisReport{
		RunID:          uuid.New().String(),
		CaseNumber:     caseNumber,
		Observations:   observations,
		Pairs:          []SessionPair{},
		Clusters:       []CorrelationCluster{},
		StepsPerformed: []string{},
		StartedAt:      time.Now().UTC(),
	}
}

// FindPair returns the pair with the given id.
func (r *AnalysisReport) FindPair(id string) (SessionPair, bool) {
	for _, p := range r.Pairs {
		if p.ID == id {
			return p, true
		}
	}
	return SessionPair{}, false
}
