package model

import "time"

// CorrelationCluster groups session pairs that share a hypothesized guard.
// A cluster is evidence of repeated behaviour through one persistent guard;
// it does not identify a person.
type CorrelationCluster struct {
	ID             string   `json:"cluster_id"`
	ObservationIDs []string `json:"observation_ids"`
	PairIDs        []string `json:"session_pair_ids"`

	// FirstObservation and LastObservation span the member pairs' creation times.
	FirstObservation time.Time `json:"first_observation"`
	LastObservation  time.Time `json:"last_observation"`
	ObservationCount int       `json:"observation_count"`

	// AvgSecondsBetween is the mean gap between member entry observations.
	// Nil when fewer than two distinct observation times exist.
	AvgSecondsBetween *float64 `json:"avg_time_between_observations,omitempty"`

	ConsistencyScore float64   `json:"consistency_score"`
	ProbableGuards   []string  `json:"probable_guards"`
	PersistenceScore float64   `json:"guard_persistence_score"`
	Confidence       float64   `json:"cluster_confidence"`
	Reasoning        []string  `json:"reasoning"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConfidenceLevel buckets the cluster confidence with the pair thresholds.
func (c CorrelationCluster) ConfidenceLevel() ConfidenceLevel {
	return ConfidenceFor(c.Confidence)
}
