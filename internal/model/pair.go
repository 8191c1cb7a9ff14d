package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Confidence thresholds on the 0-100 correlation scale.
const (
	HighConfidenceThreshold   = 70.0
	MediumConfidenceThreshold = 40.0
)

// ConfidenceLevel buckets a correlation strength for reporting.
type ConfidenceLevel int

const (
	ConfidenceLow ConfidenceLevel = iota
	ConfidenceMedium
	ConfidenceHigh
)

// ConfidenceFor returns the level for a 0-100 strength.
func ConfidenceFor(strength float64) ConfidenceLevel {
	switch {
	case strength >= HighConfidenceThreshold:
		return ConfidenceHigh
	case strength >= MediumConfidenceThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// String returns HIGH, MEDIUM or LOW.
func (c ConfidenceLevel) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the level as its string form.
func (c ConfidenceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes HIGH, MEDIUM or LOW.
func (c *ConfidenceLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "HIGH":
		*c = ConfidenceHigh
	case "MEDIUM":
		*c = ConfidenceMedium
	default:
		*c = ConfidenceLow
	}
	return nil
}

// PatternScore is the inter-packet pattern similarity, which may be absent.
//
// Design decision: absence is a distinct state rather than a zero score.
// A zero would drag the composite down, while absence makes the engine
// renormalize the time and volume weights instead.
type PatternScore struct {
	value   float64
	present bool
}

// PatternPresent wraps a computed pattern similarity.
func PatternPresent(v float64) PatternScore {
	return PatternScore{value: v, present: true}
}

// PatternAbsent marks that no pattern comparison was possible.
func PatternAbsent() PatternScore {
	return PatternScore{}
}

// Value returns the score and whether it is present.
func (p PatternScore) Value() (float64, bool) {
	return p.value, p.present
}

// Present reports whether a pattern score was computed.
func (p PatternScore) Present() bool {
	return p.present
}

// MarshalJSON encodes an absent score as null.
func (p PatternScore) MarshalJSON() ([]byte, error) {
	if !p.present {
		return []byte("null"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON decodes null as absent.
func (p *PatternScore) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = PatternAbsent()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = PatternPresent(v)
	return nil
}

// ComponentScore explains one signal's share of the composite score.
type ComponentScore struct {
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	Reasoning    string  `json:"reasoning"`
}

// ScoreBreakdown records how a pair's final strength was assembled.
// Pattern is nil when the pattern signal was absent.
type ScoreBreakdown struct {
	Time             ComponentScore  `json:"time_correlation"`
	Volume           ComponentScore  `json:"volume_similarity"`
	Pattern          *ComponentScore `json:"pattern_similarity,omitempty"`
	BaseCorrelation  float64         `json:"base_correlation"`
	RepetitionBoost  float64         `json:"repetition_boost"`
	FinalCorrelation float64         `json:"final_correlation"`
}

// SessionPair is the hypothesis that one entry and one exit observation belong
// to the same session. Pairs are produced by the correlation engine and are
// never rescored afterwards.
type SessionPair struct {
	ID                  string          `json:"pair_id"`
	EntryObservationID  string          `json:"entry_observation_id"`
	ExitObservationID   string          `json:"exit_observation_id"`
	TimeDeltaSeconds    float64         `json:"time_delta"`
	TimeScore           float64         `json:"time_correlation_score"`
	VolumeScore         float64         `json:"volume_similarity"`
	PatternScore        PatternScore    `json:"pattern_similarity"`
	HypothesizedGuard   string          `json:"hypothesized_guard,omitempty"`
	GuardConfidence     float64         `json:"guard_confidence"`
	CorrelationStrength float64         `json:"correlation_strength"`
	Confidence          ConfidenceLevel `json:"confidence_level"`
	Reasoning           []string        `json:"reasoning"`
	Breakdown           ScoreBreakdown  `json:"score_breakdown"`

	// ObservedAt is the entry observation timestamp.
	ObservedAt time.Time `json:"observed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// PairID formats the identifier for an entry/exit combination.
func PairID(entryID, exitID string) string {
	return "pair-" + entryID + "-" + exitID
}
