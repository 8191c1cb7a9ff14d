package correlation

import (
	"fmt"
	"time"
)

// Default engine settings.
const (
	// DefaultTimeWindow is the largest entry/exit gap that is scored at all.
	// Circuit latency is normally a second or two; five minutes leaves room
	// for clock skew between vantage points.
	DefaultTimeWindow = 300 * time.Second

	// DefaultMinConfidence drops pairs below this strength (0-100).
	DefaultMinConfidence = 30.0

	// DefaultMinObservationsForCluster is the smallest number of pairs
	// sharing a guard that forms a cluster.
	DefaultMinObservationsForCluster = 3

	// DefaultBoostFactor controls how fast the repetition boost grows per doubling.
	DefaultBoostFactor = 1.5

	// DefaultMinRepetitions is the count at which boosting starts.
	DefaultMinRepetitions = 2

	// DefaultMaxBoost caps the per-observation repetition weight.
	DefaultMaxBoost = 2.0
)

// RepetitionSettings controls repetition weighting.
type RepetitionSettings struct {
	Enabled        bool
	BoostFactor    float64
	MinRepetitions int
	MaxBoost       float64

	// CountReplays makes a re-submitted observation id increment its pattern
	// count again. Off by default so that replaying the same evidence cannot
	// inflate confidence.
	CountReplays bool
}

// Settings holds the tunable parameters of an Engine.
type Settings struct {
	TimeWindow                time.Duration
	MinConfidence             float64
	MinObservationsForCluster int
	Repetition                RepetitionSettings
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		TimeWindow:                DefaultTimeWindow,
		MinConfidence:             DefaultMinConfidence,
		MinObservationsForCluster: DefaultMinObservationsForCluster,
		Repetition: RepetitionSettings{
			Enabled:        true,
			BoostFactor:    DefaultBoostFactor,
			MinRepetitions: DefaultMinRepetitions,
			MaxBoost:       DefaultMaxBoost,
		},
	}
}

// Validate returns an error wrapping ErrInvalidSettings for unusable values.
func (s Settings) Validate() error {
	switch {
	case s.TimeWindow <= 0:
		return fmt.Errorf("%w: time window must be positive, got %s", ErrInvalidSettings, s.TimeWindow)
	case s.MinConfidence < 0 || s.MinConfidence > 100:
		return fmt.Errorf("%w: min confidence must be within 0-100, got %g", ErrInvalidSettings, s.MinConfidence)
	case s.MinObservationsForCluster < 1:
		return fmt.Errorf("%w: min observations for cluster must be at least 1, got %d",
			ErrInvalidSettings, s.MinObservationsForCluster)
	case s.Repetition.BoostFactor < 1:
		return fmt.Errorf("%w: boost factor must be at least 1, got %g", ErrInvalidSettings, s.Repetition.BoostFactor)
	case s.Repetition.MaxBoost < 1:
		return fmt.Errorf("%w: max boost must be at least 1, got %g", ErrInvalidSettings, s.Repetition.MaxBoost)
	case s.Repetition.MinRepetitions < 1:
		return fmt.Errorf("%w: min repetitions must be at least 1, got %d", ErrInvalidSettings, s.Repetition.MinRepetitions)
	}
	return nil
}

// windowSeconds is the time window as float seconds.
func (s Settings) windowSeconds() float64 {
	return s.TimeWindow.Seconds()
}

