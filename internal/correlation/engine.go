package correlation

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// GuardEstimator estimates how likely a relay is to be chosen as a guard.
// *topology.Analyzer satisfies it.
type GuardEstimator interface {
	EstimateGuardSelectionProbability(fingerprint string) float64
}

// boostNoteThreshold is the smallest averaged weight mentioned as a boost.
const boostNoteThreshold = 1.1

// Engine correlates entry and exit observations.
//
// Design decision: the repetition table is a field of the engine rather than
// package state. One engine is one investigation; Reset or a new engine
// starts a clean one. All methods are safe for concurrent use.
type Engine struct {
	settings   Settings
	profiles   ProfileStore
	repetition *repetitionTable

	estimatorMu sync.RWMutex
	estimator   GuardEstimator

	logger *slog.Logger
	now    func() time.Time

	initialProfile *model.WeightProfile
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeightProfile sets the initial weight profile. NewEngine fails when it is invalid.
func WithWeightProfile(p model.WeightProfile) Option {
	return func(e *Engine) {
		e.initialProfile = &p
	}
}

// WithProfileStore shares a profile store between engines or with an API layer.
// It takes precedence over WithWeightProfile.
func WithProfileStore(s ProfileStore) Option {
	return func(e *Engine) {
		e.profiles = s
	}
}

// WithGuardEstimator attaches a topology-backed guard estimator.
func WithGuardEstimator(g GuardEstimator) Option {
	return func(e *Engine) {
		e.estimator = g
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for CreatedAt fields.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates settings and the initial profile and returns an engine
// with an empty repetition table.
func NewEngine(settings Settings, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		settings:   settings,
		repetition: newRepetitionTable(settings.Repetition),
		logger:     slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.profiles == nil {
		initial := model.StandardProfile()
		if e.initialProfile != nil {
			initial = *e.initialProfile
		}
		store, err := NewAtomicProfileStore(initial)
		if err != nil {
			return nil, err
		}
		e.profiles = store
	}

	p := e.profiles.WeightProfile()
	e.logger.Debug("correlation engine initialized",
		"profile", p.DisplayName(),
		"time_weight", p.TimeWeight,
		"volume_weight", p.VolumeWeight,
		"pattern_weight", p.PatternWeight,
		"time_window", settings.TimeWindow,
		"repetition_enabled", settings.Repetition.Enabled,
	)
	return e, nil
}

// Settings returns the engine settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// WeightProfile returns the active weight profile.
func (e *Engine) WeightProfile() model.WeightProfile {
	return e.profiles.WeightProfile()
}

// SetWeightProfile validates p and uses it for correlations started afterwards.
// Pairs already produced are not rescored.
func (e *Engine) SetWeightProfile(p model.WeightProfile) error {
	if err := e.profiles.SetWeightProfile(p); err != nil {
		return err
	}
	e.logger.Info("weight profile updated",
		"profile", p.DisplayName(),
		"time_weight", p.TimeWeight,
		"volume_weight", p.VolumeWeight,
		"pattern_weight", p.PatternWeight,
	)
	return nil
}

// SetGuardEstimator replaces the guard estimator. Nil detaches it.
func (e *Engine) SetGuardEstimator(g GuardEstimator) {
	e.estimatorMu.Lock()
	defer e.estimatorMu.Unlock()
	e.estimator = g
}

func (e *Engine) guardEstimator() GuardEstimator {
	e.estimatorMu.RLock()
	defer e.estimatorMu.RUnlock()
	return e.estimator
}

// Reset clears the repetition table for a new investigation.
func (e *Engine) Reset() {
	e.repetition.reset()
	e.logger.Info("repetition table reset")
}

// RepetitionStats summarizes the repetition table.
func (e *Engine) RepetitionStats() model.RepetitionStats {
	return e.repetition.stats()
}

// PatternCount returns how often a pattern key has been counted.
func (e *Engine) PatternCount(key string) int {
	return e.repetition.count(key)
}

// Correlate scores every entry/exit combination within the time window and
// returns the pairs that reach the minimum confidence, in entry-major input
// order. The weight profile is read once per call.
func (e *Engine) Correlate(entries, exits []model.TrafficObservation) []model.SessionPair {
	profile := e.profiles.WeightProfile()
	estimator := e.guardEstimator()
	window := e.settings.windowSeconds()

	e.logger.Info("correlating observations",
		"entries", len(entries),
		"exits", len(exits),
		"profile", profile.DisplayName(),
	)

	pairs := make([]model.SessionPair, 0)
	skipped, dropped := 0, 0
	for _, entry := range entries {
		for _, exit := range exits {
			delta := math.Abs(exit.Timestamp.Sub(entry.Timestamp).Seconds())
			if delta > window {
				skipped++
				continue
			}

			pair := e.scorePair(entry, exit, delta, profile, estimator)
			if pair.CorrelationStrength < e.settings.MinConfidence {
				dropped++
				e.logger.Debug("pair below minimum confidence",
					"pair_id", pair.ID,
					"strength", pair.CorrelationStrength,
				)
				continue
			}
			pairs = append(pairs, pair)
		}
	}

	e.logger.Info("correlation finished",
		"pairs", len(pairs),
		"outside_window", skipped,
		"below_threshold", dropped,
	)
	return pairs
}

// scorePair builds one SessionPair with its reasoning trail.
func (e *Engine) scorePair(
	entry, exit model.TrafficObservation,
	delta float64,
	profile model.WeightProfile,
	estimator GuardEstimator,
) model.SessionPair {
	window := e.settings.windowSeconds()
	reasoning := make([]string, 0, 8)
	reasoning = append(reasoning, fmt.Sprintf(
		"Analyzing correlation between entry observation '%s' and exit observation '%s'.", entry.ID, exit.ID))

	timeScore, timeWhy := TimeScore(delta, window)
	reasoning = append(reasoning, timeWhy)

	volumeScore, volumeWhy := VolumeScore(entry.BytesTransferred, exit.BytesTransferred)
	reasoning = append(reasoning, volumeWhy)

	patternScore, patternWhy := PatternSimilarity(entry.InterPacketTimings, exit.InterPacketTimings)
	reasoning = append(reasoning, patternWhy)

	w := EffectiveWeights(profile, patternScore.Present())
	base := timeScore*w.Time + volumeScore*w.Volume
	composite := fmt.Sprintf("Calculating composite correlation score using %s weights: "+
		"Time (%.0f%%) × %.1f%% = %.1f, Volume (%.0f%%) × %.1f%% = %.1f",
		profile.DisplayName(),
		w.Time*100, timeScore, timeScore*w.Time,
		w.Volume*100, volumeScore, volumeScore*w.Volume)
	if pv, ok := patternScore.Value(); ok {
		base += pv * w.Pattern
		composite += fmt.Sprintf(", Pattern (%.0f%%) × %.1f%% = %.1f", w.Pattern*100, pv, pv*w.Pattern)
	}
	composite += fmt.Sprintf(". Base correlation: %.1f%%.", base)
	if w.Fallback {
		composite += " The profile gives time and volume no weight and no pattern data is available, " +
			"so time and volume are weighted equally."
	}
	reasoning = append(reasoning, composite)

	strength, boost := e.applyRepetition(base, entry, exit)
	switch {
	case boost >= boostNoteThreshold:
		reasoning = append(reasoning, fmt.Sprintf("Repetition boost applied: this pattern has been observed "+
			"multiple times before. Increasing confidence from %.1f%% to %.1f%% (boost factor: %.2fx). "+
			"Repeated patterns are statistically more significant.", base, strength, boost))
	case e.settings.Repetition.Enabled:
		reasoning = append(reasoning, fmt.Sprintf("No repetition boost applied (pattern seen for the first time "+
			"or below threshold). Final correlation: %.1f%%.", strength))
	default:
		reasoning = append(reasoning, fmt.Sprintf("Repetition weighting is disabled. Final correlation: %.1f%%.", strength))
	}

	var guardConfidence float64
	guard := entry.RelayFingerprint
	if guard != "" {
		guardConfidence = base
		guardWhy := ""
		if estimator != nil {
			prob := estimator.EstimateGuardSelectionProbability(guard)
			guardConfidence = GuardConfidence(base, prob)
			guardWhy = fmt.Sprintf(" This relay has %.2f%% probability of being selected as a guard "+
				"based on network consensus weight.", prob)
		}
		reasoning = append(reasoning, fmt.Sprintf("Entry observation shows traffic at relay %s... "+
			"Hypothesizing this as the guard node. Guard confidence: %.1f%%.%s",
			model.ShortFingerprint(guard), guardConfidence, guardWhy))
	} else {
		reasoning = append(reasoning, "No relay fingerprint available for guard hypothesis.")
	}

	level := model.ConfidenceFor(strength)
	reasoning = append(reasoning, finalAssessment(level, strength))

	breakdown := model.ScoreBreakdown{
		Time: model.ComponentScore{
			Score: timeScore, Weight: w.Time, Contribution: timeScore * w.Time, Reasoning: timeWhy,
		},
		Volume: model.ComponentScore{
			Score: volumeScore, Weight: w.Volume, Contribution: volumeScore * w.Volume, Reasoning: volumeWhy,
		},
		BaseCorrelation:  base,
		RepetitionBoost:  boost,
		FinalCorrelation: strength,
	}
	if pv, ok := patternScore.Value(); ok {
		breakdown.Pattern = &model.ComponentScore{
			Score: pv, Weight: w.Pattern, Contribution: pv * w.Pattern, Reasoning: patternWhy,
		}
	}

	pair := model.SessionPair{
		ID:                  model.PairID(entry.ID, exit.ID),
		EntryObservationID:  entry.ID,
		ExitObservationID:   exit.ID,
		TimeDeltaSeconds:    delta,
		TimeScore:           timeScore,
		VolumeScore:         volumeScore,
		PatternScore:        patternScore,
		HypothesizedGuard:   guard,
		GuardConfidence:     guardConfidence,
		CorrelationStrength: strength,
		Confidence:          level,
		Reasoning:           reasoning,
		Breakdown:           breakdown,
		ObservedAt:          entry.Timestamp,
		CreatedAt:           e.now(),
	}

	e.logger.Debug("pair scored",
		"pair_id", pair.ID,
		"base", base,
		"boost", boost,
		"strength", strength,
		"confidence", level.String(),
	)
	return pair
}

// applyRepetition counts both observations and applies the averaged weight.
func (e *Engine) applyRepetition(base float64, entry, exit model.TrafficObservation) (strength, boost float64) {
	if !e.settings.Repetition.Enabled {
		return base, 1.0
	}
	entryWeight, entryCount := e.repetition.observe(entry)
	exitWeight, exitCount := e.repetition.observe(exit)
	boost = (entryWeight + exitWeight) / 2

	if boost > 1 {
		e.logger.Debug("repetition weight",
			"entry_pattern_count", entryCount,
			"exit_pattern_count", exitCount,
			"boost", boost,
		)
	}
	return ApplyBoost(base, boost), boost
}

// finalAssessment is the closing line of every reasoning trail.
func finalAssessment(level model.ConfidenceLevel, strength float64) string {
	switch level {
	case model.ConfidenceHigh:
		return fmt.Sprintf("HIGH CONFIDENCE (%.1f%%): Strong evidence suggests these observations "+
			"represent the same session. Multiple indicators align well.", strength)
	case model.ConfidenceMedium:
		return fmt.Sprintf("MEDIUM CONFIDENCE (%.1f%%): Moderate correlation detected. Some indicators "+
			"suggest the same session, but uncertainty remains.", strength)
	default:
		return fmt.Sprintf("LOW CONFIDENCE (%.1f%%): Weak correlation. May be coincidental or different sessions.",
			strength)
	}
}
