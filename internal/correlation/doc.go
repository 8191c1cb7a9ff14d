// Package correlation scores entry/exit observation pairs and groups the
// resulting hypotheses into clusters.
//
// # Scoring
//
// Every entry observation is paired with every exit observation whose
// timestamp lies within the time window. Three signals are combined with the
// weights of the active model.WeightProfile:
//
//   - time: 100 * exp(-delta/window)
//   - volume: 100 * min/max of the byte counts, 50 when either is unknown
//   - pattern: ratio of inter-packet timing sequence lengths, absent when
//     either side has no timing data
//
// When the pattern signal is absent, EffectiveWeights renormalizes the time
// and volume weights so they again sum to 1.
//
// # Repetition
//
// An Engine keeps a frequency table of (relay, type, volume bucket) patterns
// for its lifetime. Patterns seen at least MinRepetitions times boost the
// pair score on a log2 curve capped at MaxBoost. Reset clears the table when
// a new investigation starts.
//
// # Explainability
//
// Each pair carries a reasoning trail of plain sentences and a score
// breakdown so that an analyst can reproduce every number.
//
// The output is a set of probabilistic leads over metadata. Nothing here
// inspects content or identifies a person.
package correlation
