package correlation

import (
	"fmt"
	"math"

	"github.com/nao1215/torcorrelate/internal/model"
)

// Neutral and fallback values used by the scorers.
const (
	// neutralVolumeScore is used when a byte count is unknown.
	neutralVolumeScore = 50.0

	// fallbackWeight is applied to time and volume when the profile gives
	// them no weight at all and the pattern signal is absent.
	fallbackWeight = 0.5

	bytesPerMB = 1_000_000
)

// TimeScore scores an entry/exit gap with exponential decay. A zero gap scores
// 100 and a gap equal to the window scores 100/e (about 36.8).
func TimeScore(deltaSeconds, windowSeconds float64) (float64, string) {
	score := math.Exp(-deltaSeconds/windowSeconds) * 100

	var explanation string
	switch {
	case deltaSeconds < 1:
		explanation = fmt.Sprintf("Entry and exit observations are nearly simultaneous (%.2f seconds apart). "+
			"This is highly indicative of the same session. Time correlation score: %.1f%%.", deltaSeconds, score)
	case deltaSeconds < 30:
		explanation = fmt.Sprintf("Observations are %.1f seconds apart, which is very close. "+
			"Circuits typically add only 1-2 seconds of latency. Time correlation score: %.1f%%.", deltaSeconds, score)
	case deltaSeconds < 120:
		explanation = fmt.Sprintf("Observations are %.1f seconds apart. "+
			"This is within typical latency variance. Time correlation score: %.1f%%.", deltaSeconds, score)
	case deltaSeconds < windowSeconds:
		explanation = fmt.Sprintf("Observations are %.1f seconds apart. Still within the correlation window (%gs), "+
			"but confidence decreases with larger gaps. Time correlation score: %.1f%%.", deltaSeconds, windowSeconds, score)
	default:
		explanation = fmt.Sprintf("Observations are %.1f seconds apart, at or beyond the correlation window (%gs). "+
			"Low confidence in temporal correlation. Time correlation score: %.1f%%.", deltaSeconds, windowSeconds, score)
	}
	return score, explanation
}

// VolumeScore compares byte counts. Unknown counts give the neutral 50, two
// zero counts match perfectly, and otherwise the score is 100 * min/max.
func VolumeScore(entryBytes, exitBytes *int64) (float64, string) {
	if entryBytes == nil || exitBytes == nil {
		return neutralVolumeScore, "Volume data is unavailable for one or both observations. " +
			"Using neutral score of 50%. Cannot make volume-based assessment."
	}

	entry, exit := *entryBytes, *exitBytes
	if entry == 0 && exit == 0 {
		return 100, "Both observations show zero bytes transferred. Perfect volume match. Score: 100%."
	}

	hi, lo := float64(max(entry, exit)), float64(min(entry, exit))
	similarity := lo / hi * 100
	diff := (hi - lo) / hi * 100

	var verdict string
	switch {
	case similarity >= 95:
		verdict = fmt.Sprintf("Volumes are nearly identical (difference: %.1f%%). "+
			"This strongly suggests the same data passing through the network.", diff)
	case similarity >= 85:
		verdict = fmt.Sprintf("Volumes are very similar (difference: %.1f%%). "+
			"A few percent of variance is consistent with protocol overhead.", diff)
	case similarity >= 70:
		verdict = fmt.Sprintf("Volumes are reasonably similar (difference: %.1f%%). "+
			"Could be the same session with some buffering variance.", diff)
	case similarity >= 50:
		verdict = fmt.Sprintf("Moderate volume difference (difference: %.1f%%). "+
			"May indicate different sessions or significant protocol overhead.", diff)
	default:
		verdict = fmt.Sprintf("Large volume difference (difference: %.1f%%). "+
			"Unlikely to be the same session.", diff)
	}

	explanation := fmt.Sprintf("Entry traffic: %.2fMB, Exit traffic: %.2fMB. %s Volume similarity: %.1f%%.",
		float64(entry)/bytesPerMB, float64(exit)/bytesPerMB, verdict, similarity)
	return similarity, explanation
}

// PatternSimilarity compares inter-packet timing sequences by length.
// The score is absent when either sequence is missing or empty.
func PatternSimilarity(entryTimings, exitTimings []float64) (model.PatternScore, string) {
	if len(entryTimings) == 0 || len(exitTimings) == 0 {
		return model.PatternAbsent(), "Inter-packet timing data is not available. Cannot perform pattern analysis."
	}

	n, m := len(entryTimings), len(exitTimings)
	similarity := float64(min(n, m)) / float64(max(n, m)) * 100

	var verdict string
	switch {
	case similarity >= 90:
		verdict = "Packet counts are nearly identical, suggesting the same data stream."
	case similarity >= 70:
		verdict = "Packet counts are similar, consistent with circuit multiplexing."
	default:
		verdict = "Significant difference in packet counts. May indicate different sessions or heavy multiplexing."
	}

	explanation := fmt.Sprintf("Entry pattern: %d packets, Exit pattern: %d packets. %s Pattern similarity: %.1f%%.",
		n, m, verdict, similarity)
	return model.PatternPresent(similarity), explanation
}

// Weights are the weights actually applied to one pair.
type Weights struct {
	Time    float64
	Volume  float64
	Pattern float64

	// Fallback is true when the profile gave time and volume no weight and
	// the pattern signal was absent, so the even split was used.
	Fallback bool
}

// EffectiveWeights returns the weights applied for the given signal presence.
// With a pattern score the profile weights are used as-is. Without one the
// pattern weight is dropped and time and volume are rescaled to sum to 1.
func EffectiveWeights(p model.WeightProfile, patternPresent bool) Weights {
	if patternPresent {
		return Weights{Time: p.TimeWeight, Volume: p.VolumeWeight, Pattern: p.PatternWeight}
	}

	total := p.TimeWeight + p.VolumeWeight
	if total <= 0 {
		return Weights{Time: fallbackWeight, Volume: fallbackWeight, Fallback: true}
	}
	return Weights{Time: p.TimeWeight / total, Volume: p.VolumeWeight / total}
}

// GuardConfidence blends pair strength with the guard's selection probability.
func GuardConfidence(strength, selectionProbability float64) float64 {
	return min(strength*0.7+selectionProbability*0.3, 100)
}
