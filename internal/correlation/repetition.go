package correlation

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/nao1215/torcorrelate/internal/model"
)

const (
	// volumeBucketSize groups byte counts into 100 kB buckets so that
	// near-identical transfers share a pattern key.
	volumeBucketSize = 100_000

	// boostDamping halves the effect of the averaged repetition weight.
	boostDamping = 0.5

	// maxTopPatterns limits the pattern list in RepetitionStats.
	maxTopPatterns = 10
)

// PatternKey returns "<fingerprint>:<type>:<bucket>" for an observation.
// Unknown byte counts fall into bucket 0.
func PatternKey(o model.TrafficObservation) string {
	fp := o.RelayFingerprint
	if fp == "" {
		fp = "unknown"
	}
	var bucket int64
	if o.BytesTransferred != nil {
		bucket = *o.BytesTransferred / volumeBucketSize * volumeBucketSize
	}
	return fp + ":" + string(o.Type) + ":" + strconv.FormatInt(bucket, 10)
}

// RepetitionWeight maps a pattern count to a weight multiplier.
// Counts below MinRepetitions give 1.0; above that the weight grows with
// log2(count) and is capped at MaxBoost.
func RepetitionWeight(count int, s RepetitionSettings) float64 {
	if count < s.MinRepetitions || count < 1 {
		return 1.0
	}
	return min(s.MaxBoost, 1+math.Log2(float64(count))*(s.BoostFactor-1))
}

// ApplyBoost applies the averaged repetition weight to a base score.
func ApplyBoost(base, avgWeight float64) float64 {
	return min(100, base*(1+(avgWeight-1)*boostDamping))
}

// repetitionTable is the engine-owned pattern frequency table.
// All access goes through mu so concurrent Correlate calls never lose increments.
type repetitionTable struct {
	mu       sync.Mutex
	settings RepetitionSettings
	counts   map[string]int

	// seen records observation ids already counted, keyed by id.
	seen map[string]struct{}
}

func newRepetitionTable(s RepetitionSettings) *repetitionTable {
	return &repetitionTable{
		settings: s,
		counts:   make(map[string]int),
		seen:     make(map[string]struct{}),
	}
}

// observe counts an observation and returns its weight.
// Observations without a relay fingerprint are not counted and weigh 1.0.
func (t *repetitionTable) observe(o model.TrafficObservation) (weight float64, count int) {
	if !t.settings.Enabled || o.RelayFingerprint == "" {
		return 1.0, 0
	}

	key := PatternKey(o)

	t.mu.Lock()
	defer t.mu.Unlock()

	_, replay := t.seen[o.ID]
	if !replay || t.settings.CountReplays {
		t.counts[key]++
		t.seen[o.ID] = struct{}{}
	}
	count = t.counts[key]
	return RepetitionWeight(count, t.settings), count
}

// count returns the current count for a pattern key.
func (t *repetitionTable) count(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[key]
}

// reset clears all counts and seen ids.
func (t *repetitionTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.counts)
	clear(t.seen)
}

// stats summarizes the table.
func (t *repetitionTable) stats() model.RepetitionStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := model.RepetitionStats{
		Enabled:             t.settings.Enabled,
		TotalUniquePatterns: len(t.counts),
		TopPatterns:         make([]model.PatternCount, 0, min(len(t.counts), maxTopPatterns)),
		BoostParameters: model.BoostParameters{
			MinRepetitions: t.settings.MinRepetitions,
			BoostFactor:    t.settings.BoostFactor,
			MaxBoost:       t.settings.MaxBoost,
		},
	}
	if len(t.counts) == 0 {
		return s
	}

	all := make([]model.PatternCount, 0, len(t.counts))
	total := 0
	for k, c := range t.counts {
		all = append(all, model.PatternCount{Pattern: k, Count: c})
		total += c
		if c >= 2 {
			s.RepeatedPatterns++
		}
		s.MaxRepetitions = max(s.MaxRepetitions, c)
	}
	s.AvgRepetitions = math.Round(float64(total)/float64(len(t.counts))*100) / 100

	slices.SortFunc(all, func(a, b model.PatternCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Pattern, b.Pattern)
	})
	s.TopPatterns = append(s.TopPatterns, all[:min(len(all), maxTopPatterns)]...)

	return s
}
