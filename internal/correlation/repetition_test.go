package correlation

import (
	"testing"

	"github.com/nao1215/torcorrelate/internal/model"
)

func TestPatternKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		obs  model.TrafficObservation
		want string
	}{
		{
			name: "bucketed volume",
			obs:  model.TrafficObservation{RelayFingerprint: "AAAA", Type: model.ObservationEntry, BytesTransferred: model.Int64(2_523_456)},
			want: "AAAA:entry_observed:2500000",
		},
		{
			name: "below first bucket",
			obs:  model.TrafficObservation{RelayFingerprint: "AAAA", Type: model.ObservationExit, BytesTransferred: model.Int64(99_999)},
			want: "AAAA:exit_observed:0",
		},
		{
			name: "unknown volume and relay",
			obs:  model.TrafficObservation{Type: model.ObservationEntry},
			want: "unknown:entry_observed:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := PatternKey(tt.obs); got != tt.want {
				t.Errorf("PatternKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRepetitionWeight(t *testing.T) {
	t.Parallel()

	s := DefaultSettings().Repetition

	tests := []struct {
		count int
		want  float64
	}{
		{0, 1.0},
		{1, 1.0},
		{2, 1.5},
		{4, 2.0},
		{1000, 2.0},
	}
	for _, tt := range tests {
		if got := RepetitionWeight(tt.count, s); got != tt.want {
			t.Errorf("RepetitionWeight(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestRepetitionWeight_Properties(t *testing.T) {
	t.Parallel()

	settings := []RepetitionSettings{
		DefaultSettings().Repetition,
		{Enabled: true, BoostFactor: 1.2, MinRepetitions: 3, MaxBoost: 1.8},
		{Enabled: true, BoostFactor: 3, MinRepetitions: 1, MaxBoost: 4},
	}

	for _, s := range settings {
		prev := 0.0
		for n := 0; n <= 256; n++ {
			w := RepetitionWeight(n, s)
			if n < s.MinRepetitions && w != 1.0 {
				t.Errorf("%+v: weight(%d) = %v, want exactly 1.0", s, n, w)
			}
			if w < prev {
				t.Errorf("%+v: weight(%d) = %v decreased from %v", s, n, w, prev)
			}
			if w > s.MaxBoost {
				t.Errorf("%+v: weight(%d) = %v exceeds max boost", s, n, w)
			}
			prev = w
		}
	}
}

func TestApplyBoost(t *testing.T) {
	t.Parallel()

	if got := ApplyBoost(60, 1.0); got != 60 {
		t.Errorf("ApplyBoost(60, 1.0) = %v", got)
	}
	if got := ApplyBoost(60, 1.5); got != 75 {
		t.Errorf("ApplyBoost(60, 1.5) = %v, want 75", got)
	}
	if got := ApplyBoost(90, 2.0); got != 100 {
		t.Errorf("ApplyBoost(90, 2.0) = %v, want capped 100", got)
	}
}

func TestRepetitionTable_Deduplication(t *testing.T) {
	t.Parallel()

	obs := model.TrafficObservation{ID: "e1", RelayFingerprint: "G", Type: model.ObservationEntry}

	t.Run("replayed id is counted once", func(t *testing.T) {
		t.Parallel()

		table := newRepetitionTable(DefaultSettings().Repetition)
		table.observe(obs)
		w, n := table.observe(obs)
		if n != 1 || w != 1.0 {
			t.Errorf("after replay count = %d, weight = %v; want 1, 1.0", n, w)
		}
	})

	t.Run("count replays re-increments", func(t *testing.T) {
		t.Parallel()

		s := DefaultSettings().Repetition
		s.CountReplays = true
		table := newRepetitionTable(s)
		table.observe(obs)
		w, n := table.observe(obs)
		if n != 2 || w != 1.5 {
			t.Errorf("after replay count = %d, weight = %v; want 2, 1.5", n, w)
		}
	})

	t.Run("no fingerprint is never counted", func(t *testing.T) {
		t.Parallel()

		table := newRepetitionTable(DefaultSettings().Repetition)
		anon := obs
		anon.RelayFingerprint = ""
		for range 3 {
			if w, n := table.observe(anon); w != 1.0 || n != 0 {
				t.Fatalf("weight = %v, count = %d for observation without fingerprint", w, n)
			}
		}
		if got := table.stats().TotalUniquePatterns; got != 0 {
			t.Errorf("TotalUniquePatterns = %d, want 0", got)
		}
	})
}

func TestRepetitionTable_Stats(t *testing.T) {
	t.Parallel()

	table := newRepetitionTable(DefaultSettings().Repetition)
	observe := func(id, fp string, n int) {
		for i := range n {
			table.observe(model.TrafficObservation{
				ID:               id + string(rune('a'+i)),
				RelayFingerprint: fp,
				Type:             model.ObservationEntry,
			})
		}
	}
	observe("x", "B", 3)
	observe("y", "A", 3)
	observe("z", "C", 1)

	s := table.stats()
	if !s.Enabled || s.TotalUniquePatterns != 3 || s.RepeatedPatterns != 2 || s.MaxRepetitions != 3 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if s.AvgRepetitions != 2.33 {
		t.Errorf("AvgRepetitions = %v, want 2.33", s.AvgRepetitions)
	}
	want := []string{"A:entry_observed:0", "B:entry_observed:0", "C:entry_observed:0"}
	for i, p := range s.TopPatterns {
		if p.Pattern != want[i] {
			t.Errorf("TopPatterns[%d] = %q, want %q", i, p.Pattern, want[i])
		}
	}
	if s.BoostParameters.MinRepetitions != 2 || s.BoostParameters.BoostFactor != 1.5 || s.BoostParameters.MaxBoost != 2.0 {
		t.Errorf("BoostParameters = %+v", s.BoostParameters)
	}

	table.reset()
	if got := table.stats(); got.TotalUniquePatterns != 0 || len(got.TopPatterns) != 0 {
		t.Errorf("stats after reset: %+v", got)
	}
}
