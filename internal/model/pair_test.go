package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfidenceFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		strength float64
		want     ConfidenceLevel
	}{
		{100, ConfidenceHigh},
		{70, ConfidenceHigh},
		{69.99, ConfidenceMedium},
		{40, ConfidenceMedium},
		{39.9, ConfidenceLow},
		{0, ConfidenceLow},
	}

	for _, tt := range tests {
		if got := ConfidenceFor(tt.strength); got != tt.want {
			t.Errorf("ConfidenceFor(%v) = %s, want %s", tt.strength, got, tt.want)
		}
	}
}

func TestPatternScoreJSON(t *testing.T) {
	t.Parallel()

	t.Run("absent encodes as null", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(struct {
			P PatternScore `json:"p"`
		}{PatternAbsent()})
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != `{"p":null}` {
			t.Errorf("got %s", data)
		}
	})

	t.Run("null decodes as absent", func(t *testing.T) {
		t.Parallel()

		p := PatternPresent(10)
		if err := json.Unmarshal([]byte("null"), &p); err != nil {
			t.Fatal(err)
		}
		if p.Present() {
			t.Error("expected absent score")
		}
	})

	t.Run("present value survives", func(t *testing.T) {
		t.Parallel()

		var p PatternScore
		if err := json.Unmarshal([]byte("83.5"), &p); err != nil {
			t.Fatal(err)
		}
		if v, ok := p.Value(); !ok || v != 83.5 {
			t.Errorf("Value() = %v, %v", v, ok)
		}
	})
}

func TestConfidenceLevelJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ConfidenceMedium)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"MEDIUM"` {
		t.Errorf("got %s", data)
	}

	var c ConfidenceLevel
	if err := json.Unmarshal([]byte(`"HIGH"`), &c); err != nil || c != ConfidenceHigh {
		t.Errorf("Unmarshal = %v, %v", c, err)
	}
}

func TestPairID(t *testing.T) {
	t.Parallel()

	if got := PairID("e1", "x9"); got != "pair-e1-x9" {
		t.Errorf("PairID = %q", got)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	pairs := []SessionPair{
		{CorrelationStrength: 90},
		{CorrelationStrength: 50},
		{CorrelationStrength: 31},
		{CorrelationStrength: 75},
	}
	var clusters []CorrelationCluster
	for i, c := range []float64{40, 90, 10, 60, 70, 80} {
		clusters = append(clusters, CorrelationCluster{
			ID:             "cluster-" + string(rune('a'+i)),
			Confidence:     c,
			ProbableGuards: []string{"G"},
		})
	}

	s := Summarize(pairs, clusters)

	if s.TotalPairs != 4 || s.TotalClusters != 6 {
		t.Errorf("totals = %d/%d", s.TotalPairs, s.TotalClusters)
	}
	if s.AverageCorrelation != 61.5 {
		t.Errorf("AverageCorrelation = %v, want 61.5", s.AverageCorrelation)
	}
	want := ConfidenceDistribution{High: 2, Medium: 1, Low: 1}
	if s.ConfidenceDistribution != want {
		t.Errorf("distribution = %+v, want %+v", s.ConfidenceDistribution, want)
	}
	if len(s.TopClusters) != 5 {
		t.Fatalf("expected 5 top clusters, got %d", len(s.TopClusters))
	}
	if s.TopClusters[0].Confidence != 90 || s.TopClusters[4].Confidence != 40 {
		t.Errorf("top clusters not sorted by confidence: %+v", s.TopClusters)
	}
}

func TestSummarize_Empty(t *testing.T) {
	t.Parallel()

	s := Summarize(nil, nil)
	if s.TotalPairs != 0 || s.AverageCorrelation != 0 || s.TopClusters == nil {
		t.Errorf("unexpected empty summary: %+v", s)
	}
}

func TestTrafficObservationValidate(t *testing.T) {
	t.Parallel()

	valid := TrafficObservation{ID: "e1", Type: ObservationEntry, Timestamp: time.Now()}

	tests := []struct {
		name    string
		mutate  func(o *TrafficObservation)
		wantErr string
	}{
		{name: "valid", mutate: func(*TrafficObservation) {}},
		{name: "missing id", mutate: func(o *TrafficObservation) { o.ID = "" }, wantErr: "id is empty"},
		{name: "unknown type", mutate: func(o *TrafficObservation) { o.Type = "sideways" }, wantErr: "unknown type"},
		{name: "zero timestamp", mutate: func(o *TrafficObservation) { o.Timestamp = time.Time{} }, wantErr: "no timestamp"},
		{name: "negative bytes", mutate: func(o *TrafficObservation) { o.BytesTransferred = Int64(-1) }, wantErr: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			o := valid
			tt.mutate(&o)
			err := o.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidObservation) || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want ErrInvalidObservation containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSplitObservations(t *testing.T) {
	t.Parallel()

	all := []TrafficObservation{
		{ID: "e1", Type: ObservationEntry},
		{ID: "x1", Type: ObservationExit},
		{ID: "s1", Type: ObservationSynthetic},
		{ID: "e2", Type: ObservationEntry},
	}
	entries, exits := SplitObservations(all)
	if len(entries) != 2 || len(exits) != 1 {
		t.Errorf("split = %d entries, %d exits", len(entries), len(exits))
	}
	if entries[1].ID != "e2" {
		t.Errorf("order not preserved: %v", entries)
	}
}
