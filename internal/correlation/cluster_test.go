package correlation

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// pairFor builds an already-scored pair for clustering tests.
func pairFor(n int, guard string, strength float64, created time.Time) model.SessionPair {
	return model.SessionPair{
		ID:                  fmt.Sprintf("pair-e%d-x%d", n, n),
		EntryObservationID:  fmt.Sprintf("e%d", n),
		ExitObservationID:   fmt.Sprintf("x%d", n),
		HypothesizedGuard:   guard,
		CorrelationStrength: strength,
		ObservedAt:          created,
		CreatedAt:           created,
	}
}

func TestCluster(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, DefaultSettings())
	pairs := []model.SessionPair{
		pairFor(1, "G-B", 60, testBase),
		pairFor(2, "G-A", 80, testBase),
		pairFor(3, "G-B", 70, testBase.Add(time.Hour)),
		pairFor(4, "", 99, testBase),
		pairFor(5, "G-A", 90, testBase.Add(2*time.Hour)),
		pairFor(6, "G-B", 80, testBase.Add(3*time.Hour)),
		pairFor(7, "G-C", 95, testBase),
	}

	clusters := e.Cluster(pairs)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster (only G-B has 3 pairs), got %d", len(clusters))
	}
	c := clusters[0]

	if c.ID != "cluster-1" {
		t.Errorf("ID = %q", c.ID)
	}
	if !slices.Equal(c.PairIDs, []string{"pair-e1-x1", "pair-e3-x3", "pair-e6-x6"}) {
		t.Errorf("PairIDs = %v", c.PairIDs)
	}
	if !slices.Equal(c.ObservationIDs, []string{"e1", "e3", "e6", "x1", "x3", "x6"}) {
		t.Errorf("ObservationIDs = %v", c.ObservationIDs)
	}
	if c.ObservationCount != 6 {
		t.Errorf("ObservationCount = %d, want 6", c.ObservationCount)
	}
	if c.ConsistencyScore != 70 || c.PersistenceScore != 30 {
		t.Errorf("consistency/persistence = %v/%v, want 70/30", c.ConsistencyScore, c.PersistenceScore)
	}
	if want := 0.6*70 + 0.4*30; math.Abs(c.Confidence-want) > 1e-9 {
		t.Errorf("Confidence = %v, want %v", c.Confidence, want)
	}
	if !c.FirstObservation.Equal(testBase) || !c.LastObservation.Equal(testBase.Add(3*time.Hour)) {
		t.Errorf("span = %v..%v", c.FirstObservation, c.LastObservation)
	}
	if c.AvgSecondsBetween == nil || *c.AvgSecondsBetween != 5400 {
		t.Errorf("AvgSecondsBetween = %v, want 5400", c.AvgSecondsBetween)
	}
	if !slices.Equal(c.ProbableGuards, []string{"G-B"}) {
		t.Errorf("ProbableGuards = %v", c.ProbableGuards)
	}

	reasoning := strings.Join(c.Reasoning, "\n")
	for _, want := range []string{
		"Found 3 correlated session pairs",
		"All pairs share hypothesized guard: G-B",
		"Average correlation strength: 70.0%",
		"Observations span 3.0 hours",
	} {
		if !strings.Contains(reasoning, want) {
			t.Errorf("reasoning does not contain %q:\n%s", want, reasoning)
		}
	}
	if strings.Contains(reasoning, "Strong guard persistence") {
		t.Error("persistence of 30 should not be called strong")
	}
}

func TestCluster_OrderAndPersistence(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.MinObservationsForCluster = 2
	e := newTestEngine(t, s)

	var pairs []model.SessionPair
	for i := range 8 {
		pairs = append(pairs, pairFor(i, "G-Z", 90, testBase.Add(time.Duration(i)*time.Minute)))
	}
	pairs = append(pairs,
		pairFor(100, "G-Y", 50, testBase),
		pairFor(101, "G-Y", 50, testBase),
	)

	clusters := e.Cluster(pairs)
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if clusters[0].ProbableGuards[0] != "G-Z" || clusters[1].ID != "cluster-2" {
		t.Errorf("clusters not in order of first appearance: %s %v, %s", clusters[0].ID, clusters[0].ProbableGuards, clusters[1].ID)
	}
	if clusters[0].PersistenceScore != 80 {
		t.Errorf("PersistenceScore = %v, want 80", clusters[0].PersistenceScore)
	}
	if !strings.Contains(strings.Join(clusters[0].Reasoning, " "), "Strong guard persistence") {
		t.Error("persistence of 80 should be called strong")
	}
	if clusters[1].AvgSecondsBetween != nil {
		t.Errorf("identical times should leave AvgSecondsBetween nil, got %v", *clusters[1].AvgSecondsBetween)
	}
}

func TestCluster_NeverBelowMinimum(t *testing.T) {
	t.Parallel()

	for minObs := 1; minObs <= 6; minObs++ {
		s := DefaultSettings()
		s.MinObservationsForCluster = minObs
		e := newTestEngine(t, s)

		var pairs []model.SessionPair
		for g := range 6 {
			for i := range g + 1 {
				pairs = append(pairs, pairFor(g*10+i, fmt.Sprintf("G%d", g), 50, testBase))
			}
		}

		for _, c := range e.Cluster(pairs) {
			if len(c.PairIDs) < minObs {
				t.Errorf("min %d: cluster %s has %d pairs", minObs, c.ID, len(c.PairIDs))
			}
		}
	}
}

func TestCorrelateThenCluster(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, DefaultSettings())

	var entries, exits []model.TrafficObservation
	for i := range 5 {
		offset := time.Duration(i) * time.Hour
		entries = append(entries, obs(fmt.Sprintf("e%d", i), model.ObservationEntry, offset, guardFP, 2_000_000))
		exits = append(exits, obs(fmt.Sprintf("x%d", i), model.ObservationExit, offset+time.Second, exitFP, 2_010_000))
	}

	clusters := e.Cluster(e.Correlate(entries, exits))
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	c := clusters[0]
	if c.ObservationCount != 10 || len(c.PairIDs) != 5 {
		t.Errorf("cluster has %d observations and %d pairs", c.ObservationCount, len(c.PairIDs))
	}
	if c.AvgSecondsBetween == nil || *c.AvgSecondsBetween != 3600 {
		t.Errorf("AvgSecondsBetween = %v, want 3600", c.AvgSecondsBetween)
	}
}
