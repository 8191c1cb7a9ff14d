package synthetic

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/torcorrelate/internal/correlation"
	"github.com/nao1215/torcorrelate/internal/model"
	"github.com/nao1215/torcorrelate/internal/topology"
)

var testBase = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestGenerator(t *testing.T, seed uint64) (*Generator, *topology.Analyzer) {
	t.Helper()

	analyzer := topology.NewAnalyzer(DemoSnapshot(7, testBase))
	g, err := NewGenerator(analyzer, WithSeed(seed))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g, analyzer
}

func TestDemoSnapshot(t *testing.T) {
	t.Parallel()

	a := DemoSnapshot(7, testBase)
	b := DemoSnapshot(7, testBase)
	c := DemoSnapshot(8, testBase)

	if a.Digest != b.Digest {
		t.Error("same seed must produce the same digest")
	}
	if a.Digest == c.Digest {
		t.Error("different seeds should produce different digests")
	}
	if a.GuardCount != 4 || a.ExitCount != 5 {
		t.Errorf("expected 4 guards and 5 exits, got %d and %d", a.GuardCount, a.ExitCount)
	}
	for _, r := range a.Relays {
		if len(r.Fingerprint) != 40 {
			t.Errorf("fingerprint %q should have 40 characters", r.Fingerprint)
		}
	}
	if !slices.IsSortedFunc(a.Relays, func(x, y model.Relay) int {
		return strings.Compare(x.Fingerprint, y.Fingerprint)
	}) {
		t.Error("relays should be sorted by fingerprint")
	}
}

type emptyTopology struct {
	guards, exits []model.Relay
}

func (e emptyTopology) Guards() []model.Relay { return e.guards }
func (e emptyTopology) Exits() []model.Relay  { return e.exits }

func TestNewGenerator_Errors(t *testing.T) {
	t.Parallel()

	relay := model.Relay{Fingerprint: "AAAA"}
	tests := []struct {
		name    string
		topo    Topology
		wantErr error
	}{
		{name: "no guards", topo: emptyTopology{exits: []model.Relay{relay}}, wantErr: ErrNoGuards},
		{name: "no exits", topo: emptyTopology{guards: []model.Relay{relay}}, wantErr: ErrNoExits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewGenerator(tt.topo); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSession(t *testing.T) {
	t.Parallel()

	g, analyzer := newTestGenerator(t, 1)
	guard, exit := analyzer.Guards()[0], analyzer.Exits()[0]

	for range 200 {
		entry, exitObs := g.Session(testBase, guard, exit, time.Minute)

		if err := entry.Validate(); err != nil {
			t.Fatalf("entry invalid: %v", err)
		}
		if err := exitObs.Validate(); err != nil {
			t.Fatalf("exit invalid: %v", err)
		}
		if entry.Type != model.ObservationEntry || exitObs.Type != model.ObservationExit {
			t.Fatalf("unexpected types %s/%s", entry.Type, exitObs.Type)
		}

		delay := exitObs.Timestamp.Sub(entry.Timestamp)
		if delay < 100*time.Millisecond || delay > 2*time.Second {
			t.Errorf("exit delay %s outside 0.1s..2s", delay)
		}

		ratio := float64(*exitObs.BytesTransferred) / float64(*entry.BytesTransferred)
		if ratio < 0.949 || ratio > 1.051 {
			t.Errorf("byte ratio %.4f outside 0.95..1.05", ratio)
		}
		if *entry.BytesTransferred < 50_000 || *entry.BytesTransferred > 5_000_000 {
			t.Errorf("entry bytes %d outside 50KB..5MB", *entry.BytesTransferred)
		}

		if entry.RelayFingerprint != guard.Fingerprint || entry.ObservedIP != guard.Address {
			t.Errorf("entry should be observed at the guard, got %s", entry.RelayFingerprint)
		}
		if exitObs.RelayFingerprint != exit.Fingerprint {
			t.Errorf("exit should be observed at the exit, got %s", exitObs.RelayFingerprint)
		}
		if entry.Source != Source {
			t.Errorf("expected source %q, got %q", Source, entry.Source)
		}
	}
}

func TestUserSessions_PersistentGuard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		persistent bool
	}{
		{name: "persistent guard", persistent: true},
		{name: "rotating guard", persistent: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g, _ := newTestGenerator(t, 42)
			entries, exits := g.UserSessions(30, testBase, 24*time.Hour, tt.persistent)

			if len(entries) != 30 || len(exits) != 30 {
				t.Fatalf("expected 30 entries and exits, got %d and %d", len(entries), len(exits))
			}

			guards := map[string]bool{}
			for _, e := range entries {
				guards[e.RelayFingerprint] = true
				if e.Timestamp.Before(testBase) || e.Timestamp.After(testBase.Add(24*time.Hour)) {
					t.Errorf("session at %s outside the spread", e.Timestamp)
				}
			}
			if tt.persistent && len(guards) != 1 {
				t.Errorf("expected one guard, got %d", len(guards))
			}
			if !tt.persistent && len(guards) < 2 {
				t.Errorf("expected several guards over 30 sessions, got %d", len(guards))
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	t.Parallel()

	g1, _ := newTestGenerator(t, 99)
	g2, _ := newTestGenerator(t, 99)

	a, err := g1.Generate(testBase, DefaultScenario())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := g2.Generate(testBase, DefaultScenario())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := 2 * (DefaultScenario().Sessions + DefaultScenario().Noise)
	if len(a) != want {
		t.Fatalf("expected %d observations, got %d", want, len(a))
	}
	ids := map[string]bool{}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Timestamp.Equal(b[i].Timestamp) {
			t.Fatalf("observation %d differs between runs with the same seed", i)
		}
		if ids[a[i].ID] {
			t.Errorf("duplicate observation id %s", a[i].ID)
		}
		ids[a[i].ID] = true
		if a[i].CaseNumber != "SYNTHETIC" {
			t.Errorf("expected case number on every observation, got %q", a[i].CaseNumber)
		}
		if i > 0 && a[i].Timestamp.Before(a[i-1].Timestamp) {
			t.Error("observations should be sorted by timestamp")
		}
	}
}

func TestGenerate_InvalidScenario(t *testing.T) {
	t.Parallel()

	g, _ := newTestGenerator(t, 1)
	tests := []struct {
		name string
		s    Scenario
	}{
		{name: "negative sessions", s: Scenario{Sessions: -1, Spread: time.Hour}},
		{name: "negative noise", s: Scenario{Noise: -1, Spread: time.Hour}},
		{name: "zero spread", s: Scenario{Sessions: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Generate(testBase, tt.s); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// TestGenerate_Correlates checks that generated user sessions are found by
// the engine and grouped into a cluster around the persistent guard.
func TestGenerate_Correlates(t *testing.T) {
	t.Parallel()

	g, analyzer := newTestGenerator(t, 2024)
	observations, err := g.Generate(testBase, Scenario{
		CaseNumber:      "DEMO",
		Sessions:        8,
		Spread:          24 * time.Hour,
		PersistentGuard: true,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	engine, err := correlation.NewEngine(correlation.DefaultSettings(), correlation.WithGuardEstimator(analyzer))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	entries, exits := model.SplitObservations(observations)
	pairs := engine.Correlate(entries, exits)

	matched := 0
	for _, p := range pairs {
		if p.EntryObservationID[len("entry-"):] == p.ExitObservationID[len("exit-"):] {
			matched++
		}
	}
	if matched < 8 {
		t.Errorf("expected every session to pair with its own exit, matched %d", matched)
	}

	clusters := engine.Cluster(pairs)
	if len(clusters) == 0 {
		t.Fatal("expected a cluster around the persistent guard")
	}
	if clusters[0].ProbableGuards[0] != entries[0].RelayFingerprint {
		t.Errorf("expected cluster guard %s, got %v", entries[0].RelayFingerprint, clusters[0].ProbableGuards)
	}
}
