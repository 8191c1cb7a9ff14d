package topology

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// relay builds a test relay with the given flags.
func relay(fp, addr string, weight int64, flags ...string) model.Relay {
	r, _ := model.NewRelay(fp, "relay"+fp, addr, 9001, flags)
	r.ConsensusWeight = weight
	return r
}

// newTestAnalyzer indexes the relays in a fresh snapshot.
func newTestAnalyzer(relays ...model.Relay) *Analyzer {
	return NewAnalyzer(model.NewTopologySnapshot(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), relays))
}

func TestSameSubnet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "same /16", a: "10.1.2.3", b: "10.1.200.4", want: true},
		{name: "different /16", a: "10.1.2.3", b: "10.2.2.3", want: false},
		{name: "ipv6 pair is never same", a: "2001:db8::1", b: "2001:db8::2", want: false},
		{name: "mixed family", a: "10.1.2.3", b: "2001:db8::1", want: false},
		{name: "v4-mapped v6 compared as v4", a: "::ffff:10.1.2.3", b: "10.1.9.9", want: true},
		{name: "unparsable", a: "not-an-ip", b: "10.1.2.3", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SameSubnet(tt.a, tt.b); got != tt.want {
				t.Errorf("SameSubnet(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIsValidCircuit(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(
		relay("G1", "10.1.0.1", 100, "Guard", "Running", "Valid"),
		relay("M1", "20.1.0.1", 100, "Running", "Valid"),
		relay("E1", "30.1.0.1", 100, "Exit", "Running", "Valid"),
		// all in the same /16
		relay("G2", "40.1.0.1", 100, "Guard", "Running", "Valid"),
		relay("M2", "40.1.0.2", 100, "Running", "Valid"),
		relay("E2", "40.1.0.3", 100, "Exit", "Running", "Valid"),
		// flag problems
		relay("NG", "50.1.0.1", 100, "Running", "Valid"),
		relay("BX", "60.1.0.1", 100, "Exit", "BadExit", "Running", "Valid"),
		relay("DM", "70.1.0.1", 100),
	)

	tests := []struct {
		name           string
		guard, mid, ex string
		wantValid      bool
		wantViolations []string
	}{
		{name: "valid circuit", guard: "G1", mid: "M1", ex: "E1", wantValid: true},
		{
			name: "all hops in one /16", guard: "G2", mid: "M2", ex: "E2",
			wantViolations: []string{
				"guard and middle in same /16 subnet",
				"middle and exit in same /16 subnet",
				"guard and exit in same /16 subnet",
			},
		},
		{
			name: "first hop lacks Guard flag", guard: "NG", mid: "M1", ex: "E1",
			wantViolations: []string{"first relay is not a guard"},
		},
		{
			name: "bad exit", guard: "G1", mid: "M1", ex: "BX",
			wantViolations: []string{"last relay is not an exit"},
		},
		{
			name: "middle not running or valid", guard: "G1", mid: "DM", ex: "E1",
			wantViolations: []string{"middle relay is not Running", "middle relay is not Valid"},
		},
		{
			name: "unknown relays", guard: "G1", mid: "nope", ex: "gone",
			wantViolations: []string{
				"middle relay nope not found in topology",
				"exit relay gone not found in topology",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			valid, violations := a.IsValidCircuit(tt.guard, tt.mid, tt.ex)
			if valid != tt.wantValid {
				t.Errorf("valid = %v, want %v (violations: %v)", valid, tt.wantValid, violations)
			}
			if !slices.Equal(violations, tt.wantViolations) {
				t.Errorf("violations = %q, want %q", violations, tt.wantViolations)
			}
		})
	}
}

func TestIsValidCircuit_NotAGuardIsIndependent(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(
		relay("NG", "40.1.0.1", 100, "Running", "Valid"),
		relay("M", "40.1.0.2", 100),
		relay("E", "40.1.0.3", 100, "Exit"),
	)

	valid, violations := a.IsValidCircuit("NG", "M", "E")
	if valid {
		t.Fatal("expected invalid circuit")
	}
	if !slices.Contains(violations, "first relay is not a guard") {
		t.Errorf("expected not-a-guard violation among %q", violations)
	}
	subnet := 0
	for _, v := range violations {
		if strings.Contains(v, "/16") {
			subnet++
		}
	}
	if subnet != 3 {
		t.Errorf("expected 3 subnet violations, got %d", subnet)
	}
}

func TestEstimateGuardSelectionProbability(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(
		relay("G1", "10.1.0.1", 300, "Guard", "Running", "Valid"),
		relay("G2", "10.2.0.1", 100, "Guard", "Running", "Valid"),
		relay("E1", "10.3.0.1", 1000, "Exit", "Running", "Valid"),
	)

	tests := []struct {
		fp   string
		want float64
	}{
		{"G1", 75},
		{"G2", 25},
		{"E1", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		if got := a.EstimateGuardSelectionProbability(tt.fp); got != tt.want {
			t.Errorf("EstimateGuardSelectionProbability(%s) = %v, want %v", tt.fp, got, tt.want)
		}
	}
}

func TestEstimateGuardSelectionProbability_ZeroWeight(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(relay("G1", "10.1.0.1", 0, "Guard"))
	if got := a.EstimateGuardSelectionProbability("G1"); got != 0 {
		t.Errorf("expected 0 with zero total weight, got %v", got)
	}
}

func TestCompatibleGuardsForExit(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(
		relay("GA", "10.1.0.1", 50, "Guard", "Running", "Valid"),
		relay("GB", "20.1.0.1", 500, "Guard", "Running", "Valid"),
		relay("GC", "30.1.0.1", 500, "Guard", "Running", "Valid"),
		relay("GX", "40.1.0.9", 900, "Guard", "Running", "Valid"),
		relay("EX", "40.1.0.1", 10, "Exit", "Running", "Valid"),
	)

	got := a.CompatibleGuardsForExit("EX")
	var fps []string
	for _, r := range got {
		fps = append(fps, r.Fingerprint)
	}
	// GX shares the exit's /16; GB and GC tie on weight and sort by fingerprint
	want := []string{"GB", "GC", "GA"}
	if !slices.Equal(fps, want) {
		t.Errorf("CompatibleGuardsForExit = %v, want %v", fps, want)
	}

	if !a.IsCompatibleGuard("GA", "EX") || a.IsCompatibleGuard("GX", "EX") {
		t.Error("IsCompatibleGuard disagrees with CompatibleGuardsForExit")
	}

	if unknown := a.CompatibleGuardsForExit("nope"); unknown == nil || len(unknown) != 0 {
		t.Errorf("expected empty non-nil slice for unknown exit, got %v", unknown)
	}
}

func TestGuardsAndExits(t *testing.T) {
	t.Parallel()

	a := newTestAnalyzer(
		relay("G1", "10.1.0.1", 10, "Guard"),
		relay("G2", "10.2.0.1", 20, "Guard", "Exit"),
		relay("E1", "10.3.0.1", 5, "Exit"),
		relay("B1", "10.4.0.1", 99, "Exit", "BadExit"),
	)

	guards := a.Guards()
	if len(guards) != 2 || guards[0].Fingerprint != "G2" {
		t.Errorf("Guards() = %v", guards)
	}
	exits := a.Exits()
	if len(exits) != 2 || exits[0].Fingerprint != "G2" || exits[1].Fingerprint != "E1" {
		t.Errorf("Exits() = %v", exits)
	}

	guards[0].Fingerprint = "mutated"
	if a.Guards()[0].Fingerprint != "G2" {
		t.Error("Guards() exposed internal slice")
	}
}

func TestNewAnalyzer_NilSnapshot(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(nil)
	if a.Len() != 0 {
		t.Errorf("Len() = %d, want 0", a.Len())
	}
	if valid, v := a.IsValidCircuit("a", "b", "c"); valid || len(v) != 3 {
		t.Errorf("IsValidCircuit on empty analyzer = %v, %v", valid, v)
	}
}
