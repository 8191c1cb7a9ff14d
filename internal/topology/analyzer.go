package topology

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nao1215/torcorrelate/internal/model"
)

// Analyzer is an immutable index over one topology snapshot.
// It is safe for concurrent use because nothing is modified after NewAnalyzer.
type Analyzer struct {
	snapshotID string
	relays     map[string]model.Relay

	// guards and exits are pre-sorted by consensus weight, heaviest first.
	guards []model.Relay
	exits  []model.Relay

	totalGuardWeight int64
	logger           *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger used while indexing.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer indexes the relays of a snapshot by fingerprint.
// A nil snapshot produces an analyzer that knows no relays.
// When a fingerprint appears twice, the later entry wins.
func NewAnalyzer(snapshot *model.TopologySnapshot, opts ...Option) *Analyzer {
	a := &Analyzer{
		relays: make(map[string]model.Relay),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if snapshot == nil {
		return a
	}

	a.snapshotID = snapshot.ID
	for _, r := range snapshot.Relays {
		if _, dup := a.relays[r.Fingerprint]; dup {
			a.logger.Debug("duplicate relay in snapshot", "fingerprint", r.Fingerprint)
		}
		a.relays[r.Fingerprint] = r
	}

	for _, r := range a.relays {
		if r.IsGuard() {
			a.guards = append(a.guards, r)
			a.totalGuardWeight += r.ConsensusWeight
		}
		if r.IsExit() {
			a.exits = append(a.exits, r)
		}
	}
	slices.SortFunc(a.guards, byWeightDesc)
	slices.SortFunc(a.exits, byWeightDesc)

	a.logger.Debug("topology indexed",
		"snapshot_id", a.snapshotID,
		"relays", len(a.relays),
		"guards", len(a.guards),
		"exits", len(a.exits),
	)
	return a
}

// byWeightDesc orders relays by consensus weight, then fingerprint for stability.
func byWeightDesc(a, b model.Relay) int {
	if c := cmp.Compare(b.ConsensusWeight, a.ConsensusWeight); c != 0 {
		return c
	}
	return cmp.Compare(a.Fingerprint, b.Fingerprint)
}

// SnapshotID returns the id of the indexed snapshot.
func (a *Analyzer) SnapshotID() string {
	return a.snapshotID
}

// Relay looks up a relay by fingerprint.
func (a *Analyzer) Relay(fingerprint string) (model.Relay, bool) {
	r, ok := a.relays[fingerprint]
	return r, ok
}

// Len returns the number of indexed relays.
func (a *Analyzer) Len() int {
	return len(a.relays)
}

// Guards returns all guard-capable relays, heaviest first.
func (a *Analyzer) Guards() []model.Relay {
	return slices.Clone(a.guards)
}

// Exits returns all exit-capable relays, heaviest first.
func (a *Analyzer) Exits() []model.Relay {
	return slices.Clone(a.exits)
}

// IsValidCircuit checks a guard/middle/exit triple against the path constraints
// and returns every violation found. When a relay is missing from the
// snapshot, the remaining checks are skipped because they need the relay.
func (a *Analyzer) IsValidCircuit(guardFp, middleFp, exitFp string) (bool, []string) {
	var violations []string

	hops := []struct {
		role string
		fp   string
	}{
		{"guard", guardFp},
		{"middle", middleFp},
		{"exit", exitFp},
	}
	relays := make([]model.Relay, len(hops))
	for i, h := range hops {
		r, ok := a.relays[h.fp]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s relay %s not found in topology", h.role, h.fp))
			continue
		}
		relays[i] = r
	}
	if len(violations) > 0 {
		return false, violations
	}
	guard, middle, exit := relays[0], relays[1], relays[2]

	if !guard.IsGuard() {
		violations = append(violations, "first relay is not a guard")
	}
	if !exit.IsExit() {
		violations = append(violations, "last relay is not an exit")
	}

	if SameSubnet(guard.Address, middle.Address) {
		violations = append(violations, "guard and middle in same /16 subnet")
	}
	if SameSubnet(middle.Address, exit.Address) {
		violations = append(violations, "middle and exit in same /16 subnet")
	}
	if SameSubnet(guard.Address, exit.Address) {
		violations = append(violations, "guard and exit in same /16 subnet")
	}

	for i, h := range hops {
		if !relays[i].HasFlag(model.FlagRunning) {
			violations = append(violations, h.role+" relay is not Running")
		}
		if !relays[i].HasFlag(model.FlagValid) {
			violations = append(violations, h.role+" relay is not Valid")
		}
	}

	return len(violations) == 0, violations
}

// EstimateGuardSelectionProbability returns the share, in percent, of total
// guard consensus weight held by the given relay. It returns 0 when the relay
// is unknown, is not a guard, or when no guard carries any weight.
func (a *Analyzer) EstimateGuardSelectionProbability(fingerprint string) float64 {
	r, ok := a.relays[fingerprint]
	if !ok || !r.IsGuard() || a.totalGuardWeight == 0 {
		return 0
	}
	return float64(r.ConsensusWeight) / float64(a.totalGuardWeight) * 100
}

// CompatibleGuardsForExit returns the guards outside the exit's /16, heaviest
// first. An unknown exit yields an empty slice.
func (a *Analyzer) CompatibleGuardsForExit(exitFp string) []model.Relay {
	exit, ok := a.relays[exitFp]
	if !ok {
		return []model.Relay{}
	}

	compatible := make([]model.Relay, 0, len(a.guards))
	for _, g := range a.guards {
		if g.Fingerprint == exit.Fingerprint {
			continue
		}
		if !SameSubnet(g.Address, exit.Address) {
			compatible = append(compatible, g)
		}
	}
	return compatible
}

// IsCompatibleGuard reports whether guardFp is among CompatibleGuardsForExit(exitFp).
func (a *Analyzer) IsCompatibleGuard(guardFp, exitFp string) bool {
	exit, ok := a.relays[exitFp]
	if !ok {
		return false
	}
	guard, ok := a.relays[guardFp]
	if !ok || !guard.IsGuard() || guard.Fingerprint == exit.Fingerprint {
		return false
	}
	return !SameSubnet(guard.Address, exit.Address)
}
