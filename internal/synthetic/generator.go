package synthetic

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// Source is the observation source recorded on generated data.
const Source = "synthetic"

var (
	// ErrNoGuards is returned when the topology has no usable guard relay.
	ErrNoGuards = errors.New("topology has no guard relays")

	// ErrNoExits is returned when the topology has no usable exit relay.
	ErrNoExits = errors.New("topology has no exit relays")
)

// Topology is the part of *topology.Analyzer the generator draws relays from.
type Topology interface {
	Guards() []model.Relay
	Exits() []model.Relay
}

// Generator produces synthetic observations over a relay population.
// A Generator is not safe for concurrent use.
type Generator struct {
	rng    *rand.Rand
	guards []model.Relay
	exits  []model.Relay
	ids    map[string]struct{}
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the output reproducible.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // synthetic data, not secrets
	}
}

// NewGenerator creates a generator that picks guards and exits from t.
func NewGenerator(t Topology, opts ...Option) (*Generator, error) {
	g := &Generator{
		guards: t.Guards(),
		exits:  t.Exits(),
		ids:    make(map[string]struct{}),
	}
	if len(g.guards) == 0 {
		return nil, ErrNoGuards
	}
	if len(g.exits) == 0 {
		return nil, ErrNoExits
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		WithSeed(rand.Uint64())(g) //nolint:gosec // synthetic data, not secrets
	}
	return g, nil
}

// Session generates one correlated entry/exit pair. The exit is seen 0.1 to
// 2.0 seconds after the entry and carries 95% to 105% of the entry bytes.
func (g *Generator) Session(at time.Time, guard, exit model.Relay, duration time.Duration) (model.TrafficObservation, model.TrafficObservation) {
	id := g.sessionID()
	entryBytes := 50_000 + g.rng.Int64N(5_000_000-50_000+1)

	entry := g.observation("entry-"+id, model.ObservationEntry, at.UTC(), guard, entryBytes, duration)

	delay := time.Duration((0.1 + g.rng.Float64()*1.9) * float64(time.Second))
	exitBytes := int64(float64(entryBytes) * (0.95 + g.rng.Float64()*0.10))
	exitObs := g.observation("exit-"+id, model.ObservationExit, at.UTC().Add(delay), exit, exitBytes, duration)

	entry.Notes = "synthetic session " + id
	exitObs.Notes = entry.Notes
	return entry, exitObs
}

// UserSessions generates n sessions of a single user spread over the given
// time span. With persistentGuard every session uses the same guard, the way
// a real client keeps its entry guard for weeks.
func (g *Generator) UserSessions(n int, base time.Time, spread time.Duration, persistentGuard bool) (entries, exits []model.TrafficObservation) {
	entries = make([]model.TrafficObservation, 0, n)
	exits = make([]model.TrafficObservation, 0, n)

	guard := g.pick(g.guards)
	for range n {
		if !persistentGuard {
			guard = g.pick(g.guards)
		}
		duration := time.Duration((30 + g.rng.Float64()*270) * float64(time.Second))
		e, x := g.Session(g.within(base, spread), guard, g.pick(g.exits), duration)
		entries = append(entries, e)
		exits = append(exits, x)
	}
	return entries, exits
}

// Noise generates n entry and n exit observations whose timestamps are drawn
// independently, so they belong to no common session.
func (g *Generator) Noise(n int, base time.Time, spread time.Duration) (entries, exits []model.TrafficObservation) {
	entries = make([]model.TrafficObservation, 0, n)
	exits = make([]model.TrafficObservation, 0, n)

	for range n {
		guard, exit := g.pick(g.guards), g.pick(g.exits)
		e, _ := g.Session(g.within(base, spread), guard, exit, time.Minute)
		_, x := g.Session(g.within(base, spread), guard, exit, time.Minute)
		e.Notes, x.Notes = "synthetic noise", "synthetic noise"
		entries = append(entries, e)
		exits = append(exits, x)
	}
	return entries, exits
}

// Scenario describes a generated data set.
type Scenario struct {
	CaseNumber      string
	Sessions        int
	Noise           int
	Spread          time.Duration
	PersistentGuard bool
}

// DefaultScenario is one user with a persistent guard plus background noise
// over a day.
func DefaultScenario() Scenario {
	return Scenario{
		CaseNumber:      "SYNTHETIC",
		Sessions:        10,
		Noise:           20,
		Spread:          24 * time.Hour,
		PersistentGuard: true,
	}
}

// Generate builds the observations of a scenario sorted by timestamp.
func (g *Generator) Generate(base time.Time, s Scenario) ([]model.TrafficObservation, error) {
	if s.Sessions < 0 || s.Noise < 0 {
		return nil, fmt.Errorf("invalid scenario: sessions=%d noise=%d", s.Sessions, s.Noise)
	}
	if s.Spread <= 0 {
		return nil, fmt.Errorf("invalid scenario: spread must be positive, got %s", s.Spread)
	}

	userEntries, userExits := g.UserSessions(s.Sessions, base, s.Spread, s.PersistentGuard)
	noiseEntries, noiseExits := g.Noise(s.Noise, base, s.Spread)

	all := slices.Concat(userEntries, userExits, noiseEntries, noiseExits)
	for i := range all {
		all[i].CaseNumber = s.CaseNumber
	}
	slices.SortStableFunc(all, func(a, b model.TrafficObservation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return all, nil
}

func (g *Generator) observation(
	id string,
	typ model.ObservationType,
	at time.Time,
	relay model.Relay,
	bytes int64,
	duration time.Duration,
) model.TrafficObservation {
	port := 40000 + g.rng.IntN(25001)
	packets := 100 + g.rng.Int64N(901)
	seconds := duration.Seconds()

	return model.TrafficObservation{
		ID:               id,
		Type:             typ,
		Timestamp:        at,
		DurationSeconds:  &seconds,
		ObservedIP:       relay.Address,
		ObservedPort:     &port,
		RelayFingerprint: relay.Fingerprint,
		BytesTransferred: &bytes,
		PacketCount:      &packets,
		Source:           Source,
		CreatedAt:        at,
	}
}

// sessionID returns an eight character hex id not handed out before.
func (g *Generator) sessionID() string {
	for {
		id := fmt.Sprintf("%08x", g.rng.Uint32())
		if _, dup := g.ids[id]; !dup {
			g.ids[id] = struct{}{}
			return id
		}
	}
}

func (g *Generator) pick(relays []model.Relay) model.Relay {
	return relays[g.rng.IntN(len(relays))]
}

func (g *Generator) within(base time.Time, spread time.Duration) time.Time {
	return base.Add(time.Duration(g.rng.Int64N(int64(spread) + 1)))
}
