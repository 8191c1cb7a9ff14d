package synthetic

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

// demoRelay describes one relay of the demo population.
type demoRelay struct {
	nickname string
	address  string
	weight   int64
	flags    []string
}

// demoRelays spreads guards, exits and middles over distinct /16 networks,
// with one exit sharing a /16 with the first guard.
var demoRelays = []demoRelay{
	{"DemoGuardA", "10.1.0.1", 9000, []string{"Guard", "Running", "Valid", "Fast", "Stable"}},
	{"DemoGuardB", "10.2.0.1", 6000, []string{"Guard", "Running", "Valid", "Fast", "Stable"}},
	{"DemoGuardC", "10.3.0.1", 3000, []string{"Guard", "Running", "Valid", "Fast", "Stable"}},
	{"DemoGuardExit", "10.4.0.1", 4000, []string{"Guard", "Exit", "Running", "Valid", "Fast", "Stable"}},
	{"DemoMiddleA", "172.16.0.1", 2000, []string{"Running", "Valid", "Fast"}},
	{"DemoMiddleB", "172.17.0.1", 2000, []string{"Running", "Valid", "Fast"}},
	{"DemoExitA", "192.0.2.10", 5000, []string{"Exit", "Running", "Valid", "Fast"}},
	{"DemoExitB", "198.51.100.10", 4000, []string{"Exit", "Running", "Valid", "Fast"}},
	{"DemoExitC", "203.0.113.10", 2500, []string{"Exit", "Running", "Valid"}},
	{"DemoExitNear", "10.1.200.7", 1500, []string{"Exit", "Running", "Valid"}},
}

// DemoSnapshot builds a small topology for offline demos. Fingerprints are
// derived from seed, so the same seed yields the same snapshot digest.
func DemoSnapshot(seed uint64, captured time.Time) *model.TopologySnapshot {
	rng := rand.New(rand.NewPCG(seed, ^seed)) //nolint:gosec // synthetic data, not secrets

	relays := make([]model.Relay, 0, len(demoRelays))
	for _, d := range demoRelays {
		r, _ := model.NewRelay(fingerprint(rng), d.nickname, d.address, 9001, d.flags)
		r.ConsensusWeight = d.weight
		r.ObservedBandwidth = d.weight * 1000
		r.AdvertisedBandwidth = d.weight * 1200
		r.FirstSeen = captured.Add(-90 * 24 * time.Hour).UTC()
		r.LastSeen = captured.UTC()
		relays = append(relays, r)
	}
	slices.SortFunc(relays, func(a, b model.Relay) int {
		return strings.Compare(a.Fingerprint, b.Fingerprint)
	})
	return model.NewTopologySnapshot(captured, relays)
}

// fingerprint returns 40 upper-case hex characters.
func fingerprint(rng *rand.Rand) string {
	var b strings.Builder
	for range 5 {
		fmt.Fprintf(&b, "%08X", rng.Uint32())
	}
	return b.String()
}
