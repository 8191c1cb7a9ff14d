package correlation

import (
	"fmt"
	"slices"
	"time"

	"github.com/nao1215/torcorrelate/internal/model"
)

const (
	// persistencePerPair is the persistence score contributed by each member pair.
	persistencePerPair = 10.0

	// strongPersistence is the persistence score above which the reasoning
	// calls out consistent guard use.
	strongPersistence = 70.0
)

// Cluster groups pairs by hypothesized guard. Pairs without a guard are
// ignored. Only guards with at least MinObservationsForCluster pairs form a
// cluster. Clusters are numbered in order of each guard's first appearance.
func (e *Engine) Cluster(pairs []model.SessionPair) []model.CorrelationCluster {
	var order []string
	groups := make(map[string][]model.SessionPair)
	for _, p := range pairs {
		if p.HypothesizedGuard == "" {
			continue
		}
		if _, ok := groups[p.HypothesizedGuard]; !ok {
			order = append(order, p.HypothesizedGuard)
		}
		groups[p.HypothesizedGuard] = append(groups[p.HypothesizedGuard], p)
	}

	clusters := make([]model.CorrelationCluster, 0)
	for _, guard := range order {
		members := groups[guard]
		if len(members) < e.settings.MinObservationsForCluster {
			continue
		}
		clusters = append(clusters, e.buildCluster(len(clusters)+1, guard, members))
	}

	e.logger.Info("clustering finished",
		"pairs", len(pairs),
		"guards", len(order),
		"clusters", len(clusters),
	)
	return clusters
}

func (e *Engine) buildCluster(n int, guard string, members []model.SessionPair) model.CorrelationCluster {
	seen := make(map[string]struct{}, len(members)*2)
	obsIDs := make([]string, 0, len(members)*2)
	pairIDs := make([]string, 0, len(members))
	first, last := members[0].CreatedAt, members[0].CreatedAt
	var total float64
	observedAt := make([]time.Time, 0, len(members))

	for _, p := range members {
		for _, id := range []string{p.EntryObservationID, p.ExitObservationID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				obsIDs = append(obsIDs, id)
			}
		}
		pairIDs = append(pairIDs, p.ID)
		if p.CreatedAt.Before(first) {
			first = p.CreatedAt
		}
		if p.CreatedAt.After(last) {
			last = p.CreatedAt
		}
		total += p.CorrelationStrength
		if !p.ObservedAt.IsZero() {
			observedAt = append(observedAt, p.ObservedAt)
		}
	}
	slices.Sort(obsIDs)

	consistency := total / float64(len(members))
	persistence := min(persistencePerPair*float64(len(members)), 100)
	confidence := consistency*0.6 + persistence*0.4

	reasoning := []string{
		fmt.Sprintf("Found %d correlated session pairs", len(members)),
		"All pairs share hypothesized guard: " + guard,
		fmt.Sprintf("Average correlation strength: %.1f%%", consistency),
		fmt.Sprintf("Observations span %.1f hours", last.Sub(first).Hours()),
	}
	avgGap := averageGapSeconds(observedAt)
	if avgGap != nil {
		reasoning = append(reasoning, fmt.Sprintf("Entry observations are on average %.0f seconds apart", *avgGap))
	}
	if persistence > strongPersistence {
		reasoning = append(reasoning, "Strong guard persistence indicates consistent user behavior")
	}

	return model.CorrelationCluster{
		ID:                fmt.Sprintf("cluster-%d", n),
		ObservationIDs:    obsIDs,
		PairIDs:           pairIDs,
		FirstObservation:  first,
		LastObservation:   last,
		ObservationCount:  len(obsIDs),
		AvgSecondsBetween: avgGap,
		ConsistencyScore:  consistency,
		ProbableGuards:    []string{guard},
		PersistenceScore:  persistence,
		Confidence:        confidence,
		Reasoning:         reasoning,
		CreatedAt:         e.now(),
	}
}

// averageGapSeconds is the mean gap between distinct sorted times.
// It returns nil with fewer than two distinct times.
func averageGapSeconds(times []time.Time) *float64 {
	sorted := slices.Clone(times)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	sorted = slices.CompactFunc(sorted, func(a, b time.Time) bool { return a.Equal(b) })
	if len(sorted) < 2 {
		return nil
	}
	avg := sorted[len(sorted)-1].Sub(sorted[0]).Seconds() / float64(len(sorted)-1)
	return &avg
}
