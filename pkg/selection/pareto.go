// Package selection implements multi-objective parent selection: fast
// non-dominated sorting, crowding distance, and tournament selection.
package selection

import (
	"math"
	"sort"

	"github.com/alphaforge/alphaforge/pkg/core"
)

// Ranked pairs a strategy with its Pareto rank and crowding distance for
// one ranking pass. Rank 0 is the best front.
type Ranked struct {
	Strategy *core.Strategy
	Rank     int
	Crowding float64
}

// metricsOf treats unevaluated strategies as worst-case so they can never
// dominate an evaluated one and never block ranking.
func metricsOf(s *core.Strategy) *core.MultiObjectiveMetrics {
	if s.Metrics == nil {
		return core.WorstCase()
	}
	return s.Metrics
}

// Fronts partitions the population into Pareto fronts using the standard
// two-pass algorithm: count dominators per individual, take the zero-count
// individuals as the first front, then peel subsequent fronts by
// decrementing the counts of the individuals they dominate.
func Fronts(strategies []*core.Strategy) [][]*core.Strategy {
	n := len(strategies)
	if n == 0 {
		return nil
	}

	dominatedBy := make([]int, n) // number of individuals dominating i
	dominates := make([][]int, n) // indices i dominates

	for i := 0; i < n; i++ {
		mi := metricsOf(strategies[i])
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if mi.Dominates(metricsOf(strategies[j])) {
				dominates[i] = append(dominates[i], j)
			} else if metricsOf(strategies[j]).Dominates(mi) {
				dominatedBy[i]++
			}
		}
	}

	var fronts [][]*core.Strategy
	current := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if dominatedBy[i] == 0 {
			current = append(current, i)
		}
	}

	assigned := 0
	for len(current) > 0 {
		front := make([]*core.Strategy, 0, len(current))
		for _, i := range current {
			front = append(front, strategies[i])
		}
		fronts = append(fronts, front)
		assigned += len(current)

		next := make([]int, 0)
		for _, i := range current {
			for _, j := range dominates[i] {
				dominatedBy[j]--
				if dominatedBy[j] == 0 {
					next = append(next, j)
				}
			}
		}
		current = next
	}

	// A strict partial order always peels completely; this guards against
	// metric values like NaN breaking comparability.
	if assigned < n {
		rest := make([]*core.Strategy, 0, n-assigned)
		seen := make(map[string]bool, assigned)
		for _, front := range fronts {
			for _, s := range front {
				seen[s.ID] = true
			}
		}
		for _, s := range strategies {
			if !seen[s.ID] {
				rest = append(rest, s)
			}
		}
		fronts = append(fronts, rest)
	}

	return fronts
}

// CrowdingDistance computes the spread metric within one front: boundary
// members on each objective receive +Inf, interior members accumulate
// normalized gaps between their neighbors summed over all objectives.
func CrowdingDistance(front []*core.Strategy) map[string]float64 {
	distances := make(map[string]float64, len(front))
	for _, s := range front {
		distances[s.ID] = 0
	}
	if len(front) <= 2 {
		for _, s := range front {
			distances[s.ID] = math.Inf(1)
		}
		return distances
	}

	numObjectives := len(core.ObjectiveNames())
	for obj := 0; obj < numObjectives; obj++ {
		sorted := make([]*core.Strategy, len(front))
		copy(sorted, front)
		sort.SliceStable(sorted, func(i, j int) bool {
			return metricsOf(sorted[i]).Objectives()[obj] < metricsOf(sorted[j]).Objectives()[obj]
		})

		lo := metricsOf(sorted[0]).Objectives()[obj]
		hi := metricsOf(sorted[len(sorted)-1]).Objectives()[obj]
		distances[sorted[0].ID] = math.Inf(1)
		distances[sorted[len(sorted)-1].ID] = math.Inf(1)

		objRange := hi - lo
		if objRange <= 0 {
			continue
		}
		for i := 1; i < len(sorted)-1; i++ {
			prev := metricsOf(sorted[i-1]).Objectives()[obj]
			next := metricsOf(sorted[i+1]).Objectives()[obj]
			distances[sorted[i].ID] += (next - prev) / objRange
		}
	}

	return distances
}

// Rank runs non-dominated sorting plus crowding over the population and
// returns one Ranked entry per strategy, ordered best-first: rank
// ascending, crowding descending, id ascending as the deterministic final
// tie-break (elite identity must not depend on input order).
func Rank(strategies []*core.Strategy) []*Ranked {
	out := make([]*Ranked, 0, len(strategies))

	for rank, front := range Fronts(strategies) {
		distances := CrowdingDistance(front)
		for _, s := range front {
			out = append(out, &Ranked{Strategy: s, Rank: rank, Crowding: distances[s.ID]})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		if out[i].Crowding != out[j].Crowding {
			return out[i].Crowding > out[j].Crowding
		}
		return out[i].Strategy.ID < out[j].Strategy.ID
	})
	return out
}

// Degenerate reports whether dominance cannot separate the population:
// every member occupies the same front with an identical objective
// vector. Callers fall back to scalar roulette selection in that case.
func Degenerate(ranked []*Ranked) bool {
	if len(ranked) < 2 {
		return false
	}
	ref := metricsOf(ranked[0].Strategy).Objectives()
	for _, r := range ranked[1:] {
		if r.Rank != ranked[0].Rank {
			return false
		}
		obj := metricsOf(r.Strategy).Objectives()
		for i := range ref {
			if obj[i] != ref[i] {
				return false
			}
		}
	}
	return true
}

// ParetoFrontIDs returns the ids of the rank-0 front.
func ParetoFrontIDs(strategies []*core.Strategy) []string {
	fronts := Fronts(strategies)
	if len(fronts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(fronts[0]))
	for _, s := range fronts[0] {
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	return ids
}
