package selection

import (
	"math/rand"
	"sort"

	"github.com/alphaforge/alphaforge/pkg/core"
)

// Engine performs stochastic parent selection over a ranked population.
// All randomness draws from the supplied generator so runs are
// reproducible; the engine is not safe for concurrent use because
// *rand.Rand is not.
type Engine struct {
	tournamentSize int
	pressure       float64
	rng            *rand.Rand
}

// NewEngine creates a selection engine. tournamentSize individuals enter
// each tournament and the best wins with probability pressure, otherwise a
// uniformly random entrant is returned. The softened pressure keeps
// selection from collapsing onto the current front.
func NewEngine(tournamentSize int, pressure float64, rng *rand.Rand) *Engine {
	if tournamentSize < 2 {
		tournamentSize = 2
	}
	return &Engine{tournamentSize: tournamentSize, pressure: pressure, rng: rng}
}

// Tournament selects one parent from the ranked population.
func (e *Engine) Tournament(ranked []*Ranked) *Ranked {
	if len(ranked) == 0 {
		return nil
	}

	k := e.tournamentSize
	if k > len(ranked) {
		k = len(ranked)
	}

	entrants := make([]*Ranked, k)
	for i := 0; i < k; i++ {
		entrants[i] = ranked[e.rng.Intn(len(ranked))]
	}

	sort.SliceStable(entrants, func(i, j int) bool {
		if entrants[i].Rank != entrants[j].Rank {
			return entrants[i].Rank < entrants[j].Rank
		}
		return entrants[i].Crowding > entrants[j].Crowding
	})

	if e.rng.Float64() < e.pressure {
		return entrants[0]
	}
	return entrants[e.rng.Intn(k)]
}

// SelectParents draws count parents with replacement via tournaments.
func (e *Engine) SelectParents(ranked []*Ranked, count int) []*core.Strategy {
	parents := make([]*core.Strategy, 0, count)
	for i := 0; i < count; i++ {
		if winner := e.Tournament(ranked); winner != nil {
			parents = append(parents, winner.Strategy)
		}
	}
	return parents
}

// Roulette is the scalar-fitness fallback used when the objective space is
// degenerate (every strategy identical in all objectives); tournament
// outcomes carry no information there.
func (e *Engine) Roulette(strategies []*core.Strategy, count int) []*core.Strategy {
	if len(strategies) == 0 {
		return nil
	}

	// Shift scores positive so drawdown-heavy metrics still get mass.
	minScore := metricsOf(strategies[0]).Scalar()
	for _, s := range strategies[1:] {
		if score := metricsOf(s).Scalar(); score < minScore {
			minScore = score
		}
	}

	total := 0.0
	weights := make([]float64, len(strategies))
	for i, s := range strategies {
		weights[i] = metricsOf(s).Scalar() - minScore + 1e-9
		total += weights[i]
	}

	selected := make([]*core.Strategy, 0, count)
	for n := 0; n < count; n++ {
		spin := e.rng.Float64() * total
		cumulative := 0.0
		for i, s := range strategies {
			cumulative += weights[i]
			if cumulative >= spin {
				selected = append(selected, s)
				break
			}
		}
	}
	return selected
}
