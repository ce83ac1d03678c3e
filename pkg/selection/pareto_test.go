package selection

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/alphaforge/pkg/core"
)

func strategyWithMetrics(id string, m *core.MultiObjectiveMetrics) *core.Strategy {
	s := core.NewStrategy([]string{"close"})
	s.ID = id
	s.Metrics = m
	return s
}

func TestFrontsSingleDominationChain(t *testing.T) {
	best := strategyWithMetrics("best", &core.MultiObjectiveMetrics{SharpeRatio: 3, CalmarRatio: 3, TotalReturn: 1, WinRate: 0.7, MaxDrawdown: -0.1})
	mid := strategyWithMetrics("mid", &core.MultiObjectiveMetrics{SharpeRatio: 2, CalmarRatio: 2, TotalReturn: 0.5, WinRate: 0.6, MaxDrawdown: -0.2})
	worst := strategyWithMetrics("worst", &core.MultiObjectiveMetrics{SharpeRatio: 1, CalmarRatio: 1, TotalReturn: 0.1, WinRate: 0.5, MaxDrawdown: -0.3})

	fronts := Fronts([]*core.Strategy{worst, best, mid})
	require.Len(t, fronts, 3)
	assert.Equal(t, "best", fronts[0][0].ID)
	assert.Equal(t, "mid", fronts[1][0].ID)
	assert.Equal(t, "worst", fronts[2][0].ID)
}

func TestFrontsNonDominatedTradeoffsShareFrontZero(t *testing.T) {
	a := strategyWithMetrics("a", &core.MultiObjectiveMetrics{SharpeRatio: 2.0, CalmarRatio: 1.5, MaxDrawdown: -0.3})
	b := strategyWithMetrics("b", &core.MultiObjectiveMetrics{SharpeRatio: 1.8, CalmarRatio: 1.8, MaxDrawdown: -0.25})

	fronts := Fronts([]*core.Strategy{a, b})
	require.Len(t, fronts, 1)
	assert.Len(t, fronts[0], 2)
	assert.ElementsMatch(t, []string{"a", "b"}, ParetoFrontIDs([]*core.Strategy{a, b}))
}

func TestFrontsUnevaluatedRankLast(t *testing.T) {
	evaluated := strategyWithMetrics("eval", &core.MultiObjectiveMetrics{SharpeRatio: 0.5, WinRate: 0.5, MaxDrawdown: -0.4})
	unevaluated := strategyWithMetrics("raw", nil)

	fronts := Fronts([]*core.Strategy{unevaluated, evaluated})
	require.Len(t, fronts, 2)
	assert.Equal(t, "eval", fronts[0][0].ID)
	assert.Equal(t, "raw", fronts[1][0].ID)
}

func TestCrowdingBoundariesAreInfinite(t *testing.T) {
	front := []*core.Strategy{
		strategyWithMetrics("lo", &core.MultiObjectiveMetrics{SharpeRatio: 1.0, CalmarRatio: 3.0}),
		strategyWithMetrics("mid", &core.MultiObjectiveMetrics{SharpeRatio: 2.0, CalmarRatio: 2.0}),
		strategyWithMetrics("hi", &core.MultiObjectiveMetrics{SharpeRatio: 3.0, CalmarRatio: 1.0}),
	}

	distances := CrowdingDistance(front)
	assert.True(t, math.IsInf(distances["lo"], 1))
	assert.True(t, math.IsInf(distances["hi"], 1))
	assert.False(t, math.IsInf(distances["mid"], 1))
	assert.Greater(t, distances["mid"], 0.0)
}

func TestCrowdingSmallFrontAllInfinite(t *testing.T) {
	front := []*core.Strategy{
		strategyWithMetrics("a", &core.MultiObjectiveMetrics{SharpeRatio: 1}),
		strategyWithMetrics("b", &core.MultiObjectiveMetrics{SharpeRatio: 2}),
	}
	for _, d := range CrowdingDistance(front) {
		assert.True(t, math.IsInf(d, 1))
	}
}

func TestRankOrderingIsDeterministic(t *testing.T) {
	pop := []*core.Strategy{
		strategyWithMetrics("c", &core.MultiObjectiveMetrics{SharpeRatio: 1, CalmarRatio: 1}),
		strategyWithMetrics("a", &core.MultiObjectiveMetrics{SharpeRatio: 1, CalmarRatio: 1}),
		strategyWithMetrics("b", &core.MultiObjectiveMetrics{SharpeRatio: 1, CalmarRatio: 1}),
	}

	first := Rank(pop)
	reversed := Rank([]*core.Strategy{pop[2], pop[1], pop[0]})

	for i := range first {
		assert.Equal(t, first[i].Strategy.ID, reversed[i].Strategy.ID,
			"rank order must not depend on input order")
	}
}

func TestRankBestFirst(t *testing.T) {
	best := strategyWithMetrics("best", &core.MultiObjectiveMetrics{SharpeRatio: 3, CalmarRatio: 3, TotalReturn: 1, WinRate: 0.7, MaxDrawdown: -0.1})
	worst := strategyWithMetrics("worst", &core.MultiObjectiveMetrics{SharpeRatio: 1, CalmarRatio: 1, TotalReturn: 0.1, WinRate: 0.5, MaxDrawdown: -0.3})

	ranked := Rank([]*core.Strategy{worst, best})
	require.Len(t, ranked, 2)
	assert.Equal(t, "best", ranked[0].Strategy.ID)
	assert.Equal(t, 0, ranked[0].Rank)
	assert.Equal(t, 1, ranked[1].Rank)
}

func TestTournamentBiasesTowardQuality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engine := NewEngine(3, 0.8, rng)

	best := strategyWithMetrics("best", &core.MultiObjectiveMetrics{SharpeRatio: 3, CalmarRatio: 3, TotalReturn: 1, WinRate: 0.7, MaxDrawdown: -0.1})
	worst := strategyWithMetrics("worst", &core.MultiObjectiveMetrics{SharpeRatio: 1, CalmarRatio: 1, TotalReturn: 0.1, WinRate: 0.5, MaxDrawdown: -0.3})
	ranked := Rank([]*core.Strategy{best, worst})

	bestWins := 0
	const trials = 500
	for i := 0; i < trials; i++ {
		if engine.Tournament(ranked).Strategy.ID == "best" {
			bestWins++
		}
	}

	assert.Greater(t, bestWins, trials/2, "selection must bias toward the better strategy")
	assert.Less(t, bestWins, trials, "stochastic pressure must let the worse strategy through sometimes")
}

func TestSelectParentsCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	engine := NewEngine(3, 0.8, rng)

	ranked := Rank([]*core.Strategy{
		strategyWithMetrics("a", &core.MultiObjectiveMetrics{SharpeRatio: 1}),
		strategyWithMetrics("b", &core.MultiObjectiveMetrics{SharpeRatio: 2}),
	})
	parents := engine.SelectParents(ranked, 9)
	assert.Len(t, parents, 9)
}

func TestRouletteReturnsRequestedCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	engine := NewEngine(3, 0.8, rng)

	pop := []*core.Strategy{
		strategyWithMetrics("a", &core.MultiObjectiveMetrics{SharpeRatio: 1}),
		strategyWithMetrics("b", &core.MultiObjectiveMetrics{SharpeRatio: 1}),
	}
	assert.Len(t, engine.Roulette(pop, 5), 5)
}

func TestDegenerateObjectiveSpace(t *testing.T) {
	same := &core.MultiObjectiveMetrics{SharpeRatio: 1.2, CalmarRatio: 0.8, WinRate: 0.55}

	flat := Rank([]*core.Strategy{
		strategyWithMetrics("a", same),
		strategyWithMetrics("b", same),
		strategyWithMetrics("c", same),
	})
	assert.True(t, Degenerate(flat))

	mixed := Rank([]*core.Strategy{
		strategyWithMetrics("a", same),
		strategyWithMetrics("b", &core.MultiObjectiveMetrics{SharpeRatio: 2, CalmarRatio: 0.8, WinRate: 0.55}),
	})
	assert.False(t, Degenerate(mixed))

	assert.False(t, Degenerate(flat[:1]), "a single member is never degenerate")
}
