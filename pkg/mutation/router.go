package mutation

import (
	"math"

	"github.com/alphaforge/alphaforge/pkg/core"
)

// Router chooses a mutation tier per candidate from a composite risk
// score and adapts its threshold boundaries toward tiers with higher
// observed success. The rolling success rates are the only learned state
// in the mutation subsystem.
type Router struct {
	lowThreshold  float64
	highThreshold float64
	smoothing     float64

	success  map[Tier]float64
	attempts map[Tier]int
}

// NewRouter creates a router with the given threshold boundaries in (0,1)
// and an exponential smoothing factor for both the rolling success rates
// and the threshold shifts.
func NewRouter(lowThreshold, highThreshold, smoothing float64) *Router {
	return &Router{
		lowThreshold:  lowThreshold,
		highThreshold: highThreshold,
		smoothing:     smoothing,
		success: map[Tier]float64{
			// Optimistic priors so unexplored tiers still get traffic.
			TierConfig:     0.5,
			TierStructural: 0.5,
			TierLogic:      0.5,
		},
		attempts: map[Tier]int{},
	}
}

// Route computes the risk score for mutating the strategy and maps it to
// a tier: below the low threshold configuration-level, between the
// thresholds structural, above the high threshold logic-level.
func (r *Router) Route(s *core.Strategy, marketRisk float64) Tier {
	score := r.Score(s, marketRisk)
	switch {
	case score < r.lowThreshold:
		return TierConfig
	case score < r.highThreshold:
		return TierStructural
	default:
		return TierLogic
	}
}

// Score combines structural complexity of the target, the externally
// supplied market-condition risk signal and the historical failure rate
// into a single value in [0,1].
func (r *Router) Score(s *core.Strategy, marketRisk float64) float64 {
	complexity := r.complexity(s)
	failure := 1 - r.meanSuccess()
	score := 0.4*complexity + 0.4*clamp01(marketRisk) + 0.2*failure
	return clamp01(score)
}

// complexity squashes DAG depth and width into [0,1]. Depth 8 or width 8
// saturates; strategies that deep are already near the practical limit of
// what a backtest pipeline tolerates.
func (r *Router) complexity(s *core.Strategy) float64 {
	depth := math.Min(float64(s.Depth())/8, 1)
	width := math.Min(float64(s.Width())/8, 1)
	return (depth + width) / 2
}

func (r *Router) meanSuccess() float64 {
	total := 0.0
	for _, rate := range r.success {
		total += rate
	}
	return total / float64(len(r.success))
}

// RecordOutcome folds one mutation outcome into the tier's rolling
// success rate and shifts the threshold boundaries toward tiers with
// higher observed success, subject to smoothing.
func (r *Router) RecordOutcome(tier Tier, success bool) {
	observed := 0.0
	if success {
		observed = 1.0
	}
	r.attempts[tier]++
	r.success[tier] = r.success[tier] + r.smoothing*(observed-r.success[tier])

	// Widen the band of a tier that outperforms its neighbor: the boundary
	// between two tiers drifts away from the stronger one.
	shift := r.smoothing * 0.05
	r.lowThreshold += shift * (r.success[TierConfig] - r.success[TierStructural])
	r.highThreshold += shift * (r.success[TierStructural] - r.success[TierLogic])

	r.lowThreshold = clampRange(r.lowThreshold, 0.05, 0.90)
	r.highThreshold = clampRange(r.highThreshold, r.lowThreshold+0.05, 0.95)
}

// SuccessRate returns the rolling success rate for a tier.
func (r *Router) SuccessRate(tier Tier) float64 {
	return r.success[tier]
}

// Attempts returns how many mutations the tier has recorded.
func (r *Router) Attempts(tier Tier) int {
	return r.attempts[tier]
}

// Thresholds returns the current (low, high) boundary positions.
func (r *Router) Thresholds() (float64, float64) {
	return r.lowThreshold, r.highThreshold
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
