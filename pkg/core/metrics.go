package core

import "math"

// MultiObjectiveMetrics carries the externally evaluated performance of a
// strategy. Sharpe, Calmar, total return and win rate are maximized;
// max drawdown (reported as a negative number) is minimized in magnitude.
type MultiObjectiveMetrics struct {
	SharpeRatio float64 `json:"sharpe_ratio"`
	CalmarRatio float64 `json:"calmar_ratio"`
	TotalReturn float64 `json:"total_return"`
	WinRate     float64 `json:"win_rate"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Objectives returns the metric values oriented so that larger is always
// better, in a fixed order used by dominance and crowding computations.
func (m *MultiObjectiveMetrics) Objectives() []float64 {
	return []float64{
		m.SharpeRatio,
		m.CalmarRatio,
		m.TotalReturn,
		m.WinRate,
		-math.Abs(m.MaxDrawdown),
	}
}

// ObjectiveNames mirrors the ordering of Objectives.
func ObjectiveNames() []string {
	return []string{"sharpe_ratio", "calmar_ratio", "total_return", "win_rate", "neg_max_drawdown"}
}

// Dominates reports whether m is no worse than other in every objective and
// strictly better in at least one. The relation is a strict partial order:
// irreflexive and antisymmetric by construction.
func (m *MultiObjectiveMetrics) Dominates(other *MultiObjectiveMetrics) bool {
	if m == nil || other == nil {
		return false
	}

	a := m.Objectives()
	b := other.Objectives()

	allGreaterOrEqual := true
	atLeastOneGreater := false

	for i := range a {
		if a[i] < b[i] {
			allGreaterOrEqual = false
			break
		}
		if a[i] > b[i] {
			atLeastOneGreater = true
		}
	}

	return allGreaterOrEqual && atLeastOneGreater
}

// Scalar collapses the metrics into a single score, used only where a
// total order is unavoidable (roulette fallback, degenerate tie-breaks).
func (m *MultiObjectiveMetrics) Scalar() float64 {
	if m == nil {
		return math.Inf(-1)
	}
	return m.SharpeRatio + m.CalmarRatio + m.TotalReturn + m.WinRate - math.Abs(m.MaxDrawdown)
}

// WorstCase returns the sentinel metrics assigned to strategies whose
// evaluation failed: bad enough that they cannot dominate anything, finite
// enough that ranking arithmetic stays well-defined.
func WorstCase() *MultiObjectiveMetrics {
	return &MultiObjectiveMetrics{
		SharpeRatio: -100,
		CalmarRatio: -100,
		TotalReturn: -100,
		WinRate:     0,
		MaxDrawdown: -1,
	}
}
