// Package checkpoint persists per-generation snapshots to SQLite so a
// run can resume after interruption. Strategies are stored in their
// declarative spec form; factor logic is reattached from the library on
// restore.
package checkpoint

import (
	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/mutation"
)

// StrategySnapshot is the serializable form of one strategy.
type StrategySnapshot struct {
	ID         string                      `json:"id"`
	Generation int                         `json:"generation"`
	ParentIDs  []string                    `json:"parent_ids,omitempty"`
	Spec       *mutation.StrategySpec      `json:"spec"`
	Metrics    *core.MultiObjectiveMetrics `json:"metrics,omitempty"`
}

// Snapshot captures everything needed to resume a run at generation g+1.
type Snapshot struct {
	Generation     int                `json:"generation"`
	DiversityScore float64            `json:"diversity_score"`
	ParetoFrontIDs []string           `json:"pareto_front_ids"`
	Strategies     []StrategySnapshot `json:"strategies"`
}
