package core

import "context"

// Evaluator produces multi-objective metrics for a strategy, typically by
// running a backtest. Implementations must be idempotent for a given
// strategy so runs are reproducible, and must be safe for concurrent use:
// the population manager evaluates strategies in parallel.
type Evaluator interface {
	Evaluate(ctx context.Context, s *Strategy) (*MultiObjectiveMetrics, error)
}

// ValidationReport is the result of the external syntactic/semantic check
// performed by a LogicMutator.
type ValidationReport struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// LogicMutator is the external capability that rewrites a factor's internal
// computation. The core stays agnostic to the concrete program
// representation being mutated: it only snapshots, applies the returned
// replacement, and rolls back when the report or subsequent structural
// validation rejects it.
type LogicMutator interface {
	MutateLogic(ctx context.Context, f *Factor) (Logic, string, *ValidationReport, error)
}
