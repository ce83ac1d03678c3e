package mutation

import (
	"context"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// MutateLogic is the Tier 3 operation: it hands one factor to the external
// logic mutator and accepts the rewrite only when the mutator's own
// validation report is positive and the resulting strategy still passes
// structural validation. Anything else rolls back to the snapshot, which
// here means returning the untouched original.
func (e *Engine) MutateLogic(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	const op = "mutate_logic"

	if e.logic == nil {
		return s, failed(TierLogic, op, errors.New(errors.InvalidInput, "no logic mutator configured"))
	}

	id, err := e.pickFactorID(s, nil)
	if err != nil {
		return s, failed(TierLogic, op, err)
	}

	// Snapshot before handing the factor out. Factors are immutable so the
	// clone also guards against a misbehaving mutator editing in place.
	snapshot := s.Factors[id].Clone()

	logic, source, report, err := e.logic.MutateLogic(ctx, snapshot)
	if err != nil {
		record := failed(TierLogic, op, errors.Wrap(err, errors.MutationFailed, "logic mutator failed"))
		record.FactorID = id
		return s, record
	}
	if report == nil || !report.Valid {
		reason := "logic mutator returned no validation report"
		if report != nil {
			reason = report.Reason
		}
		e.logger.Debug(ctx, "mutate_logic: rewrite of %s rejected: %s", id, reason)
		record := failed(TierLogic, op, errors.WithFields(
			errors.New(errors.LogicRejected, "rewrite rejected by validation"),
			errors.Fields{"factor_id": id, "reason": reason},
		))
		record.FactorID = id
		return s, record
	}

	child := s.Clone()
	replacement := snapshot.WithLogic(logic, source)
	if err := child.ReplaceFactor(id, replacement); err != nil {
		record := failed(TierLogic, op, err)
		record.FactorID = id
		return s, record
	}
	if err := child.Validate(); err != nil {
		e.logger.Debug(ctx, "mutate_logic: rewritten %s fails structural validation, rolling back", id)
		record := failed(TierLogic, op, err)
		record.FactorID = id
		return s, record
	}

	return child.ChildOf(s), &Record{
		Tier: TierLogic, Operation: op, FactorID: id, Success: true,
	}
}
