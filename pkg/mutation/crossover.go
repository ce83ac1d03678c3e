package mutation

import (
	"context"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// Crossover recombines two parents: the child starts as a clone of the
// first parent's DAG and grafts factors from the second that the child
// does not already contain and whose inputs can be wired to existing
// producers. Grafts that would break validation are skipped individually;
// if nothing grafts, recombination fails and the caller falls back to
// mutation-only offspring.
func (e *Engine) Crossover(ctx context.Context, a, b *core.Strategy) (*core.Strategy, *Record) {
	const op = "crossover"

	child := a.Clone()
	grafted := 0

	order, err := b.TopologicalSort()
	if err != nil {
		order = b.FactorIDs()
	}

	for _, id := range order {
		if _, present := child.Factors[id]; present {
			continue
		}
		f := b.Factors[id]
		deps, ok := e.wireInputs(child, f)
		if !ok {
			continue
		}
		if err := child.AddFactor(f.Clone(), deps); err != nil {
			continue
		}
		if err := child.Validate(); err != nil {
			child.RemoveFactor(f.ID) //nolint:errcheck // freshly added leaf, removal cannot orphan
			continue
		}
		grafted++
	}

	if grafted == 0 {
		e.logger.Debug(ctx, "crossover: no factor from %s grafts onto %s", b.ID, a.ID)
		return a, failed(TierStructural, op, errors.New(errors.MutationFailed, "no compatible factor to graft"))
	}
	if err := child.Validate(); err != nil {
		return a, failed(TierStructural, op, err)
	}

	return child.ChildOf(a, b), &Record{
		Tier: TierStructural, Operation: op, Success: true,
	}
}
