package mutation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// AddRandomFactor attaches a library factor the strategy does not already
// contain, wiring each non-base input to a node that produces it. When no
// factor fits or the wired candidate fails validation, the original
// strategy is returned unchanged; the caller sees a graceful no-op, not an
// error.
func (e *Engine) AddRandomFactor(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	const op = "add_factor"

	candidates := make([]*core.Factor, 0)
	for _, f := range e.lib.All() {
		if _, present := s.Factors[f.ID]; !present {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return s, failed(TierStructural, op, errors.New(errors.PatternNotFound, "library exhausted"))
	}

	// Shuffle so repeated attempts explore different factors.
	e.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	for _, f := range candidates {
		child := s.Clone()
		deps, ok := e.wireInputs(child, f)
		if !ok {
			continue
		}
		if err := child.AddFactor(f, deps); err != nil {
			continue
		}
		if err := child.Validate(); err != nil {
			continue
		}
		return child.ChildOf(s), &Record{
			Tier: TierStructural, Operation: op, FactorID: f.ID, Success: true,
		}
	}

	e.logger.Debug(ctx, "add_factor: no library factor attaches cleanly to strategy %s", s.ID)
	return s, failed(TierStructural, op, errors.New(errors.UnsatisfiedInput, "no attachable factor found"))
}

// wireInputs resolves each of the factor's inputs to either a base column
// or a producing node in the strategy, returning the dependency ids.
func (e *Engine) wireInputs(s *core.Strategy, f *core.Factor) ([]string, bool) {
	base := make(map[string]bool, len(s.BaseColumns))
	for _, col := range s.BaseColumns {
		base[col] = true
	}

	deps := make([]string, 0, len(f.Inputs))
	seen := make(map[string]bool)
	for _, input := range f.Inputs {
		if base[input] {
			continue
		}
		producers := make([]string, 0)
		for _, id := range s.FactorIDs() {
			for _, out := range s.Factors[id].Outputs {
				if out == input {
					producers = append(producers, id)
					break
				}
			}
		}
		if len(producers) == 0 {
			return nil, false
		}
		producer := producers[e.rng.Intn(len(producers))]
		if !seen[producer] {
			deps = append(deps, producer)
			seen[producer] = true
		}
	}
	return deps, true
}

// RemoveRandomFactor drops a leaf node (one with no dependents). Removal
// that would orphan dependents is never attempted; when no removable node
// exists or the smaller strategy fails validation, the original is
// returned unchanged.
func (e *Engine) RemoveRandomFactor(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	const op = "remove_factor"

	id, err := e.pickFactorID(s, func(id string) bool {
		return len(s.Dependents(id)) == 0
	})
	if err != nil {
		return s, failed(TierStructural, op, err)
	}

	child := s.Clone()
	if err := child.RemoveFactor(id); err != nil {
		return s, failed(TierStructural, op, err)
	}
	if err := child.Validate(); err != nil {
		e.logger.Debug(ctx, "remove_factor: dropping %s leaves strategy invalid: %v", id, err)
		return s, failed(TierStructural, op, err)
	}
	return child.ChildOf(s), &Record{
		Tier: TierStructural, Operation: op, FactorID: id, Success: true,
	}
}

// ReplaceRandomFactor substitutes a node with a same-category alternative
// from the library, preserving its predecessor and successor edges. The
// original strategy is returned unchanged when no alternative exists or
// every alternative fails validation.
func (e *Engine) ReplaceRandomFactor(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	const op = "replace_factor"

	id, err := e.pickFactorID(s, func(id string) bool {
		return len(e.lib.Alternatives(s.Factors[id].Category, id)) > 0
	})
	if err != nil {
		return s, failed(TierStructural, op, err)
	}

	alternatives := e.lib.Alternatives(s.Factors[id].Category, id)
	e.rng.Shuffle(len(alternatives), func(i, j int) {
		alternatives[i], alternatives[j] = alternatives[j], alternatives[i]
	})

	for _, alt := range alternatives {
		if _, present := s.Factors[alt.ID]; present {
			continue
		}
		child := s.Clone()
		if err := child.ReplaceFactor(id, alt); err != nil {
			continue
		}
		if err := child.Validate(); err != nil {
			continue
		}
		return child.ChildOf(s), &Record{
			Tier: TierStructural, Operation: op, FactorID: alt.ID, Success: true,
		}
	}

	e.logger.Debug(ctx, "replace_factor: no valid alternative for %s", id)
	return s, failed(TierStructural, op, errors.New(errors.ValidationFailed, "no valid replacement found"))
}

// MutateParameters applies multiplicative Gaussian noise to one randomly
// chosen numeric parameter: new = |old * (1 + N(0, sigma))|, clamped to
// the declared bounds, rounded for integer-typed parameters. The factor's
// source encoding is updated through a first-occurrence textual rewrite;
// when the rewrite cannot be applied safely the mutation is skipped and
// the original strategy is returned unchanged.
func (e *Engine) MutateParameters(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	const op = "mutate_parameters"

	id, err := e.pickFactorID(s, func(id string) bool {
		return len(s.Factors[id].Params) > 0
	})
	if err != nil {
		return s, failed(TierStructural, op, err)
	}

	f := s.Factors[id]
	names := sortedParamNames(f.Params)
	name := names[e.rng.Intn(len(names))]

	return e.mutateParam(ctx, s, id, name, e.rng.NormFloat64()*e.sigma)
}

// MutateNamedParameter mutates one specific parameter with the given
// relative noise. Exposed for the generation loop's forced-mutation elite
// cloning, which must always produce a changed offspring.
func (e *Engine) MutateNamedParameter(ctx context.Context, s *core.Strategy, factorID, param string, noise float64) (*core.Strategy, *Record) {
	return e.mutateParam(ctx, s, factorID, param, noise)
}

func (e *Engine) mutateParam(ctx context.Context, s *core.Strategy, factorID, param string, noise float64) (*core.Strategy, *Record) {
	const op = "mutate_parameters"

	f, ok := s.Factors[factorID]
	if !ok {
		return s, failed(TierStructural, op, errors.WithFields(
			errors.New(errors.UnknownFactor, "factor not in strategy"),
			errors.Fields{"factor_id": factorID},
		))
	}
	spec, ok := f.Specs[param]
	if !ok {
		return s, failed(TierStructural, op, errors.WithFields(
			errors.New(errors.InvalidInput, "unknown parameter"),
			errors.Fields{"factor_id": factorID, "parameter": param},
		))
	}

	old := f.Params[param]
	raw := math.Abs(old * (1 + noise))
	value, clamped := spec.Clamp(raw)

	source, err := rewriteParam(f.Source, param, old, value, spec.Integer)
	if err != nil {
		e.logger.Warn(ctx, "mutate_parameters: skipping %s.%s: %v", factorID, param, err)
		record := failed(TierStructural, op, err)
		record.FactorID = factorID
		record.Parameter = param
		record.OldValue = old
		return s, record
	}

	mutated := f.Clone()
	mutated.Params[param] = value
	mutated.Source = source

	child := s.Clone()
	if err := child.ReplaceFactor(factorID, mutated); err != nil {
		return s, failed(TierStructural, op, err)
	}
	if err := child.Validate(); err != nil {
		return s, failed(TierStructural, op, err)
	}

	return child.ChildOf(s), &Record{
		Tier:      TierStructural,
		Operation: op,
		FactorID:  factorID,
		Parameter: param,
		OldValue:  old,
		NewValue:  value,
		Clamped:   clamped,
		Success:   true,
	}
}

// rewriteParam updates the parameter's value inside the source encoding.
// The pattern is anchored at the "name=" key position and non-greedy, and
// only the first occurrence is rewritten so a parameter whose name is a
// prefix of another (trailing_stop_offset vs trailing_stop_percentage)
// can never corrupt its sibling. The matched old value must agree with the
// parameter's current value; a stale or missing encoding skips the
// mutation rather than guessing at a later occurrence.
func rewriteParam(source, name string, old, value float64, integer bool) (string, error) {
	pattern, err := regexp.Compile(`(^|[\s(,])` + regexp.QuoteMeta(name) + `=([0-9eE+.-]+?)([,)])`)
	if err != nil {
		return "", errors.Wrap(err, errors.PatternNotFound, "invalid parameter pattern")
	}

	match := pattern.FindStringSubmatchIndex(source)
	if match == nil {
		return "", errors.WithFields(
			errors.New(errors.PatternNotFound, "parameter not present in source encoding"),
			errors.Fields{"parameter": name},
		)
	}

	encoded := source[match[4]:match[5]]
	parsed, err := strconv.ParseFloat(encoded, 64)
	if err != nil || math.Abs(parsed-old) > 1e-9 {
		return "", errors.WithFields(
			errors.New(errors.PatternNotFound, "encoded value disagrees with current parameter"),
			errors.Fields{"parameter": name, "encoded": encoded},
		)
	}

	var rendered string
	if integer {
		rendered = strconv.FormatInt(int64(value), 10)
	} else {
		rendered = fmt.Sprintf("%g", value)
	}
	return source[:match[4]] + rendered + source[match[5]:], nil
}
