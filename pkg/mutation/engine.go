package mutation

import (
	"context"
	"math/rand"
	"sort"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/library"
	"github.com/alphaforge/alphaforge/pkg/logging"
)

// Engine applies mutations to strategies. All randomness draws from the
// supplied generator; the engine is not safe for concurrent use.
type Engine struct {
	lib    *library.FactorLibrary
	rng    *rand.Rand
	sigma  float64
	router *Router
	logic  core.LogicMutator
	logger *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSigma sets the Gaussian noise scale for parameter mutation.
func WithSigma(sigma float64) Option {
	return func(e *Engine) { e.sigma = sigma }
}

// WithLogicMutator wires the external code-level mutation capability.
// Without one, logic-tier mutations fail over to the structural tier.
func WithLogicMutator(m core.LogicMutator) Option {
	return func(e *Engine) { e.logic = m }
}

// WithRouter replaces the default adaptive tier router.
func WithRouter(r *Router) Option {
	return func(e *Engine) { e.router = r }
}

// NewEngine creates a mutation engine over the given factor library.
func NewEngine(lib *library.FactorLibrary, rng *rand.Rand, opts ...Option) *Engine {
	e := &Engine{
		lib:    lib,
		rng:    rng,
		sigma:  0.15,
		router: NewRouter(0.33, 0.66, 0.2),
		logger: logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Router exposes the engine's adaptive tier router, mainly for stats.
func (e *Engine) Router() *Router {
	return e.router
}

// Mutate produces one offspring from the strategy. The tier is chosen by
// the adaptive router from the strategy's structural complexity, the
// supplied market risk signal and historical tier success rates. On any
// failure the original strategy is returned unchanged alongside a record
// describing the failure; the router's success statistics are updated
// either way.
func (e *Engine) Mutate(ctx context.Context, s *core.Strategy, marketRisk float64) (*core.Strategy, *Record) {
	tier := e.router.Route(s, marketRisk)
	if tier == TierLogic && e.logic == nil {
		tier = TierStructural
	}

	out, record := e.mutateTier(ctx, tier, s)
	e.router.RecordOutcome(tier, record.Success)
	return out, record
}

// MutateWithTier applies a specific tier, bypassing the router. Used by
// the generation loop's fall-back ladder. Router statistics still update.
func (e *Engine) MutateWithTier(ctx context.Context, tier Tier, s *core.Strategy) (*core.Strategy, *Record) {
	if tier == TierLogic && e.logic == nil {
		tier = TierStructural
	}
	out, record := e.mutateTier(ctx, tier, s)
	e.router.RecordOutcome(tier, record.Success)
	return out, record
}

func (e *Engine) mutateTier(ctx context.Context, tier Tier, s *core.Strategy) (*core.Strategy, *Record) {
	switch tier {
	case TierConfig:
		return e.rebuildFromSpec(ctx, s)
	case TierLogic:
		return e.MutateLogic(ctx, s)
	default:
		return e.structural(ctx, s)
	}
}

// structural picks one of the four Tier 2 operators at random, weighted
// toward parameter mutation since it is the cheapest and least disruptive.
func (e *Engine) structural(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	switch roll := e.rng.Float64(); {
	case roll < 0.40:
		return e.MutateParameters(ctx, s)
	case roll < 0.60:
		return e.AddRandomFactor(ctx, s)
	case roll < 0.80:
		return e.ReplaceRandomFactor(ctx, s)
	default:
		return e.RemoveRandomFactor(ctx, s)
	}
}

// rebuildFromSpec is the router's entry into Tier 1: the strategy is
// rendered back into its declarative description, one parameter override
// is jittered, and a fresh strategy is built through the full
// schema-validation path.
func (e *Engine) rebuildFromSpec(ctx context.Context, s *core.Strategy) (*core.Strategy, *Record) {
	const op = "rebuild_from_spec"

	spec := SpecFromStrategy(s)
	target := e.pickParamEntry(spec)
	if target != nil {
		names := sortedParamNames(target.Params)
		name := names[e.rng.Intn(len(names))]
		target.Params[name] = jitter(e.rng, target.Params[name], e.sigma)
	}

	child, record, err := BuildFromSpec(e.lib, spec)
	if err != nil {
		e.logger.Debug(ctx, "tier 1 rebuild rejected: %v", err)
		record.Operation = op
		return s, record
	}
	record.Operation = op
	return child.ChildOf(s), record
}

// pickParamEntry returns a random spec entry that has parameter overrides,
// or nil when none do.
func (e *Engine) pickParamEntry(spec *StrategySpec) *FactorEntry {
	candidates := make([]*FactorEntry, 0, len(spec.Factors))
	for i := range spec.Factors {
		if len(spec.Factors[i].Params) > 0 {
			candidates = append(candidates, &spec.Factors[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[e.rng.Intn(len(candidates))]
}

// SpecFromStrategy renders a strategy back into its declarative form:
// entries in topological order with current parameter values as overrides.
func SpecFromStrategy(s *core.Strategy) *StrategySpec {
	order, err := s.TopologicalSort()
	if err != nil {
		order = s.FactorIDs()
	}

	spec := &StrategySpec{BaseColumns: append([]string(nil), s.BaseColumns...)}
	for _, id := range order {
		f := s.Factors[id]
		entry := FactorEntry{Factor: id, DependsOn: append([]string(nil), s.Dependencies(id)...)}
		if len(f.Params) > 0 {
			entry.Params = make(map[string]float64, len(f.Params))
			for k, v := range f.Params {
				entry.Params[k] = v
			}
		}
		spec.Factors = append(spec.Factors, entry)
	}
	return spec
}

// jitter applies multiplicative Gaussian noise and converts negative
// results via absolute value.
func jitter(rng *rand.Rand, old, sigma float64) float64 {
	v := old * (1 + rng.NormFloat64()*sigma)
	if v < 0 {
		v = -v
	}
	return v
}

func sortedParamNames(params map[string]float64) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// pickFactorID selects a random node, optionally filtered.
func (e *Engine) pickFactorID(s *core.Strategy, keep func(string) bool) (string, error) {
	ids := s.FactorIDs()
	candidates := ids[:0:0]
	for _, id := range ids {
		if keep == nil || keep(id) {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return "", errors.New(errors.PatternNotFound, "no eligible factor in strategy")
	}
	return candidates[e.rng.Intn(len(candidates))], nil
}
