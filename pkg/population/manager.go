// Package population orchestrates the generation loop: parallel
// evaluation, Pareto ranking, parent selection, offspring production with
// retry and fall-back ladders, and elitist replacement at a fixed
// population size.
package population

import (
	"context"
	"math/rand"

	"github.com/sourcegraph/conc/pool"

	"github.com/alphaforge/alphaforge/pkg/checkpoint"
	"github.com/alphaforge/alphaforge/pkg/config"
	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/diversity"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/library"
	"github.com/alphaforge/alphaforge/pkg/logging"
	"github.com/alphaforge/alphaforge/pkg/mutation"
	"github.com/alphaforge/alphaforge/pkg/selection"
)

// RiskSignal supplies the external market-condition risk value in [0,1]
// that feeds adaptive tier routing.
type RiskSignal func() float64

// mutator is the slice of the mutation engine the generation loop drives.
// It is an interface so the loop's failure paths, retry exhaustion, the
// fall-back ladder and underfill, can be driven deterministically in tests.
type mutator interface {
	Mutate(ctx context.Context, s *core.Strategy, marketRisk float64) (*core.Strategy, *mutation.Record)
	MutateWithTier(ctx context.Context, tier mutation.Tier, s *core.Strategy) (*core.Strategy, *mutation.Record)
	MutateNamedParameter(ctx context.Context, s *core.Strategy, factorID, param string, noise float64) (*core.Strategy, *mutation.Record)
	Crossover(ctx context.Context, a, b *core.Strategy) (*core.Strategy, *mutation.Record)
}

// Manager owns the population and runs the evolutionary loop. It is not
// safe for concurrent use; evaluation inside a generation is parallel but
// generations run strictly in sequence.
type Manager struct {
	cfg        *config.Config
	lib        *library.FactorLibrary
	evaluator  core.Evaluator
	engine     mutator
	selector   *selection.Engine
	controller *diversity.Controller
	rng        *rand.Rand
	logger     *logging.Logger
	risk       RiskSignal

	population []*core.Strategy
	generation int
	store      *checkpoint.Store

	bestScalar float64
	stagnation int
	history    []GenerationStats
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogicMutator wires Tier 3 code-level mutation.
func WithLogicMutator(m core.LogicMutator) Option {
	return func(mgr *Manager) {
		mgr.engine = mutation.NewEngine(mgr.lib, mgr.rng,
			mutation.WithSigma(mgr.cfg.MutationSigma),
			mutation.WithRouter(mgr.router()),
			mutation.WithLogicMutator(m),
		)
	}
}

// WithRiskSignal sets the market-condition risk source. Defaults to a
// constant mid-band signal when absent.
func WithRiskSignal(risk RiskSignal) Option {
	return func(mgr *Manager) { mgr.risk = risk }
}

// NewManager builds a manager from an immutable config snapshot and seeds
// a generation-0 population of exactly PopulationSize strategies.
func NewManager(cfg *config.Config, lib *library.FactorLibrary, evaluator core.Evaluator, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	mgr := &Manager{
		cfg:       cfg,
		lib:       lib,
		evaluator: evaluator,
		rng:       rng,
		logger:    logging.GetLogger(),
		risk:      func() float64 { return 0.5 },
		controller: diversity.NewController(
			cfg.MutationRate, cfg.DiversityThreshold, cfg.DiversityWindow, cfg.InjectFresh,
		),
	}
	mgr.engine = mutation.NewEngine(lib, rng,
		mutation.WithSigma(cfg.MutationSigma),
		mutation.WithRouter(mgr.router()),
	)
	mgr.selector = selection.NewEngine(cfg.TournamentSize, cfg.TournamentPressure, rng)

	for _, opt := range opts {
		opt(mgr)
	}

	pop, err := mgr.seed(cfg.PopulationSize)
	if err != nil {
		return nil, err
	}
	mgr.population = pop
	return mgr, nil
}

func (m *Manager) router() *mutation.Router {
	return mutation.NewRouter(m.cfg.RiskLowThreshold, m.cfg.RiskHighThreshold, m.cfg.RoutingSmoothing)
}

// Population returns the current strategies. Callers must not mutate them.
func (m *Manager) Population() []*core.Strategy {
	return m.population
}

// Generation returns the current generation number.
func (m *Manager) Generation() int {
	return m.generation
}

// History returns per-generation statistics collected so far.
func (m *Manager) History() []GenerationStats {
	return m.history
}

// Run executes up to the given number of generations, stopping early on
// context cancellation.
func (m *Manager) Run(ctx context.Context, generations int) error {
	for i := 0; i < generations; i++ {
		if err := errors.CheckContext(ctx, "generation loop"); err != nil {
			return err
		}
		if _, err := m.RunGeneration(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RunGeneration advances the population by one generation, strictly in
// order: evaluate, rank and measure diversity, select parents, produce
// offspring with retries and fall-backs, then replace with elitism at
// exactly the configured size. An under-filled population is fatal.
func (m *Manager) RunGeneration(ctx context.Context) (*GenerationStats, error) {
	if err := m.evaluateAll(ctx); err != nil {
		return nil, err
	}

	ranked := selection.Rank(m.population)
	divScore := diversity.Score(m.population)
	rate := m.controller.Observe(divScore)

	elites := make([]*core.Strategy, 0, m.cfg.EliteCount)
	eliteIDs := make([]string, 0, m.cfg.EliteCount)
	for _, r := range ranked[:m.cfg.EliteCount] {
		elites = append(elites, r.Strategy)
		eliteIDs = append(eliteIDs, r.Strategy.ID)
	}

	stats := &GenerationStats{
		Generation:     m.generation + 1,
		DiversityScore: divScore,
		MutationRate:   rate,
		BestRankSize:   len(selection.ParetoFrontIDs(m.population)),
		EliteIDs:       eliteIDs,
	}

	offspring := m.produceOffspring(ctx, ranked, elites, rate, stats)

	if m.controller.ShouldInject() && len(offspring) > 0 {
		m.injectFresh(ctx, offspring, stats)
	}

	next := make([]*core.Strategy, 0, m.cfg.PopulationSize)
	next = append(next, elites...)
	next = append(next, offspring...)

	// Pad by cloning elites with forced parameter mutation; the population
	// is never allowed to shrink below N.
	donors := elites
	if len(donors) == 0 {
		donors = []*core.Strategy{ranked[0].Strategy}
	}
	for budget := m.cfg.OffspringBudget; len(next) < m.cfg.PopulationSize && budget > 0; budget-- {
		clone, ok := m.forcedClone(ctx, donors[m.rng.Intn(len(donors))])
		if !ok {
			continue
		}
		next = append(next, clone)
		stats.Fallbacks++
	}
	if len(next) < m.cfg.PopulationSize {
		return nil, errors.WithFields(
			errors.New(errors.PopulationUnderfill, "cannot fill population to configured size"),
			errors.Fields{"size": len(next), "want": m.cfg.PopulationSize},
		)
	}
	next = next[:m.cfg.PopulationSize]

	m.population = next
	m.generation++
	m.trackStagnation(stats)
	m.history = append(m.history, *stats)

	m.logger.Info(logging.WithGeneration(ctx, m.generation),
		"generation %d: diversity=%.3f rate=%.2f front=%d accepted=%d rejected=%d fallbacks=%d",
		m.generation, divScore, rate, stats.BestRankSize,
		stats.OffspringAccepted, stats.OffspringRejected, stats.Fallbacks)

	if err := m.saveCheckpoint(ctx); err != nil {
		m.logger.Warn(ctx, "checkpoint save failed: %v", err)
	}
	return stats, nil
}

// evaluateAll fills in metrics for every strategy that lacks them, in
// parallel. Evaluation failures never crash the loop: the strategy gets
// the worst-case sentinel so ranking pushes it to the back.
func (m *Manager) evaluateAll(ctx context.Context) error {
	if err := errors.CheckContext(ctx, "evaluate population"); err != nil {
		return err
	}

	p := pool.New().WithMaxGoroutines(m.cfg.ConcurrencyLevel)
	for _, s := range m.population {
		if s.Metrics != nil {
			continue
		}
		s := s
		p.Go(func() {
			metrics, err := m.evaluator.Evaluate(ctx, s)
			if err != nil || metrics == nil {
				m.logger.Warn(logging.WithStrategyID(ctx, s.ID),
					"evaluation failed for %s: %v", s.ID, err)
				s.Metrics = core.WorstCase()
				return
			}
			s.Metrics = metrics
		})
	}
	p.Wait()
	return nil
}

// produceOffspring fills N - elite_count slots. Each slot picks parents by
// tournament, attempts recombination then routed mutation with up to the
// configured retries, and finally falls back down the tier ladder.
// Rejected candidates do not count toward the slot total.
func (m *Manager) produceOffspring(ctx context.Context, ranked []*selection.Ranked, elites []*core.Strategy, rate float64, stats *GenerationStats) []*core.Strategy {
	want := m.cfg.PopulationSize - m.cfg.EliteCount
	offspring := make([]*core.Strategy, 0, want)
	budget := m.cfg.OffspringBudget + want

	for len(offspring) < want && budget > 0 {
		budget--
		child, ok := m.produceOne(ctx, ranked, rate)
		if !ok {
			stats.OffspringRejected++
			continue
		}
		offspring = append(offspring, child)
		stats.OffspringAccepted++
	}
	return offspring
}

func (m *Manager) produceOne(ctx context.Context, ranked []*selection.Ranked, rate float64) (*core.Strategy, bool) {
	parents := m.selectParents(ranked)
	if len(parents) < 2 {
		return nil, false
	}

	base := parents[0]
	if m.rng.Float64() < m.cfg.CrossoverRate {
		if child, record := m.engine.Crossover(ctx, parents[0], parents[1]); record.Success {
			base = child
		}
	}

	// Mutation applies with the controller's active rate; a crossover-only
	// child can pass through unmutated.
	mutated := base != parents[0]
	if m.rng.Float64() < rate || !mutated {
		failedTier := mutation.TierStructural
		for attempt := 0; attempt < m.cfg.MutationRetries; attempt++ {
			child, record := m.engine.Mutate(ctx, base, m.risk())
			if record.Success {
				base = child
				mutated = true
				break
			}
			failedTier = record.Tier
		}
		// Fall-back ladder: step down from the failed tier one tier at a
		// time toward lower risk, ending in a pure
		// clone-with-parameter-mutation.
		for tier := failedTier - 1; !mutated && tier >= mutation.TierConfig; tier-- {
			if child, record := m.engine.MutateWithTier(ctx, tier, base); record.Success {
				base = child
				mutated = true
			}
		}
		if !mutated {
			clone, ok := m.forcedClone(ctx, base)
			if !ok {
				return nil, false
			}
			base = clone
			mutated = true
		}
	}

	if err := base.Validate(); err != nil {
		m.logger.Debug(ctx, "offspring rejected: %v", err)
		return nil, false
	}
	return base, true
}

// selectParents picks two parents by crowded tournament. When dominance
// cannot separate anyone, every member on one front with identical
// objectives, selection falls back to scalar roulette so parent choice
// still carries some fitness signal.
func (m *Manager) selectParents(ranked []*selection.Ranked) []*core.Strategy {
	if selection.Degenerate(ranked) {
		pool := make([]*core.Strategy, len(ranked))
		for i, r := range ranked {
			pool[i] = r.Strategy
		}
		return m.selector.Roulette(pool, 2)
	}
	return m.selector.SelectParents(ranked, 2)
}

// forcedClone clones a strategy and forces one parameter mutation so the
// copy is never byte-identical to its source.
func (m *Manager) forcedClone(ctx context.Context, s *core.Strategy) (*core.Strategy, bool) {
	for _, id := range shuffledIDs(m.rng, s) {
		f := s.Factors[id]
		if len(f.Params) == 0 {
			continue
		}
		name := randomParamName(m.rng, f.Params)
		noise := m.rng.NormFloat64()*m.cfg.MutationSigma + 0.05
		if child, record := m.engine.MutateNamedParameter(ctx, s, id, name, noise); record.Success {
			return child, true
		}
	}
	return nil, false
}

// injectFresh replaces a slice of offspring with newly seeded strategies
// while the diversity intervention is active.
func (m *Manager) injectFresh(ctx context.Context, offspring []*core.Strategy, stats *GenerationStats) {
	if len(offspring) == 0 {
		return
	}
	count := len(offspring) / 4
	if count == 0 {
		count = 1
	}
	fresh, err := m.seed(count)
	if err != nil {
		m.logger.Warn(ctx, "fresh injection failed: %v", err)
		return
	}
	for i, s := range fresh {
		offspring[len(offspring)-1-i] = s
	}
	stats.FreshInjected = count
}

// trackStagnation updates the best-scalar stagnation counter that the
// converged flag derives from.
func (m *Manager) trackStagnation(stats *GenerationStats) {
	best := m.bestScalar
	for _, s := range m.population {
		if s.Metrics == nil {
			continue
		}
		if score := s.Metrics.Scalar(); score > best {
			best = score
		}
	}
	if best > m.bestScalar {
		m.bestScalar = best
		m.stagnation = 0
	} else {
		m.stagnation++
	}
	stats.BestScalar = m.bestScalar
	stats.Stagnation = m.stagnation
	stats.Converged = m.stagnation >= m.cfg.MaxGenerations/2 && m.cfg.MaxGenerations > 1
}

func shuffledIDs(rng *rand.Rand, s *core.Strategy) []string {
	ids := s.FactorIDs()
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}
