package population

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/alphaforge/internal/testutil"
	"github.com/alphaforge/alphaforge/pkg/checkpoint"
	"github.com/alphaforge/alphaforge/pkg/config"
	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/library"
	"github.com/alphaforge/alphaforge/pkg/mutation"
	"github.com/alphaforge/alphaforge/pkg/selection"
)

// structureScore derives deterministic metrics from a strategy's shape so
// ranking is stable without a real backtest.
func structureScore(s *core.Strategy) (*core.MultiObjectiveMetrics, error) {
	base := float64(len(s.Factors))
	for _, f := range s.Factors {
		for _, v := range f.Params {
			base += v / 1000
		}
	}
	return &core.MultiObjectiveMetrics{
		SharpeRatio: base,
		CalmarRatio: base / 2,
		TotalReturn: base / 10,
		WinRate:     0.5,
		MaxDrawdown: -1 / base,
	}, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.PopulationSize = 20
	cfg.EliteCount = 2
	cfg.ConcurrencyLevel = 4
	cfg.Seed = 7
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) *Manager {
	t.Helper()
	mgr, err := NewManager(cfg, library.Builtin(), &testutil.StubEvaluator{Fn: structureScore})
	require.NoError(t, err)
	return mgr
}

func TestNewManagerSeedsValidPopulation(t *testing.T) {
	mgr := newTestManager(t, testConfig())

	pop := mgr.Population()
	require.Len(t, pop, 20)
	for _, s := range pop {
		assert.NoError(t, s.Validate())
		assert.Equal(t, 0, s.Generation)
		assert.Empty(t, s.ParentIDs)
	}
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.EliteCount = 25

	_, err := NewManager(cfg, library.Builtin(), &testutil.StubEvaluator{Fn: structureScore})
	assert.Error(t, err)
}

func TestRunGenerationKeepsExactSize(t *testing.T) {
	mgr := newTestManager(t, testConfig())

	for i := 1; i <= 3; i++ {
		stats, err := mgr.RunGeneration(context.Background())
		require.NoError(t, err)
		assert.Len(t, mgr.Population(), 20, "population size invariant")
		assert.Equal(t, i, mgr.Generation())
		assert.Equal(t, i, stats.Generation)
		for _, s := range mgr.Population() {
			assert.NoError(t, s.Validate())
		}
	}
}

func TestElitesCarriedUnchanged(t *testing.T) {
	mgr := newTestManager(t, testConfig())

	stats, err := mgr.RunGeneration(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.EliteIDs, 2)

	survivors := make(map[string]*core.Strategy)
	for _, s := range mgr.Population() {
		survivors[s.ID] = s
	}
	for _, id := range stats.EliteIDs {
		elite, ok := survivors[id]
		require.True(t, ok, "elite %s must survive into the next generation", id)
		assert.NotNil(t, elite.Metrics, "elites keep their evaluated metrics")
	}
}

func TestEvaluationFailureUsesWorstCaseSentinel(t *testing.T) {
	cfg := testConfig()
	failing := &testutil.StubEvaluator{Fn: func(s *core.Strategy) (*core.MultiObjectiveMetrics, error) {
		return nil, errors.New(errors.EvaluationFailed, "backtest blew up")
	}}
	mgr, err := NewManager(cfg, library.Builtin(), failing)
	require.NoError(t, err)

	_, err = mgr.RunGeneration(context.Background())
	require.NoError(t, err, "evaluation failures must not crash the loop")

	worst := core.WorstCase()
	found := false
	for _, s := range mgr.Population() {
		if s.Metrics != nil && *s.Metrics == *worst {
			found = true
			break
		}
	}
	assert.True(t, found, "failed evaluations receive the worst-case sentinel")
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	mgr := newTestManager(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := mgr.Run(ctx, 5)
	assert.Equal(t, errors.Canceled, errors.Code(err))
	assert.Equal(t, 0, mgr.Generation())
}

func TestRunCollectsHistory(t *testing.T) {
	mgr := newTestManager(t, testConfig())

	require.NoError(t, mgr.Run(context.Background(), 3))
	history := mgr.History()
	require.Len(t, history, 3)
	for i, stats := range history {
		assert.Equal(t, i+1, stats.Generation)
		assert.GreaterOrEqual(t, stats.DiversityScore, 0.0)
		assert.LessOrEqual(t, stats.DiversityScore, 1.0)
		assert.Equal(t, 18, stats.OffspringAccepted+stats.Fallbacks,
			"accepted offspring plus fallback clones fill the non-elite slots")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	mgr := newTestManager(t, testConfig())
	require.NoError(t, mgr.Run(context.Background(), 2))

	snap := mgr.Snapshot()
	assert.Equal(t, 2, snap.Generation)
	assert.Len(t, snap.Strategies, 20)

	restored := newTestManager(t, testConfig())
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, 2, restored.Generation())
	require.Len(t, restored.Population(), 20)

	byID := make(map[string]*core.Strategy)
	for _, s := range mgr.Population() {
		byID[s.ID] = s
	}
	for _, s := range restored.Population() {
		original, ok := byID[s.ID]
		require.True(t, ok)
		assert.Equal(t, original.StructuralHash(), s.StructuralHash())
		assert.Equal(t, original.Generation, s.Generation)
	}

	_, err := restored.RunGeneration(context.Background())
	assert.NoError(t, err, "restored population must keep evolving")
}

func TestCheckpointStoreReceivesEveryGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	store, err := checkpoint.NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	cfg := testConfig()
	mgr, err := NewManager(cfg, library.Builtin(), &testutil.StubEvaluator{Fn: structureScore},
		WithCheckpointStore(store))
	require.NoError(t, err)

	require.NoError(t, mgr.Run(context.Background(), 3))

	generations, err := store.Generations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, generations)

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Generation)
	assert.Len(t, latest.Strategies, 20)
}

func TestRiskSignalReachesRouter(t *testing.T) {
	calls := 0
	cfg := testConfig()
	mgr, err := NewManager(cfg, library.Builtin(), &testutil.StubEvaluator{Fn: structureScore},
		WithRiskSignal(func() float64 { calls++; return 0.9 }))
	require.NoError(t, err)

	_, err = mgr.RunGeneration(context.Background())
	require.NoError(t, err)
	assert.Greater(t, calls, 0, "the market risk signal must feed tier routing")
}

// minimalPopulation replaces the seeded population with identically
// shaped two-factor strategies whose only parameterized factor is
// momentum_sma, so engine stubs can count mutation attempts exactly.
func minimalPopulation(t *testing.T, mgr *Manager, n int) {
	t.Helper()
	spec := &mutation.StrategySpec{
		BaseColumns: mgr.cfg.BaseColumns,
		Factors: []mutation.FactorEntry{
			{Factor: "momentum_sma"},
			{Factor: "signal_momentum", DependsOn: []string{"momentum_sma"}},
		},
	}
	pop := make([]*core.Strategy, 0, n)
	for i := 0; i < n; i++ {
		s, _, err := mutation.BuildFromSpec(mgr.lib, spec)
		require.NoError(t, err)
		pop = append(pop, s)
	}
	mgr.population = pop
}

func stubFailure(tier mutation.Tier) *mutation.Record {
	return &mutation.Record{Tier: tier, Operation: "stub", Success: false}
}

// flakyEngine fails every mutation path. MutateNamedParameter starts
// delegating to a real engine once denyNamed draws have been burned
// (denyNamed < 0 denies forever), which lets a test starve offspring
// production while elite-clone padding still works.
type flakyEngine struct {
	real      *mutation.Engine
	denyNamed int
}

func (f *flakyEngine) Mutate(ctx context.Context, s *core.Strategy, _ float64) (*core.Strategy, *mutation.Record) {
	return s, stubFailure(mutation.TierStructural)
}

func (f *flakyEngine) MutateWithTier(ctx context.Context, tier mutation.Tier, s *core.Strategy) (*core.Strategy, *mutation.Record) {
	return s, stubFailure(tier)
}

func (f *flakyEngine) Crossover(ctx context.Context, a, b *core.Strategy) (*core.Strategy, *mutation.Record) {
	return a, stubFailure(mutation.TierStructural)
}

func (f *flakyEngine) MutateNamedParameter(ctx context.Context, s *core.Strategy, factorID, param string, noise float64) (*core.Strategy, *mutation.Record) {
	if f.denyNamed != 0 {
		f.denyNamed--
		return s, stubFailure(mutation.TierStructural)
	}
	return f.real.MutateNamedParameter(ctx, s, factorID, param, noise)
}

func TestOffspringShortfallPadsWithEliteClones(t *testing.T) {
	cfg := testConfig()
	cfg.PopulationSize = 6
	cfg.EliteCount = 2
	cfg.OffspringBudget = 8
	cfg.MutationRetries = 2
	mgr := newTestManager(t, cfg)
	minimalPopulation(t, mgr, cfg.PopulationSize)

	// Each failed produce attempt burns exactly one forced-parameter
	// draw, so denying one per attempt starves the offspring loop while
	// the padding loop's elite clones still go through.
	attempts := cfg.OffspringBudget + cfg.PopulationSize - cfg.EliteCount
	mgr.engine = &flakyEngine{
		real:      mutation.NewEngine(mgr.lib, mgr.rng),
		denyNamed: attempts,
	}

	stats, err := mgr.RunGeneration(context.Background())
	require.NoError(t, err)

	assert.Len(t, mgr.Population(), cfg.PopulationSize)
	assert.Equal(t, 0, stats.OffspringAccepted)
	assert.Equal(t, attempts, stats.OffspringRejected)
	assert.Equal(t, cfg.PopulationSize-cfg.EliteCount, stats.Fallbacks)
	for _, s := range mgr.Population() {
		assert.NoError(t, s.Validate())
	}
}

func TestRunGenerationUnderfillIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.PopulationSize = 6
	cfg.EliteCount = 2
	cfg.OffspringBudget = 4
	mgr := newTestManager(t, cfg)
	minimalPopulation(t, mgr, cfg.PopulationSize)
	mgr.engine = &flakyEngine{denyNamed: -1}

	_, err := mgr.RunGeneration(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.PopulationUnderfill, errors.Code(err))
	assert.Equal(t, 0, mgr.Generation(), "a failed generation must not advance the counter")
}

// tierLadder records which tiers the fall-back ladder forces after the
// routed mutation keeps failing at failTier.
type tierLadder struct {
	failTier mutation.Tier
	forced   []mutation.Tier
	named    int
}

func (r *tierLadder) Mutate(ctx context.Context, s *core.Strategy, _ float64) (*core.Strategy, *mutation.Record) {
	return s, stubFailure(r.failTier)
}

func (r *tierLadder) MutateWithTier(ctx context.Context, tier mutation.Tier, s *core.Strategy) (*core.Strategy, *mutation.Record) {
	r.forced = append(r.forced, tier)
	return s, stubFailure(tier)
}

func (r *tierLadder) Crossover(ctx context.Context, a, b *core.Strategy) (*core.Strategy, *mutation.Record) {
	return a, stubFailure(mutation.TierStructural)
}

func (r *tierLadder) MutateNamedParameter(ctx context.Context, s *core.Strategy, factorID, param string, noise float64) (*core.Strategy, *mutation.Record) {
	r.named++
	return s, stubFailure(mutation.TierStructural)
}

func TestFallbackLadderStepsDownInRisk(t *testing.T) {
	mgr := newTestManager(t, testConfig())
	minimalPopulation(t, mgr, 4)
	ranked := selection.Rank(mgr.Population())

	cases := []struct {
		name     string
		failTier mutation.Tier
		forced   []mutation.Tier
	}{
		{"logic falls to structural then config", mutation.TierLogic, []mutation.Tier{mutation.TierStructural, mutation.TierConfig}},
		{"structural falls to config", mutation.TierStructural, []mutation.Tier{mutation.TierConfig}},
		{"config goes straight to the forced clone", mutation.TierConfig, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &tierLadder{failTier: tc.failTier}
			mgr.engine = rec

			_, ok := mgr.produceOne(context.Background(), ranked, 1)

			assert.False(t, ok)
			assert.Equal(t, tc.forced, rec.forced)
			assert.Positive(t, rec.named, "ladder must end in a forced clone attempt")
		})
	}
}

func TestForcedCloneParameterChoiceIsSeedDeterministic(t *testing.T) {
	build := func() (*Manager, *core.Strategy) {
		mgr := newTestManager(t, testConfig())
		spec := &mutation.StrategySpec{
			BaseColumns: mgr.cfg.BaseColumns,
			Factors: []mutation.FactorEntry{
				{Factor: "momentum_sma"},
				{Factor: "entry_threshold", DependsOn: []string{"momentum_sma"}},
				{Factor: "exit_trailing", DependsOn: []string{"entry_threshold"}},
				{Factor: "signal_entry_exit", DependsOn: []string{"entry_threshold", "exit_trailing"}},
			},
		}
		s, _, err := mutation.BuildFromSpec(mgr.lib, spec)
		require.NoError(t, err)
		return mgr, s
	}

	m1, s1 := build()
	m2, s2 := build()

	c1, ok := m1.forcedClone(context.Background(), s1)
	require.True(t, ok)
	c2, ok := m2.forcedClone(context.Background(), s2)
	require.True(t, ok)

	// Same seed, same draws: both clones must mutate the same parameter
	// to the same value even on factors with several parameters.
	assert.Equal(t, c1.StructuralHash(), c2.StructuralHash())
	for id, f := range c1.Factors {
		assert.Equal(t, f.Params, c2.Factors[id].Params, id)
	}
}
