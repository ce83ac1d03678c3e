package population

import (
	"sort"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/mutation"
)

// seed produces n freshly assembled generation-0 strategies. Each is
// grown by randomly attaching library factors whose inputs are already
// satisfiable, stopping once the strategy validates. Assembly that stalls
// falls back to a minimal momentum/signal template with jittered
// parameters so seeding never fails while the library has a signal
// factor.
func (m *Manager) seed(n int) ([]*core.Strategy, error) {
	out := make([]*core.Strategy, 0, n)
	for i := 0; i < n; i++ {
		s, err := m.assemble()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *Manager) assemble() (*core.Strategy, error) {
	const maxAttempts = 4

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if s, ok := m.grow(); ok {
			return s, nil
		}
	}
	return m.template()
}

// grow randomly attaches factors until the strategy validates or no
// attachable factor remains.
func (m *Manager) grow() (*core.Strategy, bool) {
	s := core.NewStrategy(m.cfg.BaseColumns)
	s.SignalColumns = append([]string(nil), m.cfg.SignalColumns...)

	factors := m.lib.All()
	m.rng.Shuffle(len(factors), func(i, j int) { factors[i], factors[j] = factors[j], factors[i] })

	added := 0
	for _, f := range factors {
		if _, present := s.Factors[f.ID]; present {
			continue
		}
		deps, ok := wireable(s, f, m.rng)
		if !ok {
			continue
		}
		jittered := f
		if len(f.Params) > 0 {
			name := randomParamName(m.rng, f.Params)
			if adjusted, err := f.WithParam(name, f.Params[name]*(1+m.rng.NormFloat64()*m.cfg.MutationSigma)); err == nil {
				jittered = adjusted
			}
		}
		if err := s.AddFactor(jittered, deps); err != nil {
			continue
		}
		added++
		if added >= 2 && s.Validate() == nil {
			// Keep growing sometimes so seeds vary in size.
			if m.rng.Float64() < 0.6 {
				return s, true
			}
		}
	}
	return s, s.Validate() == nil
}

// template builds the minimal viable strategy.
func (m *Manager) template() (*core.Strategy, error) {
	spec := &mutation.StrategySpec{
		BaseColumns: m.cfg.BaseColumns,
		Factors: []mutation.FactorEntry{
			{Factor: "momentum_sma", Params: map[string]float64{
				"window": 10 + float64(m.rng.Intn(40)),
			}},
			{Factor: "signal_momentum", DependsOn: []string{"momentum_sma"}},
		},
	}
	s, _, err := mutation.BuildFromSpec(m.lib, spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationFailed, "cannot seed minimal strategy")
	}
	return s, nil
}

func wireable(s *core.Strategy, f *core.Factor, rng interface{ Intn(int) int }) ([]string, bool) {
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
		producer := producers[rng.Intn(len(producers))]
		if !seen[producer] {
			deps = append(deps, producer)
			seen[producer] = true
		}
	}
	return deps, true
}

func randomParamName(rng interface{ Intn(int) int }, params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	// Map order is random but not seeded; sort for reproducibility.
	sort.Strings(names)
	return names[rng.Intn(len(names))]
}
