package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/alphaforge/pkg/core"
)

func TestRegisterAndLookup(t *testing.T) {
	l := New()
	f := core.NewFactor("m1", "m1", core.CategoryMomentum,
		[]string{"close"}, []string{"momentum_score"}, nil, nil, nil)

	require.NoError(t, l.Register(f))
	assert.Same(t, f, l.GetByID("m1"))
	assert.Nil(t, l.GetByID("missing"))
	assert.Len(t, l.GetByCategory(core.CategoryMomentum), 1)
	assert.Empty(t, l.GetByCategory(core.CategoryExit))
}

func TestRegisterDuplicate(t *testing.T) {
	l := New()
	f := core.NewFactor("m1", "m1", core.CategoryMomentum,
		[]string{"close"}, []string{"momentum_score"}, nil, nil, nil)
	require.NoError(t, l.Register(f))
	require.Error(t, l.Register(f))
	assert.Equal(t, 1, l.Len())
}

func TestAlternativesExcludesSelf(t *testing.T) {
	l := Builtin()
	alternatives := l.Alternatives(core.CategoryMomentum, "momentum_sma")

	require.NotEmpty(t, alternatives)
	for _, f := range alternatives {
		assert.NotEqual(t, "momentum_sma", f.ID)
		assert.Equal(t, core.CategoryMomentum, f.Category)
	}
}

func TestBuiltinCoversAllCategories(t *testing.T) {
	l := Builtin()
	for _, category := range core.Categories() {
		assert.NotEmpty(t, l.GetByCategory(category), "category %s has no builtin factor", category)
	}
}

func TestBuiltinFactorsCompute(t *testing.T) {
	l := Builtin()

	n := 64
	close := make([]float64, n)
	for i := range close {
		close[i] = 100 + float64(i%7) - float64(i%3)
	}
	flat := make([]float64, n)

	inputs := map[string][]float64{
		"close":          close,
		"entry_flag":     flat,
		"exit_flag":      flat,
		"momentum_score": flat,
		"signal":         flat,
		"risk_score":     flat,
	}

	for _, f := range l.All() {
		out, err := f.Logic.Compute(inputs, f.Params)
		require.NoError(t, err, "factor %s", f.ID)
		for _, name := range f.Outputs {
			require.Contains(t, out, name, "factor %s must produce %s", f.ID, name)
			assert.Len(t, out[name], n, "factor %s output %s", f.ID, name)
		}
	}
}

func TestBuiltinSignalChainEndToEnd(t *testing.T) {
	l := Builtin()
	s := core.NewStrategy([]string{"open", "high", "low", "close", "volume"})

	require.NoError(t, s.AddFactor(l.GetByID("momentum_sma").Clone(), nil))
	require.NoError(t, s.AddFactor(l.GetByID("entry_threshold").Clone(), []string{"momentum_sma"}))
	require.NoError(t, s.AddFactor(l.GetByID("exit_stop_loss").Clone(), []string{"entry_threshold"}))
	require.NoError(t, s.AddFactor(l.GetByID("signal_entry_exit").Clone(), []string{"entry_threshold", "exit_stop_loss"}))

	require.NoError(t, s.Validate())

	n := 128
	table := core.DataTable{}
	for _, col := range []string{"open", "high", "low", "close", "volume"} {
		values := make([]float64, n)
		for i := range values {
			values[i] = 100 + 10*float64(i%11)/10
		}
		table[col] = values
	}

	out, err := s.RunPipeline(table)
	require.NoError(t, err)
	assert.Contains(t, out, "signal")
}
