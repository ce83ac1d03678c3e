package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passthroughLogic(output string) Logic {
	return LogicFunc(func(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
		n := 0
		for _, col := range inputs {
			n = len(col)
			break
		}
		return map[string][]float64{output: make([]float64, n)}, nil
	})
}

func newTestFactor(id string, category FactorCategory, inputs, outputs []string) *Factor {
	return NewFactor(id, id, category, inputs, outputs,
		map[string]float64{"window": 20},
		map[string]ParamSpec{"window": {Min: 2, Max: 200, Integer: true}},
		passthroughLogic(outputs[0]),
	)
}

func TestParamSpecClamp(t *testing.T) {
	spec := ParamSpec{Min: 0.01, Max: 0.20}

	v, clamped := spec.Clamp(0.25)
	assert.Equal(t, 0.20, v)
	assert.True(t, clamped)

	v, clamped = spec.Clamp(0.005)
	assert.Equal(t, 0.01, v)
	assert.True(t, clamped)

	v, clamped = spec.Clamp(0.10)
	assert.Equal(t, 0.10, v)
	assert.False(t, clamped)
}

func TestParamSpecClampInteger(t *testing.T) {
	spec := ParamSpec{Min: 2, Max: 200, Integer: true}
	v, _ := spec.Clamp(19.7)
	assert.Equal(t, 20.0, v)

	spec = ParamSpec{Min: -10, Max: 10, Integer: true}
	v, clamped := spec.Clamp(-2.6)
	assert.Equal(t, -3.0, v, "negative values round away from zero")
	assert.False(t, clamped)
}

func TestParamSpecClampIntegerFractionalBounds(t *testing.T) {
	spec := ParamSpec{Min: 1.2, Max: 10.6, Integer: true}

	v, clamped := spec.Clamp(10.6)
	assert.Equal(t, 10.0, v, "rounding must not push the value past Max")
	assert.True(t, clamped)

	v, clamped = spec.Clamp(1.1)
	assert.Equal(t, 2.0, v)
	assert.True(t, clamped)

	v, clamped = spec.Clamp(7.4)
	assert.Equal(t, 7.0, v)
	assert.False(t, clamped)
}

func TestFactorSourceRendering(t *testing.T) {
	f := NewFactor("sma_fast", "sma", CategoryMomentum,
		[]string{"close"}, []string{"sma_fast"},
		map[string]float64{"window": 12, "scale": 0.5},
		map[string]ParamSpec{
			"window": {Min: 2, Max: 200, Integer: true},
			"scale":  {Min: 0, Max: 1},
		},
		passthroughLogic("sma_fast"),
	)

	// Parameters render sorted by name, integers without a decimal point.
	assert.Equal(t, "sma(scale=0.5, window=12)", f.Source)
}

func TestFactorWithParamIsCopyOnWrite(t *testing.T) {
	f := newTestFactor("f1", CategoryMomentum, []string{"close"}, []string{"out"})

	mutated, err := f.WithParam("window", 50)
	require.NoError(t, err)

	assert.Equal(t, 20.0, f.Params["window"], "original must be untouched")
	assert.Equal(t, 50.0, mutated.Params["window"])
	assert.NotEqual(t, f.Source, mutated.Source)
}

func TestFactorWithParamClampsToBounds(t *testing.T) {
	f := newTestFactor("f1", CategoryMomentum, []string{"close"}, []string{"out"})

	mutated, err := f.WithParam("window", 10000)
	require.NoError(t, err)
	assert.Equal(t, 200.0, mutated.Params["window"])
}

func TestFactorWithParamUnknown(t *testing.T) {
	f := newTestFactor("f1", CategoryMomentum, []string{"close"}, []string{"out"})
	_, err := f.WithParam("missing", 1)
	require.Error(t, err)
}

func TestFactorCloneIsDeep(t *testing.T) {
	f := newTestFactor("f1", CategoryMomentum, []string{"close"}, []string{"out"})
	clone := f.Clone()
	clone.Params["window"] = 99
	clone.Inputs[0] = "volume"

	assert.Equal(t, 20.0, f.Params["window"])
	assert.Equal(t, "close", f.Inputs[0])
}
