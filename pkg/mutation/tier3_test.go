package mutation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/alphaforge/internal/testutil"
	"github.com/alphaforge/alphaforge/pkg/core"
)

func passthroughLogic(inputs map[string][]float64, _ map[string]float64) (map[string][]float64, error) {
	out := make(map[string][]float64, len(inputs))
	for name, col := range inputs {
		out[name] = col
	}
	return out, nil
}

func TestMutateLogicAcceptsValidRewrite(t *testing.T) {
	mutator := new(testutil.MockLogicMutator)
	mutator.On("MutateLogic", mock.Anything, mock.Anything).
		Return(core.LogicFunc(passthroughLogic), "rewritten()", &core.ValidationReport{Valid: true}, nil)

	engine := newTestEngine(WithLogicMutator(mutator))
	parent := buildStrategy(t)

	child, record := engine.MutateLogic(context.Background(), parent)
	require.True(t, record.Success)
	assert.NotEqual(t, parent.ID, child.ID)
	assert.Equal(t, "rewritten()", child.Factors[record.FactorID].Source)
	assert.NotEqual(t, "rewritten()", parent.Factors[record.FactorID].Source, "snapshot keeps the parent intact")
	mutator.AssertExpectations(t)
}

func TestMutateLogicRollsBackOnRejectedReport(t *testing.T) {
	mutator := new(testutil.MockLogicMutator)
	mutator.On("MutateLogic", mock.Anything, mock.Anything).
		Return(core.LogicFunc(passthroughLogic), "bad()", &core.ValidationReport{Valid: false, Reason: "syntax error"}, nil)

	engine := newTestEngine(WithLogicMutator(mutator))
	parent := buildStrategy(t)

	child, record := engine.MutateLogic(context.Background(), parent)
	assert.False(t, record.Success)
	assert.Same(t, parent, child)
	assert.Contains(t, record.Error, "rejected")
}

func TestMutateLogicRollsBackOnMutatorError(t *testing.T) {
	mutator := new(testutil.MockLogicMutator)
	mutator.On("MutateLogic", mock.Anything, mock.Anything).
		Return(nil, "", nil, assert.AnError)

	engine := newTestEngine(WithLogicMutator(mutator))
	parent := buildStrategy(t)

	child, record := engine.MutateLogic(context.Background(), parent)
	assert.False(t, record.Success)
	assert.Same(t, parent, child)
}

func TestMutateWithLogicTierFallsBackWithoutMutator(t *testing.T) {
	engine := newTestEngine()
	parent := buildStrategy(t)

	_, record := engine.MutateWithTier(context.Background(), TierLogic, parent)
	assert.Equal(t, TierStructural, record.Tier, "logic tier without a mutator must fail over to structural")
}
