package mutation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphaforge/alphaforge/pkg/library"
)

func TestRouteBucketsByRisk(t *testing.T) {
	router := NewRouter(0.33, 0.60, 0.2)
	s, _, err := BuildFromSpec(library.Builtin(), validSpec())
	require.NoError(t, err)

	assert.Equal(t, TierConfig, router.Route(s, 0.0), "calm market, small DAG routes to the config tier")
	assert.Equal(t, TierStructural, router.Route(s, 0.6))
	assert.Equal(t, TierLogic, router.Route(s, 1.0), "max market risk routes to the logic tier")
}

func TestScoreIsBounded(t *testing.T) {
	router := NewRouter(0.33, 0.66, 0.2)
	s, _, err := BuildFromSpec(library.Builtin(), validSpec())
	require.NoError(t, err)

	for _, risk := range []float64{-5, 0, 0.5, 1, 5} {
		score := router.Score(s, risk)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestRecordOutcomeUpdatesSuccessRate(t *testing.T) {
	router := NewRouter(0.33, 0.66, 0.2)

	before := router.SuccessRate(TierStructural)
	router.RecordOutcome(TierStructural, true)
	assert.Greater(t, router.SuccessRate(TierStructural), before)

	router.RecordOutcome(TierStructural, false)
	router.RecordOutcome(TierStructural, false)
	assert.Less(t, router.SuccessRate(TierStructural), router.SuccessRate(TierConfig))
	assert.Equal(t, 3, router.Attempts(TierStructural))
}

func TestThresholdsShiftTowardSuccessfulTier(t *testing.T) {
	router := NewRouter(0.33, 0.66, 0.2)
	lowBefore, _ := router.Thresholds()

	// A long run of config-tier wins should widen the config band.
	for i := 0; i < 50; i++ {
		router.RecordOutcome(TierConfig, true)
		router.RecordOutcome(TierStructural, false)
	}
	lowAfter, highAfter := router.Thresholds()
	assert.Greater(t, lowAfter, lowBefore)
	assert.Greater(t, highAfter, lowAfter, "boundaries must stay ordered")
}

func TestThresholdsStayOrderedUnderAdversarialOutcomes(t *testing.T) {
	router := NewRouter(0.33, 0.66, 0.5)
	for i := 0; i < 200; i++ {
		router.RecordOutcome(TierConfig, i%2 == 0)
		router.RecordOutcome(TierStructural, i%3 == 0)
		router.RecordOutcome(TierLogic, i%5 == 0)
		low, high := router.Thresholds()
		require.Less(t, low, high)
		require.GreaterOrEqual(t, low, 0.05)
		require.LessOrEqual(t, high, 0.95)
	}
}
