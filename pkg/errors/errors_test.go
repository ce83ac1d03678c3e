package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndCode(t *testing.T) {
	err := New(CycleDetected, "cycle introduced by edge")
	assert.Equal(t, "cycle introduced by edge", err.Error())
	assert.Equal(t, CycleDetected, Code(err))
	assert.Equal(t, Unknown, Code(fmt.Errorf("plain")))
	assert.Equal(t, Unknown, Code(nil))
}

func TestWrapPreservesOriginal(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(cause, MutationFailed, "tier2 replace failed")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier2 replace failed")
	assert.Contains(t, err.Error(), "boom")
	assert.ErrorIs(t, err, New(MutationFailed, "anything"))
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, MutationFailed, "ignored"))
	assert.NoError(t, WithFields(nil, Fields{"k": "v"}))
}

func TestWithFields(t *testing.T) {
	err := WithFields(New(OrphanedFactor, "factor has dependents"), Fields{
		"factor_id":  "momentum_sma",
		"dependents": 2,
	})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, OrphanedFactor, e.Code())
	assert.Equal(t, "momentum_sma", e.Fields()["factor_id"])
	assert.Contains(t, err.Error(), "factor_id=momentum_sma")
}

func TestWithFieldsMerges(t *testing.T) {
	err := WithFields(New(UnsatisfiedInput, "missing column"), Fields{"column": "rsi_14"})
	err = WithFields(err, Fields{"factor_id": "f1"})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, "rsi_14", e.Fields()["column"])
	assert.Equal(t, "f1", e.Fields()["factor_id"])
	assert.Equal(t, UnsatisfiedInput, e.Code())
}

func TestIsStructural(t *testing.T) {
	assert.True(t, IsStructural(New(CycleDetected, "")))
	assert.True(t, IsStructural(New(NoSignalOutput, "")))
	assert.True(t, IsStructural(New(OrphanedFactor, "")))
	assert.False(t, IsStructural(New(MutationFailed, "")))
	assert.False(t, IsStructural(nil))
	assert.False(t, IsStructural(fmt.Errorf("plain")))
}

func TestCheckContext(t *testing.T) {
	assert.NoError(t, CheckContext(context.Background(), "evolve"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CheckContext(ctx, "evolve")
	require.Error(t, err)
	assert.Equal(t, Canceled, Code(err))
	assert.Contains(t, err.Error(), "evolve canceled")
}
