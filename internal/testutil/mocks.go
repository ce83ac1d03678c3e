// Package testutil provides shared mocks for the external collaborators
// consumed through interfaces: evaluation and logic mutation.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/alphaforge/alphaforge/pkg/core"
)

// MockEvaluator is a testify mock for core.Evaluator.
type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, s *core.Strategy) (*core.MultiObjectiveMetrics, error) {
	args := m.Called(ctx, s)
	if metrics := args.Get(0); metrics != nil {
		return metrics.(*core.MultiObjectiveMetrics), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockLogicMutator is a testify mock for core.LogicMutator.
type MockLogicMutator struct {
	mock.Mock
}

func (m *MockLogicMutator) MutateLogic(ctx context.Context, f *core.Factor) (core.Logic, string, *core.ValidationReport, error) {
	args := m.Called(ctx, f)
	var logic core.Logic
	if l := args.Get(0); l != nil {
		logic = l.(core.Logic)
	}
	var report *core.ValidationReport
	if r := args.Get(2); r != nil {
		report = r.(*core.ValidationReport)
	}
	return logic, args.String(1), report, args.Error(3)
}

// StubEvaluator scores strategies with a fixed function, for tests that
// need deterministic metrics without mock bookkeeping. Safe for
// concurrent use as long as the function is.
type StubEvaluator struct {
	Fn func(s *core.Strategy) (*core.MultiObjectiveMetrics, error)
}

func (e *StubEvaluator) Evaluate(_ context.Context, s *core.Strategy) (*core.MultiObjectiveMetrics, error) {
	return e.Fn(s)
}
