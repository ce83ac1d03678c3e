package core

import (
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// DataTable is a columnar working table: column name to values. All columns
// in a table share the same length.
type DataTable map[string][]float64

// Rows returns the number of rows, 0 for an empty table.
func (t DataTable) Rows() int {
	for _, col := range t {
		return len(col)
	}
	return 0
}

// Clone returns a deep copy of the table.
func (t DataTable) Clone() DataTable {
	out := make(DataTable, len(t))
	for name, col := range t {
		out[name] = append([]float64(nil), col...)
	}
	return out
}

// Pipeline is the compiled executable form of a strategy: its factors in
// topological order, ready to run over a base data table.
type Pipeline struct {
	StrategyID string
	Hash       string
	order      []string
	factors    map[string]*Factor
	signals    []string
}

// Compile validates the strategy and produces its pipeline. The result is
// cached keyed by the DAG's structural hash; any structural edit
// invalidates the cache.
func (s *Strategy) Compile() (*Pipeline, error) {
	hash := s.StructuralHash()
	if s.compiled != nil && s.compiled.Hash == hash {
		return s.compiled, nil
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	order, err := s.TopologicalSort()
	if err != nil {
		return nil, err
	}

	factors := make(map[string]*Factor, len(s.Factors))
	for id, f := range s.Factors {
		factors[id] = f
	}

	s.compiled = &Pipeline{
		StrategyID: s.ID,
		Hash:       hash,
		order:      order,
		factors:    factors,
		signals:    append([]string(nil), s.SignalColumns...),
	}
	return s.compiled, nil
}

// RunPipeline compiles the strategy and executes it over the base data.
func (s *Strategy) RunPipeline(data DataTable) (DataTable, error) {
	p, err := s.Compile()
	if err != nil {
		return nil, err
	}
	return p.Run(data)
}

// Run executes each factor's logic in topological order, accumulating
// output columns into a working table, and returns the final table. The
// result always contains the position/signal output.
func (p *Pipeline) Run(data DataTable) (DataTable, error) {
	working := data.Clone()

	for _, id := range p.order {
		f := p.factors[id]

		inputs := make(map[string][]float64, len(f.Inputs))
		for _, name := range f.Inputs {
			col, ok := working[name]
			if !ok {
				return nil, errors.WithFields(
					errors.New(errors.UnsatisfiedInput, "input column missing at execution time"),
					errors.Fields{"factor_id": id, "column": name},
				)
			}
			inputs[name] = col
		}

		outputs, err := f.Logic.Compute(inputs, f.Params)
		if err != nil {
			return nil, errors.WithFields(
				errors.Wrap(err, errors.EvaluationFailed, "factor logic failed"),
				errors.Fields{"factor_id": id},
			)
		}
		for name, col := range outputs {
			working[name] = col
		}
	}

	for _, name := range p.signals {
		if _, ok := working[name]; ok {
			return working, nil
		}
	}
	return nil, errors.New(errors.NoSignalOutput, "pipeline produced no position/signal column")
}

// Order exposes the execution order, useful for observability.
func (p *Pipeline) Order() []string {
	return append([]string(nil), p.order...)
}
