package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/alphaforge/alphaforge/pkg/errors"
)

// DefaultSignalColumns are the output column names recognized as a
// position/signal output when none are configured.
var DefaultSignalColumns = []string{"position", "signal"}

// Strategy is a named composition of factor instances connected by
// dependency edges. Edges run consumer -> producer: deps[id] lists the
// factors id depends on, dependents[id] the factors that depend on id.
//
// A strategy is never mutated once it has entered a population; operators
// clone it and edit the clone, which keeps the type safe to share across
// concurrent evaluation workers.
type Strategy struct {
	ID         string                 `json:"id"`
	Generation int                    `json:"generation"`
	ParentIDs  []string               `json:"parent_ids"`
	Factors    map[string]*Factor     `json:"factors"`
	Params     map[string]float64     `json:"params"`
	Metrics    *MultiObjectiveMetrics `json:"metrics,omitempty"`

	// BaseColumns are the market-data columns available to root factors.
	BaseColumns []string `json:"base_columns"`
	// SignalColumns are the output names accepted as a position signal.
	SignalColumns []string `json:"signal_columns"`

	deps       map[string][]string
	dependents map[string][]string

	compiled *Pipeline
}

// NewStrategy creates an empty generation-0 strategy over the given base
// market-data columns.
func NewStrategy(baseColumns []string) *Strategy {
	return &Strategy{
		ID:            NewID(),
		Factors:       make(map[string]*Factor),
		Params:        make(map[string]float64),
		BaseColumns:   append([]string(nil), baseColumns...),
		SignalColumns: append([]string(nil), DefaultSignalColumns...),
		deps:          make(map[string][]string),
		dependents:    make(map[string][]string),
	}
}

// NewID returns a fresh unique strategy identifier.
func NewID() string {
	return uuid.NewString()
}

// FactorIDs returns the node set in sorted order.
func (s *Strategy) FactorIDs() []string {
	ids := make([]string, 0, len(s.Factors))
	for id := range s.Factors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dependencies returns the ids the given factor depends on.
func (s *Strategy) Dependencies(id string) []string {
	return append([]string(nil), s.deps[id]...)
}

// Dependents returns the ids that depend on the given factor.
func (s *Strategy) Dependents(id string) []string {
	return append([]string(nil), s.dependents[id]...)
}

// AddFactor inserts a node and edges from each dependency to the new factor.
// If the resulting graph is not acyclic the insertion is rolled back
// entirely and the strategy is left unchanged.
func (s *Strategy) AddFactor(f *Factor, dependsOn []string) error {
	if f == nil || f.ID == "" {
		return errors.New(errors.InvalidInput, "factor must have an id")
	}
	if _, exists := s.Factors[f.ID]; exists {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "factor id already present"),
			errors.Fields{"factor_id": f.ID},
		)
	}
	for _, dep := range dependsOn {
		if _, ok := s.Factors[dep]; !ok {
			return errors.WithFields(
				errors.New(errors.UnknownFactor, "dependency not in strategy"),
				errors.Fields{"factor_id": f.ID, "dependency": dep},
			)
		}
	}

	s.Factors[f.ID] = f
	s.deps[f.ID] = append([]string(nil), dependsOn...)
	for _, dep := range dependsOn {
		s.dependents[dep] = append(s.dependents[dep], f.ID)
	}

	if _, err := s.TopologicalSort(); err != nil {
		// Roll back: discard the inserted node and its edges.
		s.removeNode(f.ID)
		return errors.WithFields(
			errors.New(errors.CycleDetected, "insertion would create a cycle"),
			errors.Fields{"factor_id": f.ID},
		)
	}

	s.invalidate()
	return nil
}

// RemoveFactor removes a node and all its edges. It fails if any other
// factor still depends on the node.
func (s *Strategy) RemoveFactor(id string) error {
	if _, ok := s.Factors[id]; !ok {
		return errors.WithFields(
			errors.New(errors.UnknownFactor, "factor not in strategy"),
			errors.Fields{"factor_id": id},
		)
	}
	if len(s.dependents[id]) > 0 {
		return errors.WithFields(
			errors.New(errors.OrphanedFactor, "factor has dependents"),
			errors.Fields{"factor_id": id, "dependents": len(s.dependents[id])},
		)
	}

	s.removeNode(id)
	s.invalidate()
	return nil
}

// ReplaceFactor substitutes a factor while preserving its predecessor and
// successor edges. On any failure the original wiring is restored.
func (s *Strategy) ReplaceFactor(oldID string, f *Factor) error {
	old, ok := s.Factors[oldID]
	if !ok {
		return errors.WithFields(
			errors.New(errors.UnknownFactor, "factor not in strategy"),
			errors.Fields{"factor_id": oldID},
		)
	}
	if f == nil || f.ID == "" {
		return errors.New(errors.InvalidInput, "replacement must have an id")
	}
	if f.ID != oldID {
		if _, exists := s.Factors[f.ID]; exists {
			return errors.WithFields(
				errors.New(errors.InvalidInput, "replacement id already present"),
				errors.Fields{"factor_id": f.ID},
			)
		}
	}

	oldDeps := s.deps[oldID]
	oldDependents := s.dependents[oldID]

	delete(s.Factors, oldID)
	delete(s.deps, oldID)
	delete(s.dependents, oldID)

	s.Factors[f.ID] = f
	s.deps[f.ID] = append([]string(nil), oldDeps...)
	s.dependents[f.ID] = append([]string(nil), oldDependents...)
	for _, dependent := range oldDependents {
		s.deps[dependent] = replaceID(s.deps[dependent], oldID, f.ID)
	}
	for _, dep := range oldDeps {
		s.dependents[dep] = replaceID(s.dependents[dep], oldID, f.ID)
	}

	if _, err := s.TopologicalSort(); err != nil {
		// Restore the original node and wiring.
		delete(s.Factors, f.ID)
		delete(s.deps, f.ID)
		delete(s.dependents, f.ID)
		s.Factors[oldID] = old
		s.deps[oldID] = oldDeps
		s.dependents[oldID] = oldDependents
		for _, dependent := range oldDependents {
			s.deps[dependent] = replaceID(s.deps[dependent], f.ID, oldID)
		}
		for _, dep := range oldDeps {
			s.dependents[dep] = replaceID(s.dependents[dep], f.ID, oldID)
		}
		return errors.WithFields(
			errors.New(errors.CycleDetected, "replacement would create a cycle"),
			errors.Fields{"factor_id": f.ID},
		)
	}

	s.invalidate()
	return nil
}

func (s *Strategy) removeNode(id string) {
	for _, dep := range s.deps[id] {
		s.dependents[dep] = removeID(s.dependents[dep], id)
	}
	for _, dependent := range s.dependents[id] {
		s.deps[dependent] = removeID(s.deps[dependent], id)
	}
	delete(s.Factors, id)
	delete(s.deps, id)
	delete(s.dependents, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func replaceID(ids []string, oldID, newID string) []string {
	for i, v := range ids {
		if v == oldID {
			ids[i] = newID
		}
	}
	return ids
}

// TopologicalSort returns the factor ids in dependency order, or an error
// if the graph contains a cycle. Ties are broken lexicographically so the
// order is deterministic.
func (s *Strategy) TopologicalSort() ([]string, error) {
	indegree := make(map[string]int, len(s.Factors))
	for id := range s.Factors {
		indegree[id] = len(s.deps[id])
	}

	ready := make([]string, 0, len(s.Factors))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(s.Factors))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		next := make([]string, 0)
		for _, dependent := range s.dependents[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		ready = mergeSorted(ready, next)
	}

	if len(order) != len(s.Factors) {
		return nil, errors.New(errors.CycleDetected, "dependency graph contains a cycle")
	}
	return order, nil
}

func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// Validate runs the structural invariant checks in order: acyclicity,
// input satisfaction in topological order, signal-output presence, and
// weak connectivity to the base-data roots. It returns the first failing
// check's error and never mutates state.
func (s *Strategy) Validate() error {
	if len(s.Factors) == 0 {
		return errors.New(errors.ValidationFailed, "strategy has no factors")
	}

	order, err := s.TopologicalSort()
	if err != nil {
		return err
	}

	// Input satisfaction: walk in topological order accumulating the
	// available column set, seeded with the base market-data columns.
	available := make(map[string]bool, len(s.BaseColumns))
	for _, col := range s.BaseColumns {
		available[col] = true
	}
	for _, id := range order {
		f := s.Factors[id]
		for _, input := range f.Inputs {
			if !available[input] {
				return errors.WithFields(
					errors.New(errors.UnsatisfiedInput, "input column not produced by any predecessor"),
					errors.Fields{"factor_id": id, "column": input},
				)
			}
		}
		for _, output := range f.Outputs {
			available[output] = true
		}
	}

	// Signal output: at least one factor must produce a recognized
	// position/signal column.
	signal := make(map[string]bool, len(s.SignalColumns))
	for _, col := range s.SignalColumns {
		signal[col] = true
	}
	hasSignal := false
	for _, f := range s.Factors {
		for _, output := range f.Outputs {
			if signal[output] {
				hasSignal = true
				break
			}
		}
	}
	if !hasSignal {
		return errors.New(errors.NoSignalOutput, "no factor produces a position/signal output")
	}

	// Connectivity: every factor must be weakly connected to the base-data
	// roots. Root factors (no dependencies) anchor to the base data; the
	// undirected closure from them must cover the whole graph.
	visited := make(map[string]bool, len(s.Factors))
	queue := make([]string, 0)
	for id := range s.Factors {
		if len(s.deps[id]) == 0 {
			visited[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range s.dependents[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
		for _, next := range s.deps[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range s.Factors {
		if !visited[id] {
			return errors.WithFields(
				errors.New(errors.OrphanedFactor, "factor not reachable from base-data roots"),
				errors.Fields{"factor_id": id},
			)
		}
	}

	return nil
}

// Clone returns a deep copy of the strategy with a fresh id, cleared
// metrics and an empty pipeline cache. Generation and lineage fields are
// left for the caller to assign.
func (s *Strategy) Clone() *Strategy {
	clone := &Strategy{
		ID:            NewID(),
		Generation:    s.Generation,
		ParentIDs:     append([]string(nil), s.ParentIDs...),
		Factors:       make(map[string]*Factor, len(s.Factors)),
		Params:        copyParams(s.Params),
		BaseColumns:   append([]string(nil), s.BaseColumns...),
		SignalColumns: append([]string(nil), s.SignalColumns...),
		deps:          make(map[string][]string, len(s.deps)),
		dependents:    make(map[string][]string, len(s.dependents)),
	}
	for id, f := range s.Factors {
		clone.Factors[id] = f.Clone()
	}
	for id, d := range s.deps {
		clone.deps[id] = append([]string(nil), d...)
	}
	for id, d := range s.dependents {
		clone.dependents[id] = append([]string(nil), d...)
	}
	return clone
}

// ChildOf marks the strategy as offspring of the given parents, assigning
// generation max(parents)+1 and recording lineage.
func (s *Strategy) ChildOf(parents ...*Strategy) *Strategy {
	maxGen := 0
	ids := make([]string, 0, len(parents))
	for _, p := range parents {
		if p.Generation > maxGen {
			maxGen = p.Generation
		}
		ids = append(ids, p.ID)
	}
	s.Generation = maxGen + 1
	s.ParentIDs = ids
	return s
}

// StructuralHash returns a stable digest of the node set, edges, parameter
// values and factor sources. Two strategies with the same hash compile to
// the same pipeline.
func (s *Strategy) StructuralHash() string {
	h := sha256.New()
	for _, id := range s.FactorIDs() {
		f := s.Factors[id]
		fmt.Fprintf(h, "n:%s:%s:%s;", id, f.Name, f.Source)
		deps := append([]string(nil), s.deps[id]...)
		sort.Strings(deps)
		for _, dep := range deps {
			fmt.Fprintf(h, "e:%s->%s;", dep, id)
		}
	}
	paramNames := make([]string, 0, len(s.Params))
	for name := range s.Params {
		paramNames = append(paramNames, name)
	}
	sort.Strings(paramNames)
	for _, name := range paramNames {
		fmt.Fprintf(h, "p:%s=%g;", name, s.Params[name])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FeatureSet returns the factor-category/parameter-discretized tokens used
// by novelty scoring. Parameters are bucketed into tenths of their declared
// range so that small numeric drift does not register as novelty.
func (s *Strategy) FeatureSet() map[string]struct{} {
	features := make(map[string]struct{})
	for _, f := range s.Factors {
		features[string(f.Category)+":"+f.Name] = struct{}{}
		for name, value := range f.Params {
			spec := f.Specs[name]
			bucket := 0
			if spec.Max > spec.Min {
				bucket = int((value - spec.Min) / (spec.Max - spec.Min) * 10)
				if bucket > 9 {
					bucket = 9
				}
				if bucket < 0 {
					bucket = 0
				}
			}
			features[fmt.Sprintf("%s:%s@%d", f.Name, name, bucket)] = struct{}{}
		}
	}
	return features
}

// Depth returns the longest dependency chain length in the DAG.
func (s *Strategy) Depth() int {
	order, err := s.TopologicalSort()
	if err != nil {
		return 0
	}
	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, id := range order {
		d := 1
		for _, dep := range s.deps[id] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		if d > maxDepth {
			maxDepth = d
		}
	}
	return maxDepth
}

// Width returns the maximum number of factors sharing a dependency depth.
func (s *Strategy) Width() int {
	order, err := s.TopologicalSort()
	if err != nil {
		return 0
	}
	depth := make(map[string]int, len(order))
	counts := make(map[int]int)
	maxWidth := 0
	for _, id := range order {
		d := 1
		for _, dep := range s.deps[id] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		counts[d]++
		if counts[d] > maxWidth {
			maxWidth = counts[d]
		}
	}
	return maxWidth
}

func (s *Strategy) invalidate() {
	s.compiled = nil
}
