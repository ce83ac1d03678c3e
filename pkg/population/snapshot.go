package population

import (
	"context"

	"github.com/alphaforge/alphaforge/pkg/checkpoint"
	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/diversity"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/mutation"
	"github.com/alphaforge/alphaforge/pkg/selection"
)

// WithCheckpointStore makes the manager persist a snapshot after every
// completed generation.
func WithCheckpointStore(store *checkpoint.Store) Option {
	return func(mgr *Manager) { mgr.store = store }
}

// Snapshot captures the current population in serializable form.
func (m *Manager) Snapshot() *checkpoint.Snapshot {
	snap := &checkpoint.Snapshot{
		Generation:     m.generation,
		DiversityScore: diversity.Score(m.population),
		ParetoFrontIDs: selection.ParetoFrontIDs(m.population),
	}
	for _, s := range m.population {
		snap.Strategies = append(snap.Strategies, checkpoint.StrategySnapshot{
			ID:         s.ID,
			Generation: s.Generation,
			ParentIDs:  append([]string(nil), s.ParentIDs...),
			Spec:       mutation.SpecFromStrategy(s),
			Metrics:    s.Metrics,
		})
	}
	return snap
}

// Restore replaces the population with the snapshot's strategies,
// rebuilding each from its declarative spec so factor logic is reattached
// from the library. The run can then continue at generation g+1.
func (m *Manager) Restore(snap *checkpoint.Snapshot) error {
	if snap == nil || len(snap.Strategies) == 0 {
		return errors.New(errors.InvalidInput, "snapshot is empty")
	}

	restored := make([]*core.Strategy, 0, len(snap.Strategies))
	for _, entry := range snap.Strategies {
		s, _, err := mutation.BuildFromSpec(m.lib, entry.Spec)
		if err != nil {
			return errors.Wrap(err, errors.ValidationFailed, "snapshot strategy no longer builds")
		}
		s.ID = entry.ID
		s.Generation = entry.Generation
		s.ParentIDs = append([]string(nil), entry.ParentIDs...)
		s.Metrics = entry.Metrics
		restored = append(restored, s)
	}

	// Pad or truncate to the configured size so invariants hold even when
	// the snapshot came from a differently sized run.
	for len(restored) < m.cfg.PopulationSize {
		extra, err := m.seed(1)
		if err != nil {
			return err
		}
		restored = append(restored, extra...)
	}
	m.population = restored[:m.cfg.PopulationSize]
	m.generation = snap.Generation
	return nil
}

// saveCheckpoint persists the current state when a store is configured.
func (m *Manager) saveCheckpoint(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, m.Snapshot())
}
