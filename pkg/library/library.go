// Package library provides the read-only factor registry that mutation
// operators draw candidate factors from.
package library

import (
	"sort"
	"sync"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// FactorLibrary is a registry mapping category to candidate factors.
// Registration happens during setup; during evolution the library is
// read-only and therefore safe to share across evaluation workers without
// locking. The mutex only guards the setup phase.
type FactorLibrary struct {
	mu         sync.RWMutex
	byID       map[string]*core.Factor
	byCategory map[core.FactorCategory][]*core.Factor
}

// New creates an empty library.
func New() *FactorLibrary {
	return &FactorLibrary{
		byID:       make(map[string]*core.Factor),
		byCategory: make(map[core.FactorCategory][]*core.Factor),
	}
}

// Register adds a prototype factor to the library.
func (l *FactorLibrary) Register(f *core.Factor) error {
	if f == nil || f.ID == "" {
		return errors.New(errors.InvalidInput, "factor must have an id")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.byID[f.ID]; exists {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "factor id already registered"),
			errors.Fields{"factor_id": f.ID},
		)
	}

	l.byID[f.ID] = f
	l.byCategory[f.Category] = append(l.byCategory[f.Category], f)
	return nil
}

// GetByID returns the prototype with the given id, or nil.
func (l *FactorLibrary) GetByID(id string) *core.Factor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[id]
}

// GetByCategory returns the prototypes in a category, in registration order.
func (l *FactorLibrary) GetByCategory(category core.FactorCategory) []*core.Factor {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*core.Factor(nil), l.byCategory[category]...)
}

// Alternatives returns same-category prototypes excluding the given id.
func (l *FactorLibrary) Alternatives(category core.FactorCategory, excludeID string) []*core.Factor {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*core.Factor, 0)
	for _, f := range l.byCategory[category] {
		if f.ID != excludeID {
			out = append(out, f)
		}
	}
	return out
}

// Categories returns the categories with at least one registered factor.
func (l *FactorLibrary) Categories() []core.FactorCategory {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]core.FactorCategory, 0, len(l.byCategory))
	for category := range l.byCategory {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered prototypes.
func (l *FactorLibrary) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// All returns every registered prototype sorted by id.
func (l *FactorLibrary) All() []*core.Factor {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*core.Factor, 0, len(l.byID))
	for _, f := range l.byID {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
