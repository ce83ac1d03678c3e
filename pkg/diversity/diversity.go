// Package diversity measures population-level dissimilarity and drives
// the adaptive mutation-rate response that guards against premature
// convergence.
package diversity

import (
	"github.com/alphaforge/alphaforge/pkg/core"
)

// Novelty is the Jaccard distance between two strategies' feature sets:
// 1 - |A∩B|/|A∪B|. Two structurally identical strategies score 0, two
// strategies sharing nothing score 1. Both sets empty counts as identical.
func Novelty(a, b *core.Strategy) float64 {
	fa := a.FeatureSet()
	fb := b.FeatureSet()
	if len(fa) == 0 && len(fb) == 0 {
		return 0
	}

	intersection := 0
	for token := range fa {
		if _, ok := fb[token]; ok {
			intersection++
		}
	}
	union := len(fa) + len(fb) - intersection
	return 1 - float64(intersection)/float64(union)
}

// Score is the mean pairwise Novelty across the population, in [0,1].
// A population of identical strategies scores 0; fewer than two members
// also score 0 since no pair exists to compare.
func Score(population []*core.Strategy) float64 {
	if len(population) < 2 {
		return 0
	}

	total := 0.0
	pairs := 0
	for i := 0; i < len(population); i++ {
		for j := i + 1; j < len(population); j++ {
			total += Novelty(population[i], population[j])
			pairs++
		}
	}
	return total / float64(pairs)
}
