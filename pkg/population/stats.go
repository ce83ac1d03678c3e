package population

// GenerationStats summarizes one completed generation for observability.
type GenerationStats struct {
	Generation        int      `json:"generation"`
	BestRankSize      int      `json:"best_rank_size"`
	DiversityScore    float64  `json:"diversity_score"`
	MutationRate      float64  `json:"mutation_rate"`
	EliteIDs          []string `json:"elite_ids"`
	OffspringAccepted int      `json:"offspring_accepted"`
	OffspringRejected int      `json:"offspring_rejected"`
	Fallbacks         int      `json:"fallbacks"`
	FreshInjected     int      `json:"fresh_injected"`
	BestScalar        float64  `json:"best_scalar"`
	Stagnation        int      `json:"stagnation"`
	Converged         bool     `json:"converged"`
}
