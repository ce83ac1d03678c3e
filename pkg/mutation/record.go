// Package mutation implements the three-tier mutation system: declarative
// configuration-level builds, structural and parametric edits, and
// delegated logic rewrites, with adaptive risk routing between tiers.
package mutation

// Tier identifies a mutation risk bucket.
type Tier int

const (
	// TierConfig builds a fresh strategy from a schema-validated
	// declarative description. Lowest blast radius.
	TierConfig Tier = 1
	// TierStructural edits an existing strategy's DAG or parameters.
	TierStructural Tier = 2
	// TierLogic rewrites a factor's internal computation through an
	// external mutator. Highest blast radius.
	TierLogic Tier = 3
)

func (t Tier) String() string {
	switch t {
	case TierConfig:
		return "config"
	case TierStructural:
		return "structural"
	case TierLogic:
		return "logic"
	default:
		return "unknown"
	}
}

// Record captures what a single mutation attempt did, for observability by
// external collaborators. Every operation produces one, success or not.
type Record struct {
	Tier      Tier    `json:"tier"`
	Operation string  `json:"operation"`
	FactorID  string  `json:"factor_id,omitempty"`
	Parameter string  `json:"parameter,omitempty"`
	OldValue  float64 `json:"old_value,omitempty"`
	NewValue  float64 `json:"new_value,omitempty"`
	Clamped   bool    `json:"clamped"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
}

func failed(tier Tier, operation string, err error) *Record {
	r := &Record{Tier: tier, Operation: operation}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
