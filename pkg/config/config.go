// Package config defines the immutable run configuration for an evolution
// run. A single validated snapshot is taken per run so that results are
// reproducible from the config plus the RNG seed alone.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alphaforge/alphaforge/pkg/errors"
)

// Config captures every tunable of the evolution engine.
type Config struct {
	// Population parameters
	PopulationSize int `yaml:"population_size" validate:"required,min=2"`
	EliteCount     int `yaml:"elite_count" validate:"min=0"`
	MaxGenerations int `yaml:"max_generations" validate:"min=1"`

	// Selection parameters
	TournamentSize     int     `yaml:"tournament_size" validate:"min=2"`
	TournamentPressure float64 `yaml:"tournament_pressure" validate:"gt=0,lte=1"`

	// Mutation parameters
	MutationRate    float64 `yaml:"mutation_rate" validate:"gt=0,lte=1"`
	MutationSigma   float64 `yaml:"mutation_sigma" validate:"gt=0"`
	CrossoverRate   float64 `yaml:"crossover_rate" validate:"gte=0,lte=1"`
	MutationRetries int     `yaml:"mutation_retries" validate:"min=1"`
	// OffspringBudget bounds regeneration attempts per offspring slot.
	OffspringBudget int `yaml:"offspring_budget" validate:"min=1"`

	// Tier routing parameters
	RiskLowThreshold  float64 `yaml:"risk_low_threshold" validate:"gt=0,lt=1"`
	RiskHighThreshold float64 `yaml:"risk_high_threshold" validate:"gt=0,lt=1,gtfield=RiskLowThreshold"`
	RoutingSmoothing  float64 `yaml:"routing_smoothing" validate:"gt=0,lte=1"`

	// Diversity parameters
	DiversityThreshold float64 `yaml:"diversity_threshold" validate:"gt=0,lt=1"`
	DiversityWindow    int     `yaml:"diversity_window" validate:"min=1"`
	InjectFresh        bool    `yaml:"inject_fresh"`

	// Execution parameters
	ConcurrencyLevel int   `yaml:"concurrency_level" validate:"min=1"`
	Seed             int64 `yaml:"seed"`

	// Data parameters
	BaseColumns   []string `yaml:"base_columns" validate:"min=1"`
	SignalColumns []string `yaml:"signal_columns" validate:"min=1"`

	// Observability
	LogLevel       string `yaml:"log_level" validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFile        string `yaml:"log_file"`
	CheckpointPath string `yaml:"checkpoint_path"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		PopulationSize:     20,
		EliteCount:         2,
		MaxGenerations:     10,
		TournamentSize:     3,
		TournamentPressure: 0.8,
		MutationRate:       0.3,
		MutationSigma:      0.15,
		CrossoverRate:      0.7,
		MutationRetries:    3,
		OffspringBudget:    10,
		RiskLowThreshold:   0.33,
		RiskHighThreshold:  0.66,
		RoutingSmoothing:   0.2,
		DiversityThreshold: 0.3,
		DiversityWindow:    5,
		InjectFresh:        true,
		ConcurrencyLevel:   4,
		Seed:               1,
		BaseColumns:        []string{"open", "high", "low", "close", "volume"},
		SignalColumns:      []string{"position", "signal"},
		LogLevel:           "INFO",
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "reading config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "parsing config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
