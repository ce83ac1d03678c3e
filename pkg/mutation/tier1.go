package mutation

import (
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
	"github.com/alphaforge/alphaforge/pkg/library"
)

var specValidate = validator.New()

// FactorEntry is one node of a declarative strategy description: a library
// factor id, the earlier entries it consumes, and optional parameter
// overrides.
type FactorEntry struct {
	Factor    string             `yaml:"factor" validate:"required"`
	DependsOn []string           `yaml:"depends_on" validate:"omitempty,dive,required"`
	Params    map[string]float64 `yaml:"params"`
}

// StrategySpec is the schema-validated key/value tree that Tier 1 turns
// into a fresh strategy. Every referenced factor must exist in the library
// and every dependency must name an entry that appears earlier in the
// list, so rejection happens before any factor is instantiated.
type StrategySpec struct {
	BaseColumns []string      `yaml:"base_columns" validate:"required,min=1,dive,required"`
	Factors     []FactorEntry `yaml:"factors" validate:"required,min=1,dive"`
}

// ParseSpec decodes a YAML strategy description.
func ParseSpec(data []byte) (*StrategySpec, error) {
	var spec StrategySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to parse strategy spec")
	}
	return &spec, nil
}

// BuildFromSpec is the Tier 1 operation: it validates the description
// first and only then instantiates library factors and wires the declared
// dependencies. A rejected description has no side effects.
func BuildFromSpec(lib *library.FactorLibrary, spec *StrategySpec) (*core.Strategy, *Record, error) {
	const op = "build_from_spec"

	if err := validateSpec(lib, spec); err != nil {
		return nil, failed(TierConfig, op, err), err
	}

	s := core.NewStrategy(spec.BaseColumns)
	for _, entry := range spec.Factors {
		f := lib.GetByID(entry.Factor)
		for name, value := range entry.Params {
			adjusted, err := f.WithParam(name, value)
			if err != nil {
				return nil, failed(TierConfig, op, err), err
			}
			f = adjusted
		}
		if err := s.AddFactor(f, entry.DependsOn); err != nil {
			return nil, failed(TierConfig, op, err), err
		}
	}

	if err := s.Validate(); err != nil {
		return nil, failed(TierConfig, op, err), err
	}
	return s, &Record{Tier: TierConfig, Operation: op, Success: true}, nil
}

// validateSpec runs schema validation plus referential checks without
// touching the library beyond lookups.
func validateSpec(lib *library.FactorLibrary, spec *StrategySpec) error {
	if spec == nil {
		return errors.New(errors.InvalidInput, "strategy spec is nil")
	}
	if err := specValidate.Struct(spec); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "strategy spec failed schema validation")
	}

	seen := make(map[string]bool, len(spec.Factors))
	for _, entry := range spec.Factors {
		if lib.GetByID(entry.Factor) == nil {
			return errors.WithFields(
				errors.New(errors.UnknownFactor, "spec references unknown factor"),
				errors.Fields{"factor_id": entry.Factor},
			)
		}
		if seen[entry.Factor] {
			return errors.WithFields(
				errors.New(errors.ValidationFailed, "spec lists factor twice"),
				errors.Fields{"factor_id": entry.Factor},
			)
		}
		for _, dep := range entry.DependsOn {
			if !seen[dep] {
				return errors.WithFields(
					errors.New(errors.ValidationFailed, "dependency must name an earlier entry"),
					errors.Fields{"factor_id": entry.Factor, "dependency": dep},
				)
			}
		}
		seen[entry.Factor] = true
	}
	return nil
}
