package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/alphaforge/alphaforge/pkg/errors"
)

// FactorCategory classifies a factor by the role it plays in a strategy.
type FactorCategory string

const (
	CategoryMomentum FactorCategory = "momentum"
	CategoryValue    FactorCategory = "value"
	CategoryQuality  FactorCategory = "quality"
	CategoryRisk     FactorCategory = "risk"
	CategoryEntry    FactorCategory = "entry"
	CategoryExit     FactorCategory = "exit"
	CategorySignal   FactorCategory = "signal"
)

// Categories returns all known factor categories.
func Categories() []FactorCategory {
	return []FactorCategory{
		CategoryMomentum, CategoryValue, CategoryQuality,
		CategoryRisk, CategoryEntry, CategoryExit, CategorySignal,
	}
}

// ParamSpec declares the numeric bounds and type of a tunable parameter.
type ParamSpec struct {
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
	Integer bool    `json:"integer" yaml:"integer"`
}

// Clamp constrains a value to the declared bounds, rounding integer-typed
// parameters to the nearest whole number.
func (s ParamSpec) Clamp(v float64) (float64, bool) {
	lo, hi := s.Min, s.Max
	if s.Integer {
		// Round first, then clamp to the integral sub-range so the result
		// never leaves [Min, Max] even when the bounds are fractional.
		v = math.Round(v)
		lo = math.Ceil(lo)
		hi = math.Floor(hi)
	}
	clamped := false
	if v < lo {
		v = lo
		clamped = true
	}
	if v > hi {
		v = hi
		clamped = true
	}
	return v, clamped
}

// Logic is the opaque computation a factor performs: it maps input columns
// plus parameter values to output columns. Implementations must be pure and
// safe for concurrent use; the input/output contract is checked at
// composition time by Strategy.Validate, not at call time.
type Logic interface {
	Compute(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error)
}

// LogicFunc adapts a plain function to the Logic interface.
type LogicFunc func(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error)

func (f LogicFunc) Compute(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	return f(inputs, params)
}

// Factor is an atomic computational unit: declared inputs and outputs, a
// category tag, tunable parameters with bounds, a textual source encoding,
// and an opaque Logic. A Factor is immutable once constructed; mutation
// operators clone it and adjust the clone before it is attached anywhere.
type Factor struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Category FactorCategory       `json:"category"`
	Inputs   []string             `json:"inputs"`
	Outputs  []string             `json:"outputs"`
	Params   map[string]float64   `json:"params"`
	Specs    map[string]ParamSpec `json:"specs"`
	Source   string               `json:"source"`
	Logic    Logic                `json:"-"`
}

// NewFactor constructs a factor and renders its canonical source encoding
// when none is provided.
func NewFactor(id, name string, category FactorCategory, inputs, outputs []string, params map[string]float64, specs map[string]ParamSpec, logic Logic) *Factor {
	f := &Factor{
		ID:       id,
		Name:     name,
		Category: category,
		Inputs:   append([]string(nil), inputs...),
		Outputs:  append([]string(nil), outputs...),
		Params:   copyParams(params),
		Specs:    copySpecs(specs),
		Logic:    logic,
	}
	f.Source = f.renderSource()
	return f
}

// renderSource produces the declarative source encoding of the factor, the
// text that parameter mutation rewrites in place.
func (f *Factor) renderSource() string {
	names := make([]string, 0, len(f.Params))
	for name := range f.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	src := f.Name + "("
	for i, name := range names {
		if i > 0 {
			src += ", "
		}
		spec := f.Specs[name]
		if spec.Integer {
			src += fmt.Sprintf("%s=%d", name, int64(f.Params[name]))
		} else {
			src += fmt.Sprintf("%s=%g", name, f.Params[name])
		}
	}
	return src + ")"
}

// Clone returns a deep copy of the factor. The Logic is shared: logic values
// are stateless and safe for concurrent use.
func (f *Factor) Clone() *Factor {
	clone := *f
	clone.Inputs = append([]string(nil), f.Inputs...)
	clone.Outputs = append([]string(nil), f.Outputs...)
	clone.Params = copyParams(f.Params)
	clone.Specs = copySpecs(f.Specs)
	return &clone
}

// WithParam returns a copy of the factor with one parameter changed and the
// source encoding re-rendered. The value is clamped to the declared bounds.
func (f *Factor) WithParam(name string, value float64) (*Factor, error) {
	spec, ok := f.Specs[name]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.InvalidInput, "unknown parameter"),
			errors.Fields{"factor_id": f.ID, "parameter": name},
		)
	}
	clone := f.Clone()
	clone.Params[name], _ = spec.Clamp(value)
	clone.Source = clone.renderSource()
	return clone, nil
}

// WithLogic returns a copy of the factor carrying replacement logic and its
// new source encoding. Used by code-level mutation after external rewrite.
func (f *Factor) WithLogic(logic Logic, source string) *Factor {
	clone := f.Clone()
	clone.Logic = logic
	clone.Source = source
	return clone
}

func copyParams(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func copySpecs(specs map[string]ParamSpec) map[string]ParamSpec {
	out := make(map[string]ParamSpec, len(specs))
	for k, v := range specs {
		out[k] = v
	}
	return out
}
