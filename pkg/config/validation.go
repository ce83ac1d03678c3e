package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Tag     string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "min":
		return fmt.Sprintf("%s is below its minimum", e.Field)
	case "max":
		return fmt.Sprintf("%s is above its maximum", e.Field)
	case "oneof":
		return fmt.Sprintf("%s has an unsupported value", e.Field)
	case "gtfield":
		return fmt.Sprintf("%s must exceed its paired field", e.Field)
	default:
		return fmt.Sprintf("%s failed validation", e.Field)
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

var validate = validator.New()

// Validate checks the configuration against its declared constraints plus
// the cross-field rules the tag language cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var out ValidationErrors
		for _, fieldErr := range err.(validator.ValidationErrors) {
			out = append(out, ValidationError{
				Field: fieldErr.Field(),
				Tag:   fieldErr.Tag(),
				Value: fieldErr.Value(),
			})
		}
		return out
	}

	if c.EliteCount >= c.PopulationSize {
		return ValidationErrors{{
			Field:   "EliteCount",
			Tag:     "ltfield",
			Value:   c.EliteCount,
			Message: "EliteCount must be smaller than PopulationSize",
		}}
	}

	return nil
}
