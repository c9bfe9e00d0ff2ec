// Package validation checks workflow records and request payloads before they
// reach the graph engine or the draft store.
package validation

import (
	"fmt"
	"strings"
)

// Validator interface for custom validation
// PRINCIPLES:
// - ISP: Simple interface with single method
// - DIP: Depend on interface, not concrete types
type Validator interface {
	Validate() error
}

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value"`
	Message string      `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// StructValidator plugs the playground validator into HTTP body binding.
type StructValidator struct {
	config *ValidationConfig
}

// NewStructValidator creates a binder-facing validator.
func NewStructValidator(config *ValidationConfig) *StructValidator {
	return &StructValidator{config: config}
}

// Validate runs struct tag validation, then the type's own Validate method
// when it implements Validator.
func (v *StructValidator) Validate(out any) error {
	if err := ValidateWithConfig(out, v.config); err != nil {
		return err
	}
	if self, ok := out.(Validator); ok {
		return self.Validate()
	}
	return nil
}
