package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/flowgraph/blockgraph/internal/core/graph"
	"github.com/go-playground/validator/v10"
)

// Enhanced validator instance with custom validations
var (
	// Validate is the main validator instance
	Validate *validator.Validate

	nodeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func init() {
	Validate = validator.New()

	// Register custom validation functions
	Validate.RegisterValidation("node_id", validateNodeID)
	Validate.RegisterValidation("block_kind", validateBlockKind)
	Validate.RegisterValidation("value_selector", validateValueSelector)

	// Register tag name function to use JSON tags for field names
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// ValidateWithPlayground validates using go-playground/validator
func ValidateWithPlayground(s interface{}) error {
	err := Validate.Struct(s)
	if err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors converts validator errors to our custom format
func formatValidationErrors(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	var out ValidationErrors
	for _, fieldError := range fieldErrors {
		out = append(out, ValidationError{
			Field:   fieldError.Namespace(),
			Value:   fieldError.Value(),
			Message: getErrorMessage(fieldError),
		})
	}
	return out
}

// getErrorMessage returns a human-readable error message
func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("minimum value/length is %s", fe.Param())
	case "max":
		return fmt.Sprintf("maximum value/length is %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "node_id":
		return "must be a valid node identifier (alphanumeric, underscore, hyphen)"
	case "block_kind":
		return "must be a known block kind"
	case "value_selector":
		return "must be a node id followed by at least one non-empty path segment"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}

// validateNodeID validates node identifier format
func validateNodeID(fl validator.FieldLevel) bool {
	nodeID := fl.Field().String()
	return nodeIDPattern.MatchString(nodeID) && len(nodeID) <= 100
}

// validateBlockKind accepts the closed set of block kinds.
func validateBlockKind(fl validator.FieldLevel) bool {
	return graph.BlockKind(fl.Field().String()).Valid()
}

// validateValueSelector checks a []string selector shape.
func validateValueSelector(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Slice {
		return false
	}
	sel := make(graph.ValueSelector, field.Len())
	for i := range sel {
		sel[i] = field.Index(i).String()
	}
	return sel.Valid()
}

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	// MaxErrors caps the number of reported field errors; zero means no cap.
	MaxErrors int
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{MaxErrors: 10}
}

// ValidateWithConfig validates with specific configuration
func ValidateWithConfig(s interface{}, config *ValidationConfig) error {
	if config == nil {
		config = DefaultValidationConfig()
	}

	err := ValidateWithPlayground(s)
	if err != nil {
		var validationErrors ValidationErrors
		if errors.As(err, &validationErrors) && config.MaxErrors > 0 && len(validationErrors) > config.MaxErrors {
			return validationErrors[:config.MaxErrors]
		}
		return err
	}

	return nil
}

// errorResponse is the JSON body returned to API clients.
type errorResponse struct {
	Errors []ValidationError `json:"errors"`
	Count  int               `json:"count"`
}

// MarshalValidationErrors marshals validation errors to JSON
func MarshalValidationErrors(errs ValidationErrors) ([]byte, error) {
	return json.Marshal(errorResponse{Errors: errs, Count: len(errs)})
}

// UnmarshalValidationErrors unmarshals validation errors from JSON
func UnmarshalValidationErrors(data []byte) (ValidationErrors, error) {
	var response errorResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, err
	}
	return ValidationErrors(response.Errors), nil
}
