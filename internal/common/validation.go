package common

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ValidationError is one failed rule.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationRule checks one value; nil means it passed.
type ValidationRule func(fieldName string, value any) *ValidationError

// Validator collects rule failures across fields.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field runs rules against value and records every failure.
func (v *Validator) Field(fieldName string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
		}
	}
	return v
}

// Check records message for fieldName when ok is false. It covers
// cross-field conditions that no single-value rule can express.
func (v *Validator) Check(ok bool, fieldName string, value any, message string) *Validator {
	if !ok {
		v.errors = append(v.errors, ValidationError{Field: fieldName, Value: value, Message: message})
	}
	return v
}

func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

// Error joins every failure and wraps ErrValidation, or returns nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, 0, len(v.errors))
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}

// Required rejects nil and blank strings.
func Required(fieldName string, value any) *ValidationError {
	switch v := value.(type) {
	case nil:
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

// OneOf accepts only the listed strings.
func OneOf(allowed ...string) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		s, _ := value.(string)
		if !slices.Contains(allowed, s) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: "must be one of " + strings.Join(allowed, ", "),
			}
		}
		return nil
	}
}

// AtLeast accepts integers no smaller than min.
func AtLeast(min int) ValidationRule {
	return func(fieldName string, value any) *ValidationError {
		n, ok := value.(int)
		if !ok || n < min {
			return &ValidationError{Field: fieldName, Value: value, Message: fmt.Sprintf("must be at least %d", min)}
		}
		return nil
	}
}

// Positive accepts numbers above zero.
func Positive(fieldName string, value any) *ValidationError {
	var ok bool
	switch n := value.(type) {
	case int:
		ok = n > 0
	case int64:
		ok = n > 0
	case float64:
		ok = n > 0
	}
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be positive"}
	}
	return nil
}

func UUID(fieldName string, value any) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	if _, err := uuid.Parse(str); err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a valid UUID"}
	}
	return nil
}

// ValidateAndReturnError turns failures into an InvalidArgument status.
func ValidateAndReturnError(validator *Validator) error {
	if err := validator.Error(); err != nil {
		return InvalidArgumentError(err.Error())
	}
	return nil
}
