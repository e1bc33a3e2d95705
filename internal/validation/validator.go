// Package validation checks request payloads before they are sent to the
// review backend, using go-playground/validator with a few custom rules.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	idRe     = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func init() {
	// review_id keeps identifiers safe to embed in a URL path segment.
	err := validate.RegisterValidation("review_id", func(fl validator.FieldLevel) bool {
		if fl.Field().String() == "" {
			return true
		}
		return idRe.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(fmt.Sprintf("failed to register custom validation: %v", err))
	}
}

// ValidationError holds one message per failed field.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return strings.Join(v.Errors, ", ")
}

// ValidateStruct validates s against its `validate` tags.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	return toValidationError(err, "")
}

// ValidateID checks a review identifier.
func ValidateID(id string) error {
	err := validate.Var(id, "required,review_id")
	if err == nil {
		return nil
	}
	return toValidationError(err, "id")
}

func toValidationError(err error, field string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	var messages []string
	for _, fe := range fieldErrs {
		name := fe.Field()
		if name == "" {
			name = field
		}

		var message string
		switch fe.Tag() {
		case "review_id":
			message = fmt.Sprintf("field '%s' must contain only letters, numbers, hyphens, and underscores", name)
		case "required_without":
			message = fmt.Sprintf("field '%s' is required when '%s' is empty", name, fe.Param())
		case "max":
			message = fmt.Sprintf("field '%s' must be at most %s characters", name, fe.Param())
		default:
			message = fmt.Sprintf("field '%s' failed on the '%s' tag", name, fe.Tag())
		}
		messages = append(messages, message)
	}

	return &ValidationError{Errors: messages}
}
