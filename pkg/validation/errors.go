package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError maps request fields (by JSON name) to messages
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

// Error lists the field messages in field order
func (v *ValidationError) Error() string {
	fields := make([]string, 0, len(v.Errors))
	for field := range v.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	messages := make([]string, 0, len(fields))
	for _, field := range fields {
		messages = append(messages, fmt.Sprintf("%s: %s", field, v.Errors[field]))
	}
	return strings.Join(messages, "; ")
}

// NewValidationError keeps the first failure reported for each field
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	v := &ValidationError{Errors: make(map[string]string, len(errs))}
	for _, err := range errs {
		if _, seen := v.Errors[err.Field()]; seen {
			continue
		}
		v.Errors[err.Field()] = fieldMessage(err)
	}
	return v
}

// messages for the tags request types use; %[1]s is the field, %[2]s the param
var tagMessages = map[string]string{
	"required":      "%[1]s is required",
	"gte":           "%[1]s must be greater than or equal to %[2]s",
	"lte":           "%[1]s must be less than or equal to %[2]s",
	"gt":            "%[1]s must be greater than %[2]s",
	"max":           "%[1]s must be at most %[2]s",
	"uuid":          "%[1]s must be a valid UUID",
	"usd_amount":    "%[1]s must be a non-negative USD amount with at most 2 decimals",
	"native_amount": "%[1]s must be a non-negative native asset amount",
}

func fieldMessage(err validator.FieldError) string {
	format, ok := tagMessages[err.Tag()]
	if !ok {
		return fmt.Sprintf("%s is invalid", err.Field())
	}
	if !strings.Contains(format, "%[2]s") {
		return fmt.Sprintf(format, err.Field())
	}
	return fmt.Sprintf(format, err.Field(), err.Param())
}

// AddError records message for field
func (v *ValidationError) AddError(field, message string) {
	if v.Errors == nil {
		v.Errors = make(map[string]string)
	}
	v.Errors[field] = message
}

// HasErrors reports whether any field failed
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// GetFieldError returns the message recorded for field
func (v *ValidationError) GetFieldError(field string) (string, bool) {
	msg, exists := v.Errors[field]
	return msg, exists
}
