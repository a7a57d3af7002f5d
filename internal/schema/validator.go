package schema

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrMissingField indicates a required raw-event field is absent.
// The wrapping error names the field.
var ErrMissingField = errors.New("missing required field")

// Validator handles validation of raw events and finished alerts.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateRawEvent checks a raw event before the pipeline starts.
// Returns an error wrapping ErrMissingField that names the missing
// field when the event lacks its free-text description.
func (v *Validator) ValidateRawEvent(raw RawEvent) error {
	if raw == nil {
		return fmt.Errorf("%w: %s", ErrMissingField, DescriptionField)
	}
	if raw[DescriptionField] == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, DescriptionField)
	}
	return nil
}

// Validate validates a finished alert against the schema.
func (v *Validator) Validate(alert *Alert) error {
	if err := v.validate.Struct(alert); err != nil {
		return fmt.Errorf("alert validation failed: %w", err)
	}
	if alert.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
