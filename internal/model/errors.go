package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all components.
var (
	// ErrRateLimitTimeout is returned when a token was not obtained in time.
	ErrRateLimitTimeout = errors.New("rate limit timeout")

	// ErrExternalAPI marks failures reported by the marketplace API.
	ErrExternalAPI = errors.New("external api error")

	// ErrConfigurationMissing means no PricingParameters exist for a listing.
	ErrConfigurationMissing = errors.New("pricing configuration missing")

	// ErrValidation marks malformed operator input.
	ErrValidation = errors.New("validation error")

	ErrNotFound      = errors.New("not found")
	ErrJobBusy       = errors.New("job busy")
	ErrUnknownJob    = errors.New("unknown job")
	ErrUnknownBucket = errors.New("unknown rate limit bucket")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// MissingConfigError reports the key that had no parameters.
type MissingConfigError struct {
	Key ParamsKey
}

func (e *MissingConfigError) Error() string {
	return fmt.Sprintf("no pricing parameters for sku=%s grade=%s country=%s",
		e.Key.SKU, e.Key.Grade, e.Key.CountryCode)
}

func (e *MissingConfigError) Unwrap() error {
	return ErrConfigurationMissing
}
