package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Integration Errors
// ---------------------------------------------------------------------------

var (
	// Source (ERP) errors
	ErrSourceUnavailable     = errors.New("integration: source system temporarily unavailable")
	ErrSourceRequestFailed   = errors.New("integration: source request failed")
	ErrSourceInvalidResponse = errors.New("integration: invalid source response")
	ErrSourceAuthFailed      = errors.New("integration: source authentication failed")

	// CRM errors
	ErrCRMUnavailable     = errors.New("integration: crm temporarily unavailable")
	ErrCRMRequestFailed   = errors.New("integration: crm request failed")
	ErrCRMInvalidResponse = errors.New("integration: invalid crm response")
	ErrCRMAuthFailed      = errors.New("integration: crm authentication failed")
	ErrCRMRateLimited     = errors.New("integration: crm rate limited")

	// Record errors
	ErrMissingRequiredField = errors.New("integration: missing required field")
	ErrMissingParent        = errors.New("integration: parent record not found in crm")
	ErrInvalidLineID        = errors.New("integration: invalid line item id")

	// Run errors
	ErrRunInProgress      = errors.New("integration: a sync run is already in progress")
	ErrCheckpointNotFound = errors.New("integration: checkpoint not found")
	ErrSyncRunNotFound    = errors.New("integration: sync run not found")
)

// ValidationError reports a required source field that was absent.
// It unwraps to ErrMissingRequiredField.
type ValidationError struct {
	Entity EntityType
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("integration: missing required field %s on %s", e.Field, e.Entity)
}

func (e *ValidationError) Unwrap() error {
	return ErrMissingRequiredField
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
