package dto

import (
	"errors"
	"net/http"

	"github.com/erp/crmsync/internal/domain/integration"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal    = "ERR_INTERNAL"
	ErrCodeBadRequest  = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	ErrCodeValidation  = "ERR_VALIDATION"
	ErrCodeNotFound    = "ERR_NOT_FOUND"
	// ErrCodeRunInProgress is used when a sync run is already in flight
	ErrCodeRunInProgress = "ERR_RUN_IN_PROGRESS"
	// ErrCodeUnavailable is used when a dependency such as the run store is missing
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:      http.StatusInternalServerError,
	ErrCodeBadRequest:    http.StatusBadRequest,
	ErrCodeInvalidJSON:   http.StatusBadRequest,
	ErrCodeValidation:    http.StatusBadRequest,
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeRunInProgress: http.StatusConflict,
	ErrCodeUnavailable:   http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorCodeFor maps an application error to an error code
func ErrorCodeFor(err error) string {
	var validationErr *integration.ValidationError
	switch {
	case errors.Is(err, integration.ErrSyncRunNotFound):
		return ErrCodeNotFound
	case errors.Is(err, integration.ErrRunInProgress):
		return ErrCodeRunInProgress
	case errors.As(err, &validationErr):
		return ErrCodeValidation
	default:
		return ErrCodeInternal
	}
}
