package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeProcessing   ErrorType = "processing"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"

	// Capture pipeline errors
	ErrorTypePermissionDenied  ErrorType = "permission_denied"
	ErrorTypeDecode            ErrorType = "decode"
	ErrorTypeInvalidSlot       ErrorType = "invalid_slot"
	ErrorTypeIncompleteSession ErrorType = "incomplete_session"
	ErrorTypeNoSourceImage     ErrorType = "no_source_image"
	ErrorTypeInvalidTransition ErrorType = "invalid_transition"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// UserFacing reports whether the error should be shown next to the control that caused it.
// Contract violations (invalid slot, incomplete session, missing source) are not.
func (e *AppError) UserFacing() bool {
	switch e.Type {
	case ErrorTypePermissionDenied, ErrorTypeDecode, ErrorTypeValidation:
		return true
	}
	return false
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewPermissionDeniedError is returned when camera access is refused.
// It is terminal for the camera path of the current slot.
func NewPermissionDeniedError(message string, cause error) *AppError {
	return newError(ErrorTypePermissionDenied, http.StatusForbidden, message, cause)
}

// NewDecodeError is returned when a picked file is not a renderable image.
func NewDecodeError(message string, cause error) *AppError {
	return newError(ErrorTypeDecode, http.StatusUnprocessableEntity, message, cause)
}

// NewInvalidSlotError reports an advance on a slot the session does not expect.
func NewInvalidSlotError(slot string) *AppError {
	e := newError(ErrorTypeInvalidSlot, http.StatusConflict, "slot is not open for capture", nil)
	e.Details = slot
	return e
}

// NewIncompleteSessionError reports a completion attempt with empty slots.
func NewIncompleteSessionError(missing []string) *AppError {
	e := newError(ErrorTypeIncompleteSession, http.StatusConflict, "capture session has empty slots", nil)
	e.Details = fmt.Sprintf("%v", missing)
	return e
}

// NewNoSourceImageError reports a crop confirm with nothing loaded.
func NewNoSourceImageError() *AppError {
	return newError(ErrorTypeNoSourceImage, http.StatusConflict, "no source image loaded", nil)
}

// NewInvalidTransitionError reports an operation that is not valid in the current step.
func NewInvalidTransitionError(op, state string) *AppError {
	e := newError(ErrorTypeInvalidTransition, http.StatusConflict, "operation not allowed in current step", nil)
	e.Details = fmt.Sprintf("%s in %s", op, state)
	return e
}

// IsType checks if the error (or anything it wraps) is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
