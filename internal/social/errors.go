package social

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"staffhub/internal/models"
)

// ServiceError represents errors from the social service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	// RetryAfter is set for throttling errors.
	RetryAfter time.Duration
	Details    map[string]string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Response converts the error into the wire format.
func (e *ServiceError) Response() *models.ErrorResponse {
	resp := models.NewErrorResponse(e.Message, e.Code).WithDetails(e.Details)
	if e.RetryAfter > 0 {
		resp.WithRetryAfter(e.RetryAfter)
	}
	return resp
}

// AsServiceError unwraps err into a ServiceError, classifying anything else as
// an internal error.
func AsServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return NewInternalError("internal server error", err)
}

// Error constructors for common service errors

func NewValidationError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    models.FieldErrors(err),
		Err:        err,
	}
}

// NewRequiredFieldError reports a field that is empty once sanitized.
func NewRequiredFieldError(field string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    fmt.Sprintf("%s is required", field),
		StatusCode: http.StatusBadRequest,
		Details:    map[string]string{field: "required"},
	}
}

func NewPayloadTooLargeError(field string, limit int) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodePayloadTooLarge,
		Message:    fmt.Sprintf("%s too large", field),
		StatusCode: http.StatusRequestEntityTooLarge,
		Details:    map[string]string{field: fmt.Sprintf("max_bytes=%d", limit)},
	}
}

// NewBadRequestError rejects a well-formed request the caller may not make,
// such as an admin removing their own account.
func NewBadRequestError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewUnauthorizedError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewInvalidTokenError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUnauthorized,
		Message:    "invalid or expired token",
		StatusCode: http.StatusUnauthorized,
		Err:        err,
	}
}

func NewForbiddenError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewAccountLockedError is returned for every login attempt on a locked
// identity, whether or not the password is correct.
func NewAccountLockedError(retryAfter time.Duration) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeAccountLocked,
		Message:    "Account temporarily locked due to too many failed login attempts. Please try again later.",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

func NewTargetNotFoundError(targetType models.TargetType, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeTargetNotFound,
		Message:    fmt.Sprintf("%s not found", targetType),
		StatusCode: http.StatusNotFound,
		Err:        err,
	}
}

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewConflictError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
		Err:        err,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
