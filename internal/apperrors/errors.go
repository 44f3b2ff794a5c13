// Package apperrors defines the machine-readable error codes returned by the
// credit engine and mapped to HTTP responses by the gateway.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors of the engine. Use WithError or WithDetails to attach
// context; errors.Is still matches the sentinel.
var (
	ErrTypeMismatch         = NewAppError("TYPE_MISMATCH", "personal customers cannot hold business credits", http.StatusUnprocessableEntity)
	ErrHasOverdueDebt       = NewAppError("HAS_OVERDUE_DEBT", "customer has overdue credits", http.StatusUnprocessableEntity)
	ErrPersonalLimitReached = NewAppError("PERSONAL_LIMIT_REACHED", "customer already has an active personal credit", http.StatusUnprocessableEntity)
	ErrBusinessLimitReached = NewAppError("BUSINESS_LIMIT_REACHED", "customer reached the maximum of active business credits", http.StatusUnprocessableEntity)
	ErrExceedsBalance       = NewAppError("EXCEEDS_BALANCE", "payment amount exceeds outstanding balance", http.StatusUnprocessableEntity)
	ErrInvalidAmount        = NewAppError("INVALID_AMOUNT", "amount must be positive with at most 4 decimal places", http.StatusBadRequest)
	ErrInvalidType          = NewAppError("INVALID_TYPE", "unknown customer or credit type", http.StatusBadRequest)
	ErrInvalidTerm          = NewAppError("INVALID_TERM", "term must be positive and longer than the current term", http.StatusBadRequest)
	ErrCreditClosed         = NewAppError("CREDIT_CLOSED", "credit is already paid", http.StatusUnprocessableEntity)
	ErrNotFound             = NewAppError("NOT_FOUND", "credit not found", http.StatusNotFound)
	ErrConflict             = NewAppError("CONFLICT", "concurrent update, retry later", http.StatusConflict).retryable()
	ErrStoreUnavailable     = NewAppError("STORE_UNAVAILABLE", "record store unavailable", http.StatusServiceUnavailable).retryable()
	ErrRateUnavailable      = NewAppError("RATE_UNAVAILABLE", "key rate service unavailable", http.StatusServiceUnavailable).retryable()
	ErrBadRequest           = NewAppError("BAD_REQUEST", "malformed request", http.StatusBadRequest)
	ErrInternal             = NewAppError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

// AppError is an error with a stable code, a client-facing message and the
// HTTP status it maps to. Retryable marks transient failures.
type AppError struct {
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Details    map[string]interface{}
	Err        error
}

// Error formats the code, message and wrapped cause.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so clones produced by
// WithError and WithDetails still satisfy errors.Is against the sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of e carrying details for the response body.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	clone := e.clone()
	clone.Details = make(map[string]interface{}, len(details))
	for k, v := range details {
		clone.Details[k] = v
	}
	return clone
}

// WithError returns a copy of e wrapping err.
func (e *AppError) WithError(err error) *AppError {
	clone := e.clone()
	clone.Err = err
	return clone
}

// NewAppError creates a non-retryable AppError.
func NewAppError(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    make(map[string]interface{}),
	}
}

func (e *AppError) retryable() *AppError {
	e.Retryable = true
	return e
}

func (e *AppError) clone() *AppError {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details))
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	return &clone
}

// AsAppError finds the first AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts any error into an AppError, defaulting to ErrInternal.
func FromError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return ErrInternal.WithError(err)
}

// IsAny reports whether err matches any of targets.
func IsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// CodeOf returns the error code of err, or the empty string for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return FromError(err).Code
}

// ParseValidationErrors turns validator failures into a BAD_REQUEST listing
// each offending field.
func ParseValidationErrors(err error) *AppError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return ErrBadRequest.WithError(err)
	}

	fieldErrors := make([]map[string]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fieldErrors = append(fieldErrors, map[string]string{
			"field":   fe.Field(),
			"message": translateValidationError(fe),
		})
	}
	return ErrBadRequest.WithDetails(map[string]interface{}{"fields": fieldErrors})
}

func translateValidationError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("validation '%s' failed for %s", fe.Tag(), field)
	}
}
