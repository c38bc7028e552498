// Package errors classifies risk engine failures so that transports can map
// them to status codes and callers can tell retryable conditions apart.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeUnsupportedFormat ErrorType = "unsupported_format"
	ErrorTypeExternal          ErrorType = "external"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeModelUnavailable  ErrorType = "model_unavailable"
	ErrorTypeMalformedResult   ErrorType = "malformed_result"
	ErrorTypeInternal          ErrorType = "internal"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeUnauthorized      ErrorType = "unauthorized"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeFraud             ErrorType = "fraud"
)

type classification struct {
	status    int
	retryable bool
}

var classes = map[ErrorType]classification{
	ErrorTypeValidation:        {http.StatusBadRequest, false},
	ErrorTypeUnsupportedFormat: {http.StatusUnsupportedMediaType, false},
	ErrorTypeExternal:          {http.StatusBadGateway, true},
	ErrorTypeTimeout:           {http.StatusGatewayTimeout, true},
	ErrorTypeModelUnavailable:  {http.StatusServiceUnavailable, true},
	ErrorTypeMalformedResult:   {http.StatusBadGateway, false},
	ErrorTypeInternal:          {http.StatusInternalServerError, true},
	ErrorTypeNotFound:          {http.StatusNotFound, false},
	ErrorTypeUnauthorized:      {http.StatusUnauthorized, false},
	ErrorTypeRateLimit:         {http.StatusTooManyRequests, true},
	ErrorTypeFraud:             {http.StatusForbidden, false},
}

// AppError is the error shape every layer returns for classified failures
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func newAppError(t ErrorType, code, message string, details map[string]interface{}) *AppError {
	c := classes[t]
	return &AppError{
		Type:       t,
		Code:       code,
		Message:    message,
		Details:    details,
		Retryable:  c.retryable,
		StatusCode: c.status,
	}
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is compares type and code, so package-level sentinels match fresh
// instances of the same error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// WithDetails merges details into the error and returns it
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func NewValidationError(code, message string) *AppError {
	return newAppError(ErrorTypeValidation, code, message, nil)
}

// NewUnsupportedFormatError reports media that cannot be normalized or decoded.
func NewUnsupportedFormatError(format, message string) *AppError {
	return newAppError(ErrorTypeUnsupportedFormat, "UNSUPPORTED_FORMAT", message,
		map[string]interface{}{"format": format})
}

func NewExternalError(service, message string) *AppError {
	return newAppError(ErrorTypeExternal, "EXTERNAL_SERVICE_ERROR",
		fmt.Sprintf("%s service error: %s", service, message),
		map[string]interface{}{"service": service})
}

// NewTimeoutError reports a collaborator job that outlived its bounded
// wait without the provider reporting a failure.
func NewTimeoutError(operation string, after time.Duration) *AppError {
	return newAppError(ErrorTypeTimeout, "TIMEOUT",
		fmt.Sprintf("%s did not complete within %s", operation, after),
		map[string]interface{}{"operation": operation, "max_wait": after.String()})
}

func NewModelUnavailableError() *AppError {
	return newAppError(ErrorTypeModelUnavailable, "MODEL_UNAVAILABLE", "model unavailable", nil)
}

// NewMalformedResultError reports a collaborator response missing expected structure.
func NewMalformedResultError(service, message string) *AppError {
	return newAppError(ErrorTypeMalformedResult, "MALFORMED_RESULT",
		fmt.Sprintf("%s returned a malformed result: %s", service, message),
		map[string]interface{}{"service": service})
}

func NewNotFoundError(resource string) *AppError {
	return newAppError(ErrorTypeNotFound, "RESOURCE_NOT_FOUND", resource+" not found", nil)
}

func NewUnauthorizedError(message string) *AppError {
	return newAppError(ErrorTypeUnauthorized, "UNAUTHORIZED", message, nil)
}

func NewInternalError(message string) *AppError {
	return newAppError(ErrorTypeInternal, "INTERNAL_ERROR", message, nil)
}

func NewRateLimitError(message string) *AppError {
	return newAppError(ErrorTypeRateLimit, "RATE_LIMIT_EXCEEDED", message, nil)
}

// NewFraudError rejects a request outright, e.g. a deepfake during onboarding.
func NewFraudError(reason, message string) *AppError {
	return newAppError(ErrorTypeFraud, "FRAUD_DETECTED", message,
		map[string]interface{}{"fraud_reason": reason})
}

var (
	ErrMissingVideo     = NewValidationError("MISSING_VIDEO", "video file is required")
	ErrMissingIDCard    = NewValidationError("MISSING_ID_CARD", "id_card image is required")
	ErrEmptyBatch       = NewValidationError("EMPTY_BATCH", "at least one transaction is required")
	ErrModelUnavailable = NewModelUnavailableError()
	ErrSessionNotFound  = NewNotFoundError("liveness session")
)

// Wrap prefixes err with message; a nil err stays nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsType(err error, errorType ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == errorType
}

func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.Retryable
}

// GetStatusCode maps err to an HTTP status; unclassified errors are 500.
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetCode extracts the error code, defaulting to INTERNAL_ERROR.
func GetCode(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}
