package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	domainErrors "github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/telemetry"
)

// ErrorEnvelope is the body of every non-2xx response
type ErrorEnvelope struct {
	Success bool          `json:"success"`
	Error   ErrorResponse `json:"error"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

// ValidationError reports a request the handler rejected before calling the service
type ValidationError struct {
	Message string
	Fields  map[string][]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrorHandler maps errors to HTTP responses. Internal causes are logged,
// never written to the client.
type ErrorHandler struct {
	logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{logger: logger}
}

// Resolve returns the status and error body for err
func (h *ErrorHandler) Resolve(err error) (int, ErrorResponse) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		resp := ErrorResponse{Code: "VALIDATION_ERROR", Message: validationErr.Message}
		if len(validationErr.Fields) > 0 {
			resp.Details = map[string]interface{}{"fields": validationErr.Fields}
		}
		return http.StatusBadRequest, resp
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge, ErrorResponse{
			Code:    "PAYLOAD_TOO_LARGE",
			Message: fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit),
		}
	}

	if appErr, ok := domainErrors.As(err); ok {
		status := appErr.StatusCode
		if status == 0 {
			status = http.StatusInternalServerError
		}
		resp := ErrorResponse{Code: appErr.Code, Message: appErr.Message}
		if len(appErr.Details) > 0 {
			resp.Details = appErr.Details
		}
		if status >= 500 && appErr.Type == domainErrors.ErrorTypeInternal {
			// internal messages may name files or queries
			resp.Message = "An internal error occurred"
			resp.Details = nil
		}
		return status, resp
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{Code: "REQUEST_TIMEOUT", Message: "Request timed out"}
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout, ErrorResponse{Code: "REQUEST_CANCELED", Message: "Request was canceled"}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_JSON",
			Message: "Invalid JSON syntax",
			Details: map[string]interface{}{"offset": syntaxErr.Offset},
		}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return http.StatusBadRequest, ErrorResponse{
			Code:    "TYPE_MISMATCH",
			Message: fmt.Sprintf("Invalid type for field '%s'", typeErr.Field),
		}
	}

	return http.StatusInternalServerError, ErrorResponse{Code: "INTERNAL_ERROR", Message: "An internal error occurred"}
}

// HandleError writes the error envelope for err
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := h.Resolve(err)
	resp.TraceID = telemetry.TraceID(r.Context())

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"code", resp.Code,
		"request_id", RequestIDFromContext(r.Context()),
		"error", err,
	}
	if status >= 500 {
		h.logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		h.logger.InfoContext(r.Context(), "request rejected", attrs...)
	}

	if domainErrors.IsRetryable(err) || status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(status)))
	}
	writeJSON(w, status, ErrorEnvelope{Success: false, Error: resp})
}

func retryAfterSeconds(status int) int {
	if status == http.StatusTooManyRequests {
		return 60
	}
	return 5
}

// writeJSON writes v with the given status
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", "error", err)
	}
}
