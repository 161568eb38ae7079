package response

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/diagnosis/campus-tickets/internal/domain"
	"github.com/diagnosis/campus-tickets/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// Common error codes
const (
	CodeInvalidInput  = "INVALID_INPUT"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeInternalError = "INTERNAL_ERROR"
	CodeEmailExists   = "EMAIL_EXISTS"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotAuthenticated:
		return http.StatusUnauthorized
	case domain.KindNotAuthorized:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindIssuanceFailed, domain.KindFetchFailed, domain.KindDeliveryFailed, domain.KindPaymentFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes err as {error, code}. Unclassified errors are logged and
// reported as a generic internal error.
func FromError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	if status >= 500 {
		logger.ErrorContext(ctx, "request failed", "kind", kind, "error", err)
	}
	WriteError(w, status, domain.MessageOf(err), string(kind))
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
