package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// Forbidden is reported as not_found so existence of foreign records never leaks.
// ══════════════════════════════════════════════════════════════════════════════

// Error codes carried in APIError.Code.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnauthorized   = "unauthorized"
	CodeNotFound       = "not_found"
	CodeConflict       = "conflict"
	CodeInvalidState   = "invalid_state"
	CodeRateLimited    = "rate_limit_exceeded"
	CodeUnavailable    = "service_unavailable"
	CodeTimeout        = "timeout"
	CodeInternal       = "internal_server_error"
)

// classify maps an error to an HTTP status, a code and a client-safe message.
func classify(err error) (int, string, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, CodeInvalidRequest, reqErr.message
	}

	switch {
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized, CodeUnauthorized, "authentication required"
	case shared.IsForbidden(err), shared.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound, "resource not found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, CodeInvalidRequest, domainMessage(err)
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, CodeConflict, domainMessage(err)
	case shared.IsInvalidState(err):
		return http.StatusConflict, CodeInvalidState, domainMessage(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, shared.ErrTimeout):
		return http.StatusServiceUnavailable, CodeTimeout, "the operation timed out"
	case shared.IsStorage(err), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, CodeUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, CodeInternal, "an unexpected error occurred"
	}
}

// domainMessage returns the outermost DomainError message, never wrapped driver text.
func domainMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return "request cannot be processed"
}
