package api

import (
	"encoding/json"
	"net/http"

	"github.com/machineid-io/machineid-core/internal/requestid"
)

// Error represents a structured error response.
type Error struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	// Retryable marks infrastructure failures the caller should retry
	// with backoff. Never set on authentication errors or denials.
	Retryable bool `json:"retryable,omitempty"`
}

// Common error codes. These are part of the API contract; clients
// branch on them.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeMissingOrgKey  = "missing_org_key"
	ErrCodeInvalidOrgKey  = "invalid_org_key"
	ErrCodeOrgSuspended   = "org_suspended"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeDeviceNotFound = "device_not_found"
	ErrCodeOrgNotFound    = "org_not_found"
	ErrCodeValidation     = "validation_error"
	ErrCodeRateLimited    = "rate_limited"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeInternal       = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response carrying the request
// identifier.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestid.FromContext(r.Context()),
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

// writeUnauthorized writes a 401 error response with the given code.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, code, message string) {
	writeError(w, r, http.StatusUnauthorized, code, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, r *http.Request, message string) {
	writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response marked retryable. All
// store and infrastructure failures surface through here so callers
// can never mistake an outage for a denial.
func writeUnavailable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusServiceUnavailable, Error{
		Status:    http.StatusServiceUnavailable,
		Code:      ErrCodeUnavailable,
		Message:   "service temporarily unavailable, retry with backoff",
		RequestID: requestid.FromContext(r.Context()),
		Retryable: true,
	})
}
