package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/machineid-io/machineid-core/internal/device"
	"github.com/machineid-io/machineid-core/internal/requestid"
)

// ============================================================================
// Admission Endpoints
// ============================================================================
//
// These two handlers are the product. Everything else in this package
// exists so they can answer quickly and truthfully. Denials are 200
// responses with the verdict in the body; HTTP status codes are
// reserved for "could not answer" (bad request, auth, infrastructure).

// admissionRequest is the body both admission endpoints accept.
// The key is camelCase; agents across several SDKs already send it
// this way.
type admissionRequest struct {
	DeviceID string `json:"deviceId"`
}

// registerResponse is the wire shape of a register verdict.
type registerResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
}

// validateResponse is the wire shape of a validate verdict.
type validateResponse struct {
	Allowed   bool   `json:"allowed"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

// decodeAdmissionRequest parses the request body shared by register
// and validate. Returns false after writing the error response.
func decodeAdmissionRequest(w http.ResponseWriter, r *http.Request) (admissionRequest, bool) {
	var req admissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return req, false
	}
	if req.DeviceID == "" {
		writeBadRequest(w, r, "deviceId is required")
		return req, false
	}
	return req, true
}

// handleRegister admits a device into the organisation's fleet.
//
// The outcome is always a 200 with one of ok, exists, restored or
// limit_reached; agents gate their own startup on it. Identifier
// validation failures are the caller's mistake (400); a store that
// cannot answer is ours (503, retryable).
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o := orgFromContext(ctx)

	req, ok := decodeAdmissionRequest(w, r)
	if !ok {
		return
	}

	res, err := s.admission.Register(ctx, o, req.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrInvalidDeviceID) {
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("register failed",
			"org_id", o.ID,
			"device_id", req.DeviceID,
			"error", err,
		)
		writeUnavailable(w, r)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Status:    string(res.Outcome),
		RequestID: requestid.FromContext(ctx),
	})
}

// handleValidate answers whether a device may operate right now.
//
// allowed=false is a final verdict, not an error: the record is
// absent or revoked, and the caller must stop. 503 means we could not
// read state and the caller should retry.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o := orgFromContext(ctx)

	req, ok := decodeAdmissionRequest(w, r)
	if !ok {
		return
	}

	res, err := s.admission.Validate(ctx, o, req.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrInvalidDeviceID) {
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("validate failed",
			"org_id", o.ID,
			"device_id", req.DeviceID,
			"error", err,
		)
		writeUnavailable(w, r)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Allowed:   res.Allowed,
		Code:      string(res.Outcome),
		RequestID: requestid.FromContext(ctx),
	})
}
