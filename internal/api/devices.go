package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/machineid-io/machineid-core/internal/device"
)

// handleListDevices returns the organisation's device records, with
// optional query filters.
//
// Query parameters:
//   - state: filter by state (active, revoked)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o := orgFromContext(ctx)

	records, err := s.devices.List(ctx, o.ID)
	if err != nil {
		s.logger.Error("failed to list devices", "org_id", o.ID, "error", err)
		writeUnavailable(w, r)
		return
	}

	if state := r.URL.Query().Get("state"); state != "" {
		filtered := make([]device.Record, 0, len(records))
		for _, rec := range records {
			if string(rec.State) == state {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": records, "count": len(records)})
}

// handleRevokeDevice parks a device, freeing its quota slot
// immediately. Revoking an already revoked device is a no-op success.
func (s *Server) handleRevokeDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o := orgFromContext(ctx)
	deviceID := chi.URLParam(r, "deviceID")

	rec, err := s.admission.Revoke(ctx, o, deviceID)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrNotRegistered):
			writeError(w, r, http.StatusNotFound, ErrCodeDeviceNotFound, "device is not registered")
		case errors.Is(err, device.ErrInvalidDeviceID):
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("failed to revoke device",
				"org_id", o.ID,
				"device_id", deviceID,
				"error", err,
			)
			writeUnavailable(w, r)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"device": rec})
}
