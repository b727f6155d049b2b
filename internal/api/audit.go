package api

import (
	"net/http"
	"strconv"

	"github.com/machineid-io/machineid-core/internal/audit"
)

// handleListDecisions returns the organisation's decision history,
// most recent first.
//
// Query parameters:
//   - op: filter by operation (register, validate, revoke)
//   - device_id: filter by device identifier
//   - limit: page size (default 50, max 200)
//   - offset: page start
func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o := orgFromContext(ctx)

	filter := audit.Filter{
		Op:       r.URL.Query().Get("op"),
		DeviceID: r.URL.Query().Get("device_id"),
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, r, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, r, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.decisions.List(ctx, o.ID, filter)
	if err != nil {
		s.logger.Error("failed to list decisions", "org_id", o.ID, "error", err)
		writeUnavailable(w, r)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
