package api

import (
	"net/http"

	"github.com/machineid-io/machineid-core/internal/quota"
)

// orgUsage is the organisation self-view: identity, plan, and how much
// of the device budget is spent.
type orgUsage struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Plan        string      `json:"plan"`
	Status      string      `json:"status"`
	DeviceLimit quota.Limit `json:"device_limit"`
	ActiveCount int         `json:"active_count"`
}

// handleGetOrg returns the authenticated organisation's usage summary.
// The key hash never leaves the database; this view is safe to show
// the organisation's own operators.
func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o := orgFromContext(ctx)

	active, err := s.devices.CountActive(ctx, o.ID)
	if err != nil {
		s.logger.Error("failed to count active devices", "org_id", o.ID, "error", err)
		writeUnavailable(w, r)
		return
	}

	writeJSON(w, http.StatusOK, orgUsage{
		ID:          o.ID,
		Name:        o.Name,
		Plan:        string(o.Plan),
		Status:      string(o.Status),
		DeviceLimit: o.DeviceLimit,
		ActiveCount: active,
	})
}
