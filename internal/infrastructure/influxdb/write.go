package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDecision records one admission verdict as a point. Tags carry
// the dimensions dashboards group by; the allowed field makes pass
// rates a simple mean over a window. Non-blocking; dropped when the
// client is closed.
//
// Parameters:
//   - orgID: Organisation the verdict belongs to
//   - op: The operation (register, validate, revoke)
//   - outcome: The verdict (ok, exists, restored, limit_reached, ...)
//   - allowed: Whether the device may operate
func (c *Client) WriteDecision(orgID, op, outcome string, allowed bool) {
	if !c.IsConnected() {
		return
	}

	allowedField := 0
	if allowed {
		allowedField = 1
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"admission_decision",
		map[string]string{
			"org_id":  orgID,
			"op":      op,
			"outcome": outcome,
		},
		map[string]any{
			"allowed": allowedField,
			"count":   1,
		},
		time.Now(),
	))
}

// WriteFleetGauge records an organisation's fleet size after a
// register or revoke changed it, for plotting active count against
// the limit over time.
//
// Parameters:
//   - orgID: Organisation identifier
//   - active: Active device count after the change
//   - limit: The organisation's device limit (-1 for unlimited)
func (c *Client) WriteFleetGauge(orgID string, active int, limit int64) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"fleet_size",
		map[string]string{"org_id": orgID},
		map[string]any{
			"active": active,
			"limit":  limit,
		},
		time.Now(),
	))
}
