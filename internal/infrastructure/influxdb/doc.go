// Package influxdb turns admission verdicts into time-series points.
//
// Two measurements are written: admission_decision, one point per
// verdict tagged by organisation, operation and outcome; and
// fleet_size, a gauge of active devices against the limit, refreshed
// whenever a register or revoke changes the count. A gate validating
// on every agent run generates steady point volume, so writes are
// batched and non-blocking; errors surface through a callback, never
// on the request path.
//
// The decisions table in SQLite is the durable audit record. This
// package exists for dashboards, and the gate runs fine without it:
// the integration is off unless the influxdb config section enables
// it.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDecision("org-7f3a2b1c", "validate", "ok", true)
//
// All methods are safe for concurrent use.
package influxdb
