// Package admission implements the decision core of the gate: given
// an authenticated organisation and a device identifier, decide
// whether the device may register or operate, and record the verdict.
//
// Register applies the organisation's device limit atomically through
// the device store. Validate is the hard gate consulted on every
// agent run; it answers from current state and never mutates quota.
// Revoke parks a device, freeing its slot immediately.
//
// Business denials (limit_reached, not_registered, revoked) are
// results, not errors. Errors from this package mean the question
// could not be answered at all, and callers surface them as
// retryable infrastructure failures.
//
// Every verdict fans out to the configured DecisionRecorders (the
// decision log, and optionally MQTT and InfluxDB). Recorder failures
// are logged and never affect the verdict.
package admission
