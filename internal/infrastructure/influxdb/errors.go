package influxdb

import "errors"

// Sentinel errors for the decision metrics client, checkable with
// errors.Is().
var (
	// ErrNotConnected indicates the client has been closed or never
	// connected; decision points cannot be written.
	ErrNotConnected = errors.New("influxdb: client not connected")

	// ErrConnectionFailed indicates the initial connection attempt
	// failed. Write errors after a successful connect are reported
	// asynchronously through the error callback instead.
	ErrConnectionFailed = errors.New("influxdb: connect failed")

	// ErrDisabled indicates the integration is switched off in config.
	ErrDisabled = errors.New("influxdb: integration disabled")
)
