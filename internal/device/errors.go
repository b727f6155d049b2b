package device

import "errors"

// Sentinel errors for device lookups, matched with errors.Is:
//
//	if errors.Is(err, device.ErrNotRegistered) {
//	    // unknown device
//	}
//
// Anything else returned by the repository is an infrastructure
// failure and must be treated as retryable, never as a denial.
var (
	// ErrNotRegistered is returned when a device identity has never
	// been registered for the organisation.
	ErrNotRegistered = errors.New("device: not registered")

	// ErrInvalidDeviceID is returned when a device identifier fails
	// validation.
	ErrInvalidDeviceID = errors.New("device: invalid device id")
)
