package org

import "errors"

// Domain errors for the org package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, org.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when no organisation matches the lookup.
	// Lookups by key hash return it for unknown keys, so callers
	// cannot distinguish a wrong key from a missing organisation.
	ErrNotFound = errors.New("org: not found")

	// ErrInvalidName is returned when an organisation name is empty
	// or too long.
	ErrInvalidName = errors.New("org: invalid name")

	// ErrInvalidLimit is returned when a device limit is below -1.
	ErrInvalidLimit = errors.New("org: invalid device limit")

	// ErrInvalidStatus is returned when a status value is not
	// recognised.
	ErrInvalidStatus = errors.New("org: invalid status")
)
