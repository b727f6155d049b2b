// Package org manages organisations, the tenants of the admission
// gate.
//
// Every device record and every admission decision belongs to exactly
// one organisation. An organisation carries a plan tier, a device
// limit, and a single API key; callers authenticate by presenting the
// raw key in the x-org-key header, and the gate looks the
// organisation up by the key's SHA-256 digest. Raw keys are shown
// once at creation or rotation and never stored.
//
// Organisations are provisioned through the admin surface (or seeded
// on first boot), never through the device-facing protocol.
package org
