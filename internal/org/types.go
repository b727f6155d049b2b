package org

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/machineid-io/machineid-core/internal/quota"
)

// maxNameLength is the maximum allowed organisation name length.
const maxNameLength = 128

// keyBytes is the number of random bytes in a generated API key.
const keyBytes = 16

// KeyPrefix marks MachineID organisation keys. The prefix lets the
// API reject obviously malformed credentials without a database
// round-trip, and makes leaked keys easy to grep for.
const KeyPrefix = "org_"

// Status represents an organisation's lifecycle state.
type Status string

const (
	// StatusActive organisations may register and validate devices.
	StatusActive Status = "active"

	// StatusSuspended organisations are locked out of the protocol
	// entirely. Their device records are kept but unreachable until
	// the organisation is reactivated.
	StatusSuspended Status = "suspended"
)

// IsValidStatus returns true if the status is a recognised value.
func IsValidStatus(s Status) bool {
	return s == StatusActive || s == StatusSuspended
}

// Organization represents a tenant of the admission gate.
type Organization struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Plan        quota.Plan  `json:"plan"`
	DeviceLimit quota.Limit `json:"device_limit"`
	KeyHash     string      `json:"-"` // never serialised
	Status      Status      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// IsActive reports whether the organisation may use the protocol.
func (o *Organization) IsActive() bool {
	return o.Status == StatusActive
}

// Validate checks the organisation's fields before persistence.
//
// Returns:
//   - error: The first validation failure, or nil if valid
func (o *Organization) Validate() error {
	if o.Name == "" || len(o.Name) > maxNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidName, o.Name)
	}
	if !o.Plan.Valid() {
		return fmt.Errorf("%w: %q", quota.ErrUnknownPlan, o.Plan)
	}
	if !o.DeviceLimit.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLimit, o.DeviceLimit)
	}
	if !IsValidStatus(o.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status)
	}
	return nil
}

// GenerateKey returns a new raw API key. The key is high-entropy
// random and looked up by digest, so it is its own secret; there is
// no separate identifier to pair it with.
//
// Returns:
//   - string: Raw key in the form org_<32 hex chars>
//   - error: If the system entropy source fails
func GenerateKey() (string, error) {
	b := make([]byte, keyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating org key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// HashKey computes the SHA-256 hash of a raw key string for storage.
// Raw keys are never stored, only their hashes.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
