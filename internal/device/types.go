package device

import (
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"
)

// maxDeviceIDLength is the maximum allowed device identifier length
// in runes.
const maxDeviceIDLength = 128

// State represents a device record's lifecycle state.
type State string

const (
	// StateActive devices count against the organisation's limit and
	// pass validation.
	StateActive State = "active"

	// StateRevoked devices keep their history but free their quota
	// slot and fail validation until re-registered.
	StateRevoked State = "revoked"
)

// Record is one device identity known to an organisation.
//
// Identifiers are caller-chosen and opaque; the store only guarantees
// uniqueness within the organisation. A Record exists from first
// registration onwards; revocation parks it, nothing deletes it.
type Record struct {
	OrgID             string     `json:"org_id"`
	DeviceID          string     `json:"device_id"`
	State             State      `json:"state"`
	FirstRegisteredAt time.Time  `json:"first_registered_at"`
	LastValidatedAt   *time.Time `json:"last_validated_at,omitempty"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

// IsActive reports whether the record currently holds a quota slot.
func (r *Record) IsActive() bool {
	return r.State == StateActive
}

// Transition describes what an Admit call did.
type Transition string

const (
	// TransitionCreated: the identity was unknown and has been
	// registered.
	TransitionCreated Transition = "created"

	// TransitionExists: the identity was already active; nothing
	// changed.
	TransitionExists Transition = "exists"

	// TransitionRestored: the identity was revoked and has been
	// re-admitted.
	TransitionRestored Transition = "restored"

	// TransitionDenied: admitting would exceed the organisation's
	// limit; nothing changed.
	TransitionDenied Transition = "denied"
)

// AdmitResult reports the outcome of an atomic admission attempt.
type AdmitResult struct {
	Transition Transition

	// Record is the device record after the transition. Nil when the
	// admission was denied.
	Record *Record

	// ActiveCount is the number of active devices for the
	// organisation after the transition.
	ActiveCount int
}

// ValidateDeviceID checks a caller-supplied identifier.
//
// Identifiers are opaque: the gate imposes no naming scheme, so ids
// like "crewai:agent-01" or a bare hostname are all acceptable. Only
// size and shape are enforced - non-empty, at most 128 runes, valid
// UTF-8, no control characters, no leading or trailing whitespace.
func ValidateDeviceID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDeviceID)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidDeviceID)
	}
	if utf8.RuneCountInString(id) > maxDeviceIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidDeviceID, maxDeviceIDLength)
	}

	runes := []rune(id)
	if unicode.IsSpace(runes[0]) || unicode.IsSpace(runes[len(runes)-1]) {
		return fmt.Errorf("%w: leading or trailing whitespace", ErrInvalidDeviceID)
	}

	for _, r := range runes {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidDeviceID)
		}
	}

	return nil
}
