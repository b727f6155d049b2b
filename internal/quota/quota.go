package quota

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownPlan is returned when a plan name does not match any
// known tier.
var ErrUnknownPlan = errors.New("quota: unknown plan")

// Limit is the maximum number of active devices an organisation may
// hold. Unlimited disables the cap entirely.
type Limit int64

// Unlimited admits any number of active devices.
const Unlimited Limit = -1

// Allows reports whether one more device may be admitted given the
// current number of active devices. The admission rule is strict:
// an organisation at its limit is full, and restoring a revoked
// record counts the same as admitting a new one.
func (l Limit) Allows(active int) bool {
	if l.IsUnlimited() {
		return true
	}
	return int64(active) < int64(l)
}

// IsUnlimited reports whether the limit disables the cap.
func (l Limit) IsUnlimited() bool {
	return l < 0
}

// Valid reports whether the limit is either Unlimited or a
// non-negative cap. Values below -1 are rejected so a stored limit
// is always one of the two meaningful shapes.
func (l Limit) Valid() bool {
	return l >= Unlimited
}

// String renders the limit for logs and API payloads.
func (l Limit) String() string {
	if l.IsUnlimited() {
		return "unlimited"
	}
	return strconv.FormatInt(int64(l), 10)
}

// Plan is a subscription tier. Tiers only choose the default limit at
// organisation creation; they carry no behaviour of their own.
type Plan string

// Known plan tiers.
const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// planLimits maps each tier to its default device limit.
var planLimits = map[Plan]Limit{
	PlanFree:       3,
	PlanStarter:    25,
	PlanPro:        250,
	PlanEnterprise: Unlimited,
}

// ParsePlan converts a wire or config string into a Plan.
//
// Returns:
//   - ErrUnknownPlan (wrapped with the offending value) when the
//     string names no known tier.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if _, ok := planLimits[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
	}
	return p, nil
}

// Valid reports whether the plan names a known tier.
func (p Plan) Valid() bool {
	_, ok := planLimits[p]
	return ok
}

// DefaultLimit returns the tier's default device limit. Unknown plans
// fall back to the free tier so a corrupted row degrades to the most
// restrictive policy rather than an open gate.
func (p Plan) DefaultLimit() Limit {
	if l, ok := planLimits[p]; ok {
		return l
	}
	return planLimits[PlanFree]
}
