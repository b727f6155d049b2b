package mqtt

import "fmt"

// DefaultTopicPrefix is used when the configuration leaves the topic
// prefix empty. Running two gates against one broker requires distinct
// prefixes.
const DefaultTopicPrefix = "machineid"

// Topics builds MachineID topic names. Using these helpers keeps topic
// naming consistent between the publisher and downstream consumers.
//
//	topics := mqtt.Topics{Prefix: "machineid"}
//	topic := topics.Decision("org-7f3a2b1c", "register")
//	// Returns: "machineid/decisions/org-7f3a2b1c/register"
type Topics struct {
	// Prefix overrides DefaultTopicPrefix when non-empty.
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// Decision returns the topic for one organisation's verdicts of a
// given operation (register, validate, revoke).
//
// Example: machineid/decisions/org-7f3a2b1c/register
func (t Topics) Decision(orgID, op string) string {
	return fmt.Sprintf("%s/decisions/%s/%s", t.prefix(), orgID, op)
}

// SystemStatus returns the gate's status topic, carrying retained
// online/offline messages and the LWT.
//
// Example: machineid/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// OrgDecisions returns a pattern matching every verdict for one
// organisation, for downstream subscribers.
//
// Pattern: machineid/decisions/org-7f3a2b1c/+
func (t Topics) OrgDecisions(orgID string) string {
	return fmt.Sprintf("%s/decisions/%s/+", t.prefix(), orgID)
}

// AllDecisions returns a pattern matching every verdict the gate
// publishes, for downstream subscribers.
//
// Pattern: machineid/decisions/#
func (t Topics) AllDecisions() string {
	return fmt.Sprintf("%s/decisions/#", t.prefix())
}
