package mqtt

import "fmt"

// maxPayloadSize caps outbound messages at 1MB, matching common
// broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for acknowledgment.
//
// QoS may be 0 (fire and forget), 1 (at least once) or 2 (exactly
// once). Retained should be true only for the status topic; decision
// events stay transient because the decisions table is the durable
// record.
//
// Returns ErrInvalidTopic, ErrInvalidQoS or ErrNotConnected for
// rejected input, or an ErrPublishFailed wrap when the broker errors
// or the token times out.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload exceeds %d byte cap", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: no acknowledgment within %v", ErrPublishFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishDecision publishes one admission verdict to the per-org
// decision topic at the configured QoS, never retained.
func (c *Client) PublishDecision(orgID, op string, payload []byte) error {
	return c.Publish(c.topics.Decision(orgID, op), payload, c.qos, false)
}
