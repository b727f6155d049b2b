package mqtt

import "errors"

// Sentinel errors for broker operations. Callers match them with
// errors.Is; connect and publish failures wrap these with detail.
var (
	// ErrNotConnected means the broker link is down right now. The
	// background reconnect loop may restore it; callers decide
	// whether to drop or retry.
	ErrNotConnected = errors.New("mqtt: not connected to broker")

	// ErrConnectionFailed means the initial connect never completed.
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	// ErrPublishFailed covers broker rejections, oversized payloads
	// and acknowledgment timeouts.
	ErrPublishFailed = errors.New("mqtt: publish did not complete")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: QoS must be 0, 1 or 2")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
