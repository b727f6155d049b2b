package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/machineid-io/machineid-core/internal/infrastructure/config"
)

// Client is a publish-only wrapper around paho.mqtt.golang. It owns
// the broker link used for decision events: auto-reconnect, the
// retained status topic, and the Last Will that flips that topic to
// offline when the gate dies without saying goodbye.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	topics   Topics
	clientID string
	qos      byte

	mu           sync.RWMutex
	connected    bool
	onConnect    func()
	onDisconnect func(err error)
}

// Connect dials the broker and waits for the CONNACK.
//
// The returned client keeps itself connected: paho retries in the
// background with the configured backoff, and each successful
// (re)connect republishes the retained online status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	c := &Client{
		topics:   Topics{Prefix: cfg.TopicPrefix},
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS),
	}

	opts := clientOptions(cfg, c.topics.SystemStatus())
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no CONNACK within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The broker accepted the connection, but paho runs the connect
	// handler on its own goroutine and it may not have fired yet.
	// Mark connected here so callers can publish straight away.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// Topics returns the topic builder bound to this client's prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// connectionUp runs on every successful connect, including reconnects
// after a dropped broker link.
func (c *Client) connectionUp() {
	c.mu.Lock()
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()

	// Retained, so late subscribers see the current state and any LWT
	// offline message from an earlier crash is replaced.
	c.client.Publish(c.topics.SystemStatus(), c.qos, true, statusPayload(c.clientID, "online", ""))

	if cb != nil {
		cb()
	}
}

func (c *Client) connectionLost(err error) {
	c.mu.Lock()
	c.connected = false
	cb := c.onDisconnect
	c.mu.Unlock()

	if cb != nil {
		cb(err)
	}
}

// Close publishes a graceful offline status and disconnects. Closing
// a client that never connected is a no-op.
//
// The graceful payload carries reason "graceful_shutdown" so watchers
// can tell a clean stop from the broker-delivered Last Will.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.topics.SystemStatus(), c.qos, true,
			statusPayload(c.clientID, "offline", "graceful_shutdown"))
		token.WaitTimeout(publishTimeout)
	}

	// The quiesce window lets in-flight QoS 1 publishes finish their
	// handshake before the socket drops.
	c.client.Disconnect(disconnectQuiesceMs)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// HealthCheck reports whether the broker link is currently up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether messages can be published right now.
// Paho stays optimistic while its reconnect loop waits to retry, so
// the flag maintained by the lost-connection handler is consulted
// alongside paho's own state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a callback fired on connect and on every
// reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback fired when the broker link
// drops. The error describes why it was lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}
