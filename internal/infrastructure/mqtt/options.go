package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/machineid-io/machineid-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial CONNECT/CONNACK exchange.
	connectTimeout = 10 * time.Second

	// publishTimeout bounds waiting on a publish token.
	publishTimeout = 5 * time.Second

	// disconnectQuiesceMs is handed to paho's Disconnect, which takes
	// milliseconds rather than a Duration.
	disconnectQuiesceMs = 1000

	// keepAliveInterval drives PINGREQ traffic so half-open
	// connections get noticed.
	keepAliveInterval = 60 * time.Second

	// maxQoS is the highest QoS level MQTT defines.
	maxQoS = 2
)

// clientOptions translates broker settings into paho options,
// including the Last Will on the status topic.
//
// The will is retained at QoS 1: if the gate dies without a graceful
// Close, the broker itself flips the status topic to offline and
// every watcher, present or future, sees it.
func clientOptions(cfg config.MQTTConfig, statusTopic string) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAliveInterval)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetWill(statusTopic, statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect"), 1, true)

	return opts
}

// statusPayload renders a message for the system status topic. The
// reason field is omitted when empty, which is the online case.
func statusPayload(clientID, status, reason string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`, status, clientID, ts)
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`, status, clientID, reason, ts)
}
