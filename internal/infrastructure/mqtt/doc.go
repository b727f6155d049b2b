// Package mqtt publishes MachineID decision events to an MQTT broker.
//
// Every admission verdict goes out on a per-organisation topic so
// fleet dashboards, alerting pipelines and SIEM collectors can follow
// quota pressure and revocations without polling the API:
//
//	MachineID Core → MQTT Broker → dashboards, alerting, SIEM
//
// The client is publish-only. Nothing in the gate consumes broker
// traffic, so there is no subscription machinery to restore on
// reconnect; the paho auto-reconnect loop plus a retained status
// topic with a Last Will covers presence.
//
// # Security Considerations
//
// Production deployments should set cfg.Broker.TLS and real broker
// credentials; anonymous plaintext is for local development only.
// Decision payloads carry organisation and device identifiers, never
// org keys.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := client.Topics().Decision("org-7f3a2b1c", "register")
//	client.Publish(topic, payload, 1, false)
package mqtt
