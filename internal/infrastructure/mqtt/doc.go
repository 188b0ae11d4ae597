// Package mqtt provides the MQTT client the Starlink bridge publishes through.
//
// The broker is the bridge's monitoring bus: every attribute of the
// published dish is a retained topic, writable attributes accept writes on a
// "/set" sub-topic, and persisted settings are mirrored under
// <prefix>/settings. See Topics for the full hierarchy.
//
// This package manages:
//   - Connection with auto-reconnect and subscription restore
//   - Last Will and Testament (LWT) for offline detection
//   - Publishing with QoS and retained flags
//   - The {"value": ...} payload convention
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	payload, _ := mqtt.EncodeValue(47.6)
//	client.Publish(topics.Attribute(service, "/Position/Latitude"), payload, client.QoS(), true)
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on localhost
//   - Pass credentials via STARLINK_MQTT_AUTH_PASSWORD rather than the file
package mqtt
