// Package mqtt provides MQTT client connectivity for the Gree bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on greebridge/status
//
// # Architecture
//
// The bridge publishes Home Assistant climate topics and receives commands
// through the broker:
//
//	Air conditioners ↔ UDP ↔ Gree bridge ↔ MQTT Broker ↔ Home Assistant
//
// Topic layout lives with the bridge (gree.Topics); this package only
// owns the status topic. Its retained payload looks like
//
//	{"status":"online","bridge_id":"greebridge","version":"1.2.0","reconnects":2,"timestamp":"..."}
//
// A graceful Close publishes status "offline" with reason
// "graceful_shutdown"; the broker's Last Will carries reason
// "unexpected_disconnect".
//
// # Security Considerations
//
//   - Enable TLS when the broker is not on the same host (cfg.Broker.TLS=true)
//   - Credentials come from config or GREEBRIDGE_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, version)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("homeassistant/climate/+/set/#", 0,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
