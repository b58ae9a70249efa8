package mqtt

import (
	"encoding/json"
	"time"
)

// StatusTopic carries the bridge's connection status. The broker publishes
// the Last Will here when the bridge disappears without disconnecting.
//
// QoS: 1, Retained: Yes
const StatusTopic = "greebridge/status"

// Status values published on StatusTopic.
const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// Offline reasons.
const (
	reasonUnexpected = "unexpected_disconnect"
	reasonGraceful   = "graceful_shutdown"
)

// statusPayload is the JSON body published on StatusTopic.
type statusPayload struct {
	Status     string `json:"status"`
	BridgeID   string `json:"bridge_id"`
	Version    string `json:"version,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Reconnects int    `json:"reconnects,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func encodeStatus(p statusPayload) []byte {
	data, err := json.Marshal(p)
	if err != nil {
		return []byte(`{"status":"` + p.Status + `"}`)
	}
	return data
}

// statusMessage builds the status message for the current connection.
func (c *Client) statusMessage(status, reason string) []byte {
	c.connMu.RLock()
	reconnects := c.reconnects
	c.connMu.RUnlock()

	return encodeStatus(statusPayload{
		Status:     status,
		BridgeID:   c.cfg.Broker.ClientID,
		Version:    c.version,
		Reason:     reason,
		Reconnects: reconnects,
		Timestamp:  c.now().UTC().Format(time.RFC3339),
	})
}

// willPayload is registered with the broker at connect time, so its
// timestamp is the connect time rather than the moment of failure.
func willPayload(bridgeID, version string, at time.Time) []byte {
	return encodeStatus(statusPayload{
		Status:    statusOffline,
		BridgeID:  bridgeID,
		Version:   version,
		Reason:    reasonUnexpected,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
}

// validPublishTopic reports whether topic is non-empty and free of wildcards.
func validPublishTopic(topic string) bool {
	if topic == "" {
		return false
	}
	for _, r := range topic {
		if r == '+' || r == '#' {
			return false
		}
	}
	return true
}
