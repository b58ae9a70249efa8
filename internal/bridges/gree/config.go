package gree

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// DefaultBridgeID identifies the bridge in health messages.
const DefaultBridgeID = "greebridge"

// Config holds the bridge's runtime settings. Zero values take the
// package defaults.
type Config struct {
	BridgeID        string
	Version         string
	DiscoveryPrefix string
	QoS             byte

	Discovery DiscoverySettings

	PollInterval    time.Duration
	BindTimeout     time.Duration
	ExchangeTimeout time.Duration
	HealthInterval  time.Duration
	Workers         int
	CommandQueue    int

	// Devices are configured statically and take precedence over
	// discovered devices with the same ID or address.
	Devices []DeviceOptions
}

// DiscoverySettings controls startup discovery.
type DiscoverySettings struct {
	Enabled          bool
	BroadcastAddress string
	Port             int
	Timeout          time.Duration
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.BridgeID == "" {
		c.BridgeID = DefaultBridgeID
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if c.Discovery.BroadcastAddress == "" {
		c.Discovery.BroadcastAddress = DefaultBroadcastAddress
	}
	if c.Discovery.Port == 0 {
		c.Discovery.Port = DefaultPort
	}
	if c.Discovery.Timeout <= 0 {
		c.Discovery.Timeout = DefaultDiscoveryTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BindTimeout <= 0 {
		c.BindTimeout = DefaultBindTimeout
	}
	if c.ExchangeTimeout <= 0 {
		c.ExchangeTimeout = DefaultExchangeTimeout
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.CommandQueue <= 0 {
		c.CommandQueue = DefaultCommandQueue
	}
	return c
}

// Validate checks the static device list and QoS.
func (c Config) Validate() error {
	var errs []string

	if c.QoS > 2 {
		errs = append(errs, fmt.Sprintf("qos must be 0, 1, or 2, got %d", c.QoS))
	}

	ids := make(map[string]int)
	for i, d := range c.Devices {
		if d.Host == "" {
			errs = append(errs, fmt.Sprintf("devices[%d]: ip is required", i))
			continue
		}
		if net.ParseIP(d.Host) == nil {
			errs = append(errs, fmt.Sprintf("devices[%d]: ip %q is not an IP address", i, d.Host))
		}
		if d.Port < 0 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("devices[%d]: port %d out of range", i, d.Port))
		}
		id := d.ID
		if id == "" {
			id = DeviceIDFromHost(d.Host)
		}
		if strings.ContainsAny(id, "/+#") {
			errs = append(errs, fmt.Sprintf("devices[%d]: id %q contains MQTT wildcard or separator", i, id))
		}
		if prev, dup := ids[id]; dup {
			errs = append(errs, fmt.Sprintf("devices[%d]: id %q duplicates devices[%d]", i, id, prev))
		}
		ids[id] = i
	}

	if len(errs) > 0 {
		return fmt.Errorf("gree config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
