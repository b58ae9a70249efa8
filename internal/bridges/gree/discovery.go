package gree

import (
	"context"
	"net"
	"strconv"
	"time"
)

// Discovery defaults.
const (
	DefaultBroadcastAddress = "255.255.255.255"
	DefaultDiscoveryTimeout = 10 * time.Second
)

// DiscoveryConfig configures a Discovery.
type DiscoveryConfig struct {
	Transport        Transport
	BroadcastAddress string
	Port             int
	Timeout          time.Duration
	Logger           Logger
}

// Discovery broadcasts scan probes and collects dev replies.
type Discovery struct {
	transport Transport
	target    string
	timeout   time.Duration
	logger    Logger
}

// NewDiscovery creates a discovery service.
func NewDiscovery(cfg DiscoveryConfig) *Discovery {
	if cfg.Transport == nil {
		cfg.Transport = NewUDPTransport()
	}
	if cfg.BroadcastAddress == "" {
		cfg.BroadcastAddress = DefaultBroadcastAddress
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDiscoveryTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Discovery{
		transport: cfg.Transport,
		target:    net.JoinHostPort(cfg.BroadcastAddress, strconv.Itoa(cfg.Port)),
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// Discover sends one scan and returns a Device for every dev reply received
// before the timeout. Replies that cannot be decoded are skipped. Partial
// results are success; an error is returned only when the probe could not
// be sent, together with whatever was collected.
//
// The same address may appear more than once; use DedupeByAddress before
// merging into a registry.
func (d *Discovery) Discover(ctx context.Context) ([]*Device, error) {
	probe, err := NewScanRequest().Marshal()
	if err != nil {
		return nil, err
	}

	found := []*Device{}
	err = d.transport.Broadcast(ctx, d.target, probe, d.timeout, func(from *net.UDPAddr, data []byte) {
		reply, err := ParseEnvelope(data)
		if err != nil {
			d.logger.Debug("ignoring discovery datagram", "from", from.String(), "error", err)
			return
		}
		info, err := decodeDevReply(reply)
		if err != nil {
			d.logger.Debug("ignoring discovery reply", "from", from.String(), "error", err)
			return
		}

		host := from.IP.String()
		dev := NewDevice(DeviceOptions{
			Name:    info.Name,
			Host:    host,
			Port:    from.Port,
			MAC:     info.MAC,
			Brand:   info.Brand,
			Model:   info.Model,
			Version: info.Ver,
		})
		d.logger.Info("device discovered",
			"device_id", dev.ID(),
			"name", dev.Name(),
			"mac", info.MAC,
			"model", info.Model,
		)
		found = append(found, dev)
	})
	return found, err
}

// DedupeByAddress keeps the first device seen for each host:port.
func DedupeByAddress(devices []*Device) []*Device {
	seen := make(map[string]bool, len(devices))
	out := make([]*Device, 0, len(devices))
	for _, dev := range devices {
		if seen[dev.Address()] {
			continue
		}
		seen[dev.Address()] = true
		out = append(out, dev)
	}
	return out
}
