package gree

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPort is the UDP port every unit listens on.
const DefaultPort = 7000

// DefaultBrand is used when a unit does not report one.
const DefaultBrand = "gree"

// BindState is the session state of a device.
type BindState int

// Bind states.
const (
	Unbound BindState = iota
	Bound
)

func (s BindState) String() string {
	if s == Bound {
		return "bound"
	}
	return "unbound"
}

// KeySource records where a device's session key came from.
type KeySource string

// Key sources.
const (
	KeyNone       KeySource = ""
	KeyConfigured KeySource = "configured"
	KeyNegotiated KeySource = "negotiated"
	KeyGeneric    KeySource = "generic"
)

// DeviceOptions describes a device before any exchange with it.
type DeviceOptions struct {
	ID      string
	Name    string
	Host    string
	Port    int
	MAC     string
	Key     string
	Brand   string
	Model   string
	Version string
}

// Device is the identity and liveness record of one unit. It lives for the
// lifetime of the process. All methods are safe for concurrent use.
type Device struct {
	id   string
	host string
	port int

	mu        sync.RWMutex
	name      string
	mac       string
	brand     string
	model     string
	version   string
	key       string
	keySource KeySource
	available bool
	lastSeen  time.Time
	state     *DeviceState
}

// NewDevice creates a device. Port defaults to 7000, the ID to the host
// with dots replaced by underscores, and the name to "Gree AC <host>".
// A configured key puts the device straight into the bound state.
func NewDevice(opts DeviceOptions) *Device {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	id := opts.ID
	if id == "" {
		id = DeviceIDFromHost(opts.Host)
	}
	name := opts.Name
	if name == "" {
		name = DefaultName(opts.Host)
	}
	brand := opts.Brand
	if brand == "" {
		brand = DefaultBrand
	}

	d := &Device{
		id:      id,
		host:    opts.Host,
		port:    port,
		name:    name,
		mac:     opts.MAC,
		brand:   brand,
		model:   opts.Model,
		version: opts.Version,
	}
	if opts.Key != "" {
		d.key = opts.Key
		d.keySource = KeyConfigured
	}
	return d
}

// DeviceIDFromHost derives a topic-safe device ID from an IP address.
func DeviceIDFromHost(host string) string {
	return strings.ReplaceAll(host, ".", "_")
}

// DefaultName is the display name given to a unit that does not report one.
func DefaultName(host string) string {
	return "Gree AC " + host
}

// ID returns the stable device identifier.
func (d *Device) ID() string { return d.id }

// Host returns the device IP address.
func (d *Device) Host() string { return d.host }

// Port returns the device UDP port.
func (d *Device) Port() int { return d.port }

// Address returns host:port.
func (d *Device) Address() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

// Name returns the display name.
func (d *Device) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// MAC returns the device-reported identifier, possibly empty.
func (d *Device) MAC() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mac
}

// setMAC records the MAC once learnt from the unit.
func (d *Device) setMAC(mac string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mac == "" {
		d.mac = mac
	}
}

// Key returns the session key and whether one is held.
func (d *Device) Key() (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.key, d.key != ""
}

// KeySource reports how the current key was obtained.
func (d *Device) KeySource() KeySource {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.keySource
}

// BindState reports whether the device holds a session key.
func (d *Device) BindState() BindState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.key != "" {
		return Bound
	}
	return Unbound
}

// bind stores key if none is held yet. It reports whether the key was set.
func (d *Device) bind(key string, source KeySource) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key != "" || key == "" {
		return false
	}
	d.key = key
	d.keySource = source
	return true
}

// Unbind drops the session key so the next exchange binds again.
func (d *Device) Unbind() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.key = ""
	d.keySource = KeyNone
}

// Available reports the result of the last exchange.
func (d *Device) Available() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.available
}

// LastSeen returns the time of the last successful exchange.
func (d *Device) LastSeen() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastSeen
}

// markSeen records a successful exchange.
func (d *Device) markSeen(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = true
	d.lastSeen = now
}

// markUnavailable records a failed exchange. The key is kept.
func (d *Device) markUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = false
}

// State returns the last decoded state, if any.
func (d *Device) State() (DeviceState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state == nil {
		return DeviceState{}, false
	}
	return *d.state, true
}

// setState replaces the state wholesale.
func (d *Device) setState(s DeviceState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = &s
}

// Snapshot is a point-in-time copy of a device for read-only consumers.
type Snapshot struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Host      string       `json:"host"`
	Port      int          `json:"port"`
	MAC       string       `json:"mac,omitempty"`
	Brand     string       `json:"brand"`
	Model     string       `json:"model,omitempty"`
	Version   string       `json:"version,omitempty"`
	BindState string       `json:"bind_state"`
	KeySource KeySource    `json:"key_source,omitempty"`
	Available bool         `json:"available"`
	LastSeen  *time.Time   `json:"last_seen,omitempty"`
	State     *DeviceState `json:"state,omitempty"`
}

// Snapshot copies the device under its lock. The key itself is never
// included.
func (d *Device) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := Snapshot{
		ID:        d.id,
		Name:      d.name,
		Host:      d.host,
		Port:      d.port,
		MAC:       d.mac,
		Brand:     d.brand,
		Model:     d.model,
		Version:   d.version,
		BindState: Unbound.String(),
		KeySource: d.keySource,
		Available: d.available,
	}
	if d.key != "" {
		s.BindState = Bound.String()
	}
	if !d.lastSeen.IsZero() {
		t := d.lastSeen
		s.LastSeen = &t
	}
	if d.state != nil {
		st := *d.state
		s.State = &st
	}
	return s
}

// Model returns the reported hardware model.
func (d *Device) Model() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.model
}

// Version returns the reported firmware version.
func (d *Device) Version() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Brand returns the reported brand.
func (d *Device) Brand() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.brand
}
