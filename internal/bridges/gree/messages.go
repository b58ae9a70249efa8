package gree

import (
	"fmt"
	"strings"
	"time"
)

// Topic helpers

const (
	// DefaultDiscoveryPrefix is the Home Assistant discovery prefix.
	DefaultDiscoveryPrefix = "homeassistant"

	// BridgeTopicPrefix is the base topic for bridge-level messages.
	BridgeTopicPrefix = "greebridge"

	climateComponent = "climate"
)

// Per-device topic leaves under <prefix>/climate/<id>/.
const (
	leafConfig             = "config"
	leafAvailability       = "availability"
	leafMode               = "mode"
	leafTemperature        = "temperature"
	leafCurrentTemperature = "current_temperature"
	leafFanMode            = "fan_mode"
	leafSwingMode          = "swing_mode"
	leafState              = "state"
	leafSet                = "set"
)

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Home Assistant mode names that differ from the device vocabulary.
const (
	haModeOff     = "off"
	haModeFanOnly = "fan_only"
)

// Temperature range advertised to Home Assistant.
const (
	MinTemperature  = 16
	MaxTemperature  = 30
	TemperatureStep = 1
)

// Topics builds the per-device topic tree under a discovery prefix.
type Topics struct {
	prefix string
}

// NewTopics creates topic helpers for prefix. An empty prefix means
// "homeassistant".
func NewTopics(prefix string) Topics {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return Topics{prefix: prefix}
}

// Base returns <prefix>/climate/<id>.
func (t Topics) Base(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", t.prefix, climateComponent, deviceID)
}

// Config returns the retained discovery config topic.
func (t Topics) Config(deviceID string) string {
	return t.Base(deviceID) + "/" + leafConfig
}

// Availability returns the online/offline topic.
func (t Topics) Availability(deviceID string) string {
	return t.Base(deviceID) + "/" + leafAvailability
}

// Attribute returns the state topic of a single attribute.
func (t Topics) Attribute(deviceID, leaf string) string {
	return t.Base(deviceID) + "/" + leaf
}

// State returns the topic carrying the full JSON state.
func (t Topics) State(deviceID string) string {
	return t.Base(deviceID) + "/" + leafState
}

// Command returns the JSON command topic.
func (t Topics) Command(deviceID string) string {
	return t.Base(deviceID) + "/" + leafSet
}

// AttributeCommand returns the raw-value command topic of one field.
func (t Topics) AttributeCommand(deviceID, field string) string {
	return t.Command(deviceID) + "/" + field
}

// CommandSubscription returns the wildcard that matches every command topic.
func (t Topics) CommandSubscription() string {
	return fmt.Sprintf("%s/%s/+/%s/#", t.prefix, climateComponent, leafSet)
}

// ParseCommandTopic extracts the device ID and, for attribute topics, the
// field name. ok is false for topics outside the command tree.
func (t Topics) ParseCommandTopic(topic string) (deviceID, field string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/"+climateComponent+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == leafSet:
		return parts[0], "", parts[0] != ""
	case len(parts) == 3 && parts[1] == leafSet:
		return parts[0], parts[2], parts[0] != "" && parts[2] != ""
	default:
		return "", "", false
	}
}

// HealthTopic returns the bridge health topic.
func HealthTopic() string {
	return BridgeTopicPrefix + "/health"
}

// DiscoveryDevice is the device block of a discovery config.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// ClimateDiscovery is the retained Home Assistant climate config.
// Topic: <prefix>/climate/<id>/config
type ClimateDiscovery struct {
	Name                    string          `json:"name"`
	UniqueID                string          `json:"unique_id"`
	Device                  DiscoveryDevice `json:"device"`
	Modes                   []string        `json:"modes"`
	FanModes                []string        `json:"fan_modes"`
	SwingModes              []string        `json:"swing_modes"`
	TemperatureUnit         string          `json:"temperature_unit"`
	MinTemp                 int             `json:"min_temp"`
	MaxTemp                 int             `json:"max_temp"`
	TempStep                int             `json:"temp_step"`
	CurrentTemperatureTopic string          `json:"current_temperature_topic"`
	TemperatureStateTopic   string          `json:"temperature_state_topic"`
	TemperatureCommandTopic string          `json:"temperature_command_topic"`
	ModeStateTopic          string          `json:"mode_state_topic"`
	ModeCommandTopic        string          `json:"mode_command_topic"`
	FanModeStateTopic       string          `json:"fan_mode_state_topic"`
	FanModeCommandTopic     string          `json:"fan_mode_command_topic"`
	SwingModeStateTopic     string          `json:"swing_mode_state_topic"`
	SwingModeCommandTopic   string          `json:"swing_mode_command_topic"`
	AvailabilityTopic       string          `json:"availability_topic"`
	PayloadAvailable        string          `json:"payload_available"`
	PayloadNotAvailable     string          `json:"payload_not_available"`
}

// NewClimateDiscovery builds the discovery config for a device.
func NewClimateDiscovery(t Topics, dev Snapshot) ClimateDiscovery {
	uid := "gree_" + dev.ID
	if dev.MAC != "" {
		uid = "gree_" + dev.MAC
	}
	model := dev.Model
	if model == "" {
		model = "Air Conditioner"
	}
	version := dev.Version
	if version == "" {
		version = "Unknown"
	}

	modes := []string{haModeOff}
	for _, m := range modeNames {
		modes = append(modes, haModeName(m))
	}

	return ClimateDiscovery{
		Name:     dev.Name,
		UniqueID: uid,
		Device: DiscoveryDevice{
			Identifiers:  []string{uid},
			Name:         dev.Name,
			Manufacturer: "Gree",
			Model:        model,
			SWVersion:    version,
		},
		Modes:                   modes,
		FanModes:                append([]string(nil), fanNames[:]...),
		SwingModes:              []string{SwingOff, SwingVertical, SwingHorizontal, SwingBoth},
		TemperatureUnit:         "C",
		MinTemp:                 MinTemperature,
		MaxTemp:                 MaxTemperature,
		TempStep:                TemperatureStep,
		CurrentTemperatureTopic: t.Attribute(dev.ID, leafCurrentTemperature),
		TemperatureStateTopic:   t.Attribute(dev.ID, leafTemperature),
		TemperatureCommandTopic: t.AttributeCommand(dev.ID, FieldTemperature),
		ModeStateTopic:          t.Attribute(dev.ID, leafMode),
		ModeCommandTopic:        t.AttributeCommand(dev.ID, FieldMode),
		FanModeStateTopic:       t.Attribute(dev.ID, leafFanMode),
		FanModeCommandTopic:     t.AttributeCommand(dev.ID, FieldFanMode),
		SwingModeStateTopic:     t.Attribute(dev.ID, leafSwingMode),
		SwingModeCommandTopic:   t.AttributeCommand(dev.ID, FieldSwingMode),
		AvailabilityTopic:       t.Availability(dev.ID),
		PayloadAvailable:        PayloadOnline,
		PayloadNotAvailable:     PayloadOffline,
	}
}

// haModeName maps a device mode name to Home Assistant's vocabulary.
func haModeName(mode string) string {
	if mode == ModeFan.String() {
		return haModeFanOnly
	}
	return mode
}

// HAMode is the Home Assistant mode of a state: "off" when powered off,
// otherwise the mode name. Unknown modes report "auto".
func HAMode(s DeviceState) string {
	if !s.Power {
		return haModeOff
	}
	if !s.Mode.Valid() {
		return ModeAuto.String()
	}
	return haModeName(s.Mode.String())
}

// HAFanMode is the fan mode name, "auto" for unknown speeds.
func HAFanMode(s DeviceState) string {
	if !s.FanSpeed.Valid() {
		return FanAuto.String()
	}
	return s.FanSpeed.String()
}

// normalizeHAFields rewrites Home Assistant command vocabulary into the
// translator's: mode "off" becomes power OFF and "fan_only" becomes "fan".
// Any other mode also switches the unit on unless power was given.
func normalizeHAFields(fields map[string]any) map[string]any {
	raw, ok := fields[FieldMode].(string)
	if !ok {
		return fields
	}
	mode := normalizeName(raw)

	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	switch mode {
	case haModeOff:
		delete(out, FieldMode)
		out[FieldPower] = "OFF"
	case haModeFanOnly:
		out[FieldMode] = ModeFan.String()
		if _, set := out[FieldPower]; !set {
			out[FieldPower] = "ON"
		}
	default:
		if _, valid := ParseMode(mode); valid {
			if _, set := out[FieldPower]; !set {
				out[FieldPower] = "ON"
			}
		}
	}
	return out
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

// Health status values.
const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status.
// Topic: greebridge/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge           string       `json:"bridge"`
	Timestamp        time.Time    `json:"timestamp"`
	Status           HealthStatus `json:"status"`
	Version          string       `json:"version"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	DevicesManaged   int          `json:"devices_managed"`
	DevicesAvailable int          `json:"devices_available"`
	Reason           string       `json:"reason,omitempty"`
}
