package gree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sink receives device liveness and state from the poller.
type Sink interface {
	PublishAvailability(deviceID string, available bool) error
	PublishState(deviceID string, state DeviceState) error
}

// CommandEvent is an inbound control message for one device.
type CommandEvent struct {
	DeviceID string
	Command  Command
	Received time.Time
}

// Observation is handed to state observers after every successful status
// decode. Previous is nil on the first decode for a device.
type Observation struct {
	Device   Snapshot
	State    DeviceState
	Previous *DeviceState
	Time     time.Time
}

// Changed reports whether the state differs from the previous decode.
func (o Observation) Changed() bool {
	return o.Previous == nil || *o.Previous != o.State
}

// StateObserver consumes decoded states (telemetry, history). Observers
// must not block for long; errors are theirs to log.
type StateObserver interface {
	ObserveState(ctx context.Context, obs Observation)
}

// MQTTClient is the subset of the MQTT client the sink needs.
// This interface is satisfied by *mqtt.Client (via adapter in main.go).
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// MQTTSink publishes Home Assistant climate topics and turns messages on
// the command topics into CommandEvents.
type MQTTSink struct {
	client MQTTClient
	topics Topics
	qos    byte
	logger Logger
	now    func() time.Time
}

// NewMQTTSink creates a sink publishing under the discovery prefix.
func NewMQTTSink(client MQTTClient, prefix string, qos byte, logger Logger) *MQTTSink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTSink{
		client: client,
		topics: NewTopics(prefix),
		qos:    qos,
		logger: logger,
		now:    time.Now,
	}
}

// Topics returns the topic helper in use.
func (s *MQTTSink) Topics() Topics { return s.topics }

// Announce publishes the retained discovery config for a device.
func (s *MQTTSink) Announce(dev Snapshot) error {
	payload, err := json.Marshal(NewClimateDiscovery(s.topics, dev))
	if err != nil {
		return fmt.Errorf("encoding discovery config: %w", err)
	}
	return s.client.Publish(s.topics.Config(dev.ID), payload, s.qos, true)
}

// PublishAvailability publishes online or offline, retained.
func (s *MQTTSink) PublishAvailability(deviceID string, available bool) error {
	payload := PayloadOffline
	if available {
		payload = PayloadOnline
	}
	return s.client.Publish(s.topics.Availability(deviceID), []byte(payload), s.qos, true)
}

// PublishState publishes each attribute topic followed by the JSON state.
// All topics are attempted; the errors are joined.
func (s *MQTTSink) PublishState(deviceID string, state DeviceState) error {
	attrs := []struct {
		leaf  string
		value string
	}{
		{leafMode, HAMode(state)},
		{leafTemperature, strconv.Itoa(state.TargetTemperature)},
		{leafCurrentTemperature, strconv.Itoa(state.CurrentTemperature)},
		{leafFanMode, HAFanMode(state)},
		{leafSwingMode, state.SwingMode()},
	}

	var errs []error
	for _, a := range attrs {
		if err := s.client.Publish(s.topics.Attribute(deviceID, a.leaf), []byte(a.value), s.qos, false); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.leaf, err))
		}
	}

	payload, err := json.Marshal(state)
	if err != nil {
		errs = append(errs, fmt.Errorf("encoding state: %w", err))
	} else if err := s.client.Publish(s.topics.State(deviceID), payload, s.qos, true); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", leafState, err))
	}
	return errors.Join(errs...)
}

// SubscribeCommands subscribes to every device command topic and calls
// handle for each decodable message. Device IDs are not checked here.
func (s *MQTTSink) SubscribeCommands(handle func(CommandEvent)) error {
	return s.client.Subscribe(s.topics.CommandSubscription(), s.qos, func(topic string, payload []byte) {
		ev, err := s.decodeCommand(topic, payload)
		if err != nil {
			s.logger.Warn("ignoring command message", "topic", topic, "error", err)
			return
		}
		handle(ev)
	})
}

func (s *MQTTSink) decodeCommand(topic string, payload []byte) (CommandEvent, error) {
	deviceID, field, ok := s.topics.ParseCommandTopic(topic)
	if !ok {
		return CommandEvent{}, fmt.Errorf("not a command topic")
	}

	var fields map[string]any
	if field == "" {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return CommandEvent{}, fmt.Errorf("decoding command payload: %w", err)
		}
	} else {
		fields = map[string]any{field: strings.TrimSpace(string(payload))}
	}

	cmd := ParseCommand(normalizeHAFields(fields))
	if cmd.Empty() {
		return CommandEvent{}, fmt.Errorf("no recognised command fields")
	}
	return CommandEvent{DeviceID: deviceID, Command: cmd, Received: s.now()}, nil
}
