package main

import (
	"context"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/mqtt"
)

// mqttClient is the part of *mqtt.Client the bridge adapter uses.
type mqttClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// mqttBridgeAdapter adapts the MQTT client to gree.MQTTClient.
// The bridge's handlers do their own error logging, so they never fail.
type mqttBridgeAdapter struct {
	client mqttClient
}

func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// climateWriter is the part of *influxdb.Client the observer uses.
type climateWriter interface {
	WriteClimateState(r influxdb.ClimateReading)
}

// influxObserver forwards every decoded state to InfluxDB.
type influxObserver struct {
	client climateWriter
}

func (o *influxObserver) ObserveState(_ context.Context, obs gree.Observation) {
	o.client.WriteClimateState(climateReading(obs))
}

// climateReading flattens an observation into a telemetry point.
func climateReading(obs gree.Observation) influxdb.ClimateReading {
	return influxdb.ClimateReading{
		DeviceID:           obs.Device.ID,
		Name:               obs.Device.Name,
		Power:              obs.State.Power,
		Mode:               obs.State.Mode.String(),
		TargetTemperature:  float64(obs.State.TargetTemperature),
		CurrentTemperature: float64(obs.State.CurrentTemperature),
		FanSpeed:           obs.State.FanSpeed.String(),
		Swing:              obs.State.SwingMode(),
		Time:               obs.Time,
	}
}

// bridgeConfig maps the file configuration onto the bridge's settings.
func bridgeConfig(cfg *config.Config) gree.Config {
	devices := make([]gree.DeviceOptions, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, gree.DeviceOptions{
			ID:   d.ID,
			Name: d.Name,
			Host: d.IP,
			Port: d.Port,
			MAC:  d.MAC,
			Key:  d.Key,
		})
	}

	return gree.Config{
		BridgeID:        cfg.MQTT.Broker.ClientID,
		Version:         version,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
		QoS:             byte(cfg.MQTT.QoS),
		Discovery: gree.DiscoverySettings{
			Enabled:          cfg.Discovery.Enabled,
			BroadcastAddress: cfg.Discovery.BroadcastAddress,
			Port:             cfg.Discovery.Port,
			Timeout:          cfg.GetDiscoveryTimeout(),
		},
		PollInterval:    cfg.GetPollingInterval(),
		BindTimeout:     cfg.GetBindTimeout(),
		ExchangeTimeout: cfg.GetExchangeTimeout(),
		Workers:         cfg.Gree.Workers,
		CommandQueue:    cfg.Gree.CommandQueue,
		Devices:         devices,
	}
}
