package gree

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	exchanges        *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	available        *prometheus.GaugeVec
	power            *prometheus.GaugeVec
	targetTemp       *prometheus.GaugeVec
	currentTemp      *prometheus.GaugeVec
	pollCycles       prometheus.Counter
	pollDuration     prometheus.Histogram
	commandsDropped  prometheus.Counter
	devices          prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	deviceLabels := []string{"device_id"}
	m := &Metrics{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greebridge_exchanges_total",
			Help: "Device exchanges by operation and result",
		}, []string{"op", "result"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "greebridge_exchange_duration_seconds",
			Help:    "Device exchange latency by operation",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greebridge_device_available",
			Help: "Whether the last exchange with the device succeeded (1=yes, 0=no)",
		}, deviceLabels),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greebridge_device_power",
			Help: "Reported power state (1=on, 0=off)",
		}, deviceLabels),
		targetTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greebridge_device_target_temperature_celsius",
			Help: "Reported setpoint (celsius)",
		}, deviceLabels),
		currentTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greebridge_device_current_temperature_celsius",
			Help: "Reported room temperature (celsius)",
		}, deviceLabels),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "greebridge_poll_cycles_total",
			Help: "Completed poll cycles",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "greebridge_poll_cycle_duration_seconds",
			Help:    "Duration of a full poll cycle",
			Buckets: prometheus.DefBuckets,
		}),
		commandsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "greebridge_commands_dropped_total",
			Help: "Commands dropped because the queue was full or the device unknown",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "greebridge_devices",
			Help: "Number of managed devices",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.exchanges,
			m.exchangeDuration,
			m.available,
			m.power,
			m.targetTemp,
			m.currentTemp,
			m.pollCycles,
			m.pollDuration,
			m.commandsDropped,
			m.devices,
		)
	}
	return m
}

// ObserveExchange records one status or command exchange.
func (m *Metrics) ObserveExchange(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(op, resultLabel(err)).Inc()
	m.exchangeDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveAvailability records device liveness.
func (m *Metrics) ObserveAvailability(deviceID string, available bool) {
	if m == nil {
		return
	}
	m.available.WithLabelValues(deviceID).Set(float64(boolInt(available)))
}

// ObserveState records the numeric parts of a decoded state.
func (m *Metrics) ObserveState(deviceID string, s DeviceState) {
	if m == nil {
		return
	}
	m.power.WithLabelValues(deviceID).Set(float64(boolInt(s.Power)))
	m.targetTemp.WithLabelValues(deviceID).Set(float64(s.TargetTemperature))
	m.currentTemp.WithLabelValues(deviceID).Set(float64(s.CurrentTemperature))
}

// ObservePollCycle records a completed poll cycle.
func (m *Metrics) ObservePollCycle(started time.Time) {
	if m == nil {
		return
	}
	m.pollCycles.Inc()
	m.pollDuration.Observe(time.Since(started).Seconds())
}

// CommandDropped counts a command that was not dispatched.
func (m *Metrics) CommandDropped() {
	if m == nil {
		return
	}
	m.commandsDropped.Inc()
}

// SetDeviceCount records the registry size.
func (m *Metrics) SetDeviceCount(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

// resultLabel maps an exchange error to a low-cardinality label.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBindFailed):
		return "bind_failed"
	case errors.Is(err, ErrNetworkTimeout):
		return "timeout"
	case errors.Is(err, ErrCrypto):
		return "crypto"
	case errors.Is(err, ErrMalformedStatus):
		return "malformed"
	default:
		return "error"
	}
}
