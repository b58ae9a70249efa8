package gree

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveExchange("status", time.Now(), nil)
	m.ObserveAvailability("x", true)
	m.ObserveState("x", DeviceState{})
	m.ObservePollCycle(time.Now())
	m.CommandDropped()
	m.SetDeviceCount(3)
}

// gatheredValue returns the value of the first sample of name whose labels
// include all of want.
func gatheredValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue(), true
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue(), true
			}
		}
	}
	return 0, false
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveExchange("status", time.Now(), nil)
	m.ObserveExchange("status", time.Now(), ErrNetworkTimeout)
	m.ObserveAvailability("lounge", true)
	m.ObserveState("lounge", DeviceState{Power: true, TargetTemperature: 23, CurrentTemperature: 21})
	m.SetDeviceCount(2)

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"greebridge_exchanges_total", map[string]string{"op": "status", "result": "ok"}, 1},
		{"greebridge_exchanges_total", map[string]string{"op": "status", "result": "timeout"}, 1},
		{"greebridge_device_available", map[string]string{"device_id": "lounge"}, 1},
	}
	for _, c := range checks {
		got, ok := gatheredValue(t, reg, c.name, c.labels)
		if !ok || got != c.want {
			t.Errorf("%s%v = %v (found %v), want %v", c.name, c.labels, got, ok, c.want)
		}
	}
}

func TestResultLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{ErrNetworkTimeout, "timeout"},
		{fmt.Errorf("%w: lounge: %w", ErrBindFailed, ErrNetworkTimeout), "bind_failed"},
		{&CryptoError{Op: "decrypt", Err: errBadPadding}, "crypto"},
		{ErrMalformedStatus, "malformed"},
		{errTestTransport, "error"},
	}
	for _, tt := range tests {
		if got := resultLabel(tt.err); got != tt.want {
			t.Errorf("resultLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
