package influxdb

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// fakeWriter implements pointWriter for testing.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
	errs    chan error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{errs: make(chan error, 1)}
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	w.points = append(w.points, p)
	w.mu.Unlock()
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	w.flushes++
	w.mu.Unlock()
}

func (w *fakeWriter) Errors() <-chan error { return w.errs }

func (w *fakeWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.points))
	for _, p := range w.points {
		out = append(out, write.PointToLineProtocol(p, time.Second))
	}
	return out
}

func TestClimatePoint(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		reading ClimateReading
		want    []string
		notWant []string
	}{
		{
			name: "full reading",
			reading: ClimateReading{
				DeviceID: "lounge", Name: "Lounge AC", Power: true, Mode: "cool",
				TargetTemperature: 22, CurrentTemperature: 23, FanSpeed: "auto",
				Swing: "full", Time: ts,
			},
			want: []string{
				"climate_state,device_id=lounge,name=Lounge\\ AC ",
				"power=true",
				`mode="cool"`,
				"target_temperature=22",
				"current_temperature=23",
				`fan_speed="auto"`,
				`swing="full"`,
				" 1700000000\n",
			},
		},
		{
			name: "no name or swing",
			reading: ClimateReading{
				DeviceID: "bedroom", Mode: "heat", TargetTemperature: 19.5, FanSpeed: "low", Time: ts,
			},
			want:    []string{"climate_state,device_id=bedroom ", "power=false", "target_temperature=19.5"},
			notWant: []string{"swing", "name="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(climatePoint(tt.reading), time.Second)
			for _, s := range tt.want {
				if !strings.Contains(line, s) {
					t.Errorf("line %q missing %q", line, s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(line, s) {
					t.Errorf("line %q should not contain %q", line, s)
				}
			}
		})
	}
}

func TestClimatePoint_ZeroTimeUsesNow(t *testing.T) {
	before := time.Now().Add(-time.Second)
	p := climatePoint(ClimateReading{DeviceID: "x"})
	if p.Time().Before(before) {
		t.Errorf("point time = %v, want roughly now", p.Time())
	}
}

func TestWriteClimateState(t *testing.T) {
	w := newFakeWriter()
	c := newClient(w)

	c.WriteClimateState(ClimateReading{DeviceID: "lounge", Mode: "cool"})
	if got := w.lines(); len(got) != 1 || !strings.HasPrefix(got[0], "climate_state,device_id=lounge") {
		t.Fatalf("lines = %v", got)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1 on close", w.flushes)
	}

	c.WriteClimateState(ClimateReading{DeviceID: "lounge"})
	c.Flush()
	if got := w.lines(); len(got) != 1 {
		t.Errorf("writes after Close should be dropped, got %d lines", len(got))
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d after second close, want 1", w.flushes)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	w := newFakeWriter()
	c := newClient(w)

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	cause := errors.New("bucket not found")
	w.errs <- cause

	select {
	case err := <-got:
		if !errors.Is(err, cause) {
			t.Errorf("callback error = %v, want %v", err, cause)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error callback not invoked")
	}
	close(w.errs)
}
