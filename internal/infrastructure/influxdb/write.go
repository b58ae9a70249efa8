package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// climateMeasurement is the measurement name for air conditioner state.
const climateMeasurement = "climate_state"

// ClimateReading is one observed air conditioner state.
//
// Swing is omitted from the point when empty.
type ClimateReading struct {
	DeviceID           string
	Name               string
	Power              bool
	Mode               string
	TargetTemperature  float64
	CurrentTemperature float64
	FanSpeed           string
	Swing              string
	Time               time.Time
}

// climatePoint converts a reading into an InfluxDB point.
func climatePoint(r ClimateReading) *write.Point {
	tags := map[string]string{
		"device_id": r.DeviceID,
	}
	if r.Name != "" {
		tags["name"] = r.Name
	}

	fields := map[string]interface{}{
		"power":               r.Power,
		"mode":                r.Mode,
		"target_temperature":  r.TargetTemperature,
		"current_temperature": r.CurrentTemperature,
		"fan_speed":           r.FanSpeed,
	}
	if r.Swing != "" {
		fields["swing"] = r.Swing
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(climateMeasurement, tags, fields, ts)
}

// WriteClimateState records an air conditioner state sample.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteClimateState(influxdb.ClimateReading{
//	    DeviceID: "lounge", Power: true, Mode: "cool",
//	    TargetTemperature: 22, FanSpeed: "auto",
//	})
func (c *Client) WriteClimateState(r ClimateReading) {
	if !c.IsConnected() {
		return
	}

	c.writer.WritePoint(climatePoint(r))
}
