// Package influxdb records air conditioner telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every observed
// device state becomes one point in the climate_state measurement,
// tagged by device_id, so dashboards can chart set-point against room
// temperature over time.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteClimateState(influxdb.ClimateReading{DeviceID: "lounge", Mode: "cool"})
//
// # Error Handling
//
// Writes are non-blocking. Batch errors are delivered through the
// SetOnError callback; connection and health check errors are returned
// directly.
package influxdb
