// Package influxdb provides time-series telemetry storage for sensor
// readings and device metrics.
//
// It wraps the official InfluxDB v2 Go client with connection lifecycle
// management matching the other infrastructure packages:
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil { ... }
//	defer client.Close()
//
//	client.WriteSensorMetric("outdoor_temp", "temperature", 14.5)
//
// Writes are non-blocking: points are batched in memory and flushed on a
// configured interval. Write failures surface asynchronously through the
// SetOnError callback, not on the write call itself. Telemetry is
// best-effort by design; a down InfluxDB never blocks command dispatch.
//
// When the integration is disabled in configuration, Connect returns
// ErrDisabled and callers run without a telemetry sink.
package influxdb
