package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorMetric writes a single sensor reading.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sensorID: Unique identifier for the sensor (e.g., "outdoor_temp")
//   - field: The reading name (e.g., "temperature", "humidity")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSensorMetric("outdoor_temp", "temperature", 14.5)
func (c *Client) WriteSensorMetric(sensorID string, field string, value float64) {
	c.WritePoint(
		"sensor_readings",
		map[string]string{
			"sensor_id": sensorID,
			"field":     field,
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WriteDeviceMetric writes a single device state measurement.
//
// Parameters:
//   - deviceID: Device identifier (e.g., "light.kitchen")
//   - measurement: The metric name (e.g., "brightness", "power_watts")
//   - value: The numeric value to record
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	c.WritePoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
