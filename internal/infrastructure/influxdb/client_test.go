package influxdb_test

import (
	"errors"
	"testing"

	"github.com/homehub-dev/homehub-core/internal/infrastructure/config"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/influxdb"
)

func TestConnectDisabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{
		Enabled: true,
		URL:     "http://127.0.0.1:1",
		Token:   "test-token",
		Org:     "homehub",
		Bucket:  "telemetry",
	})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Fatalf("expected ErrConnectionFailed, got %v", err)
	}
}

func TestWriteDisconnectedIsNoop(t *testing.T) {
	// All write paths funnel through WritePoint, which drops data while
	// disconnected rather than touching the write API.
	var c influxdb.Client
	c.WritePoint("automation_runs", map[string]string{"rule": "night"}, map[string]interface{}{"count": 1})
	c.WriteSensorMetric("outdoor_temp", "temperature", 14.5)
	c.WriteDeviceMetric("light.kitchen", "brightness", 128)
}
