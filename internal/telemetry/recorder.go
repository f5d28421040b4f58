// Package telemetry bridges inbound broker events to the time-series
// store. It consumes typed events from the bus and records every numeric
// field; non-numeric payload fields are ignored, booleans are recorded
// as 0/1.
package telemetry

import (
	"context"

	"github.com/homehub-dev/homehub-core/internal/events"
)

// MetricWriter is the interface the recorder needs from the telemetry
// store. Writes are fire-and-forget.
type MetricWriter interface {
	WriteSensorMetric(sensorID string, field string, value float64)
	WriteDeviceMetric(deviceID string, measurement string, value float64)
}

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Recorder drains bus events into the metric store.
type Recorder struct {
	bus    *events.Bus
	writer MetricWriter
	logger Logger
}

// NewRecorder creates a recorder. The writer may be nil, in which case
// Run exits immediately; callers need no conditional wiring when
// telemetry is disabled.
func NewRecorder(bus *events.Bus, writer MetricWriter, logger Logger) *Recorder {
	return &Recorder{bus: bus, writer: writer, logger: logger}
}

// Run consumes events until the context is cancelled. It blocks; callers
// run it in its own goroutine.
func (r *Recorder) Run(ctx context.Context) {
	if r.writer == nil {
		return
	}

	sensorCh := r.bus.SubscribeSensorData()
	deviceCh := r.bus.SubscribeDeviceUpdates()

	if r.logger != nil {
		r.logger.Info("telemetry recorder started")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sensorCh:
			r.recordSensor(ev)
		case ev := <-deviceCh:
			r.recordDevice(ev)
		}
	}
}

func (r *Recorder) recordSensor(ev events.SensorData) {
	for field, value := range ev.Data {
		if v, ok := numeric(value); ok {
			r.writer.WriteSensorMetric(ev.SensorID, field, v)
		}
	}
}

func (r *Recorder) recordDevice(ev events.DeviceUpdate) {
	for field, value := range ev.Data {
		if v, ok := numeric(value); ok {
			r.writer.WriteDeviceMetric(ev.EntityID, field, v)
		}
	}
}

// numeric extracts a float from a decoded JSON value.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
