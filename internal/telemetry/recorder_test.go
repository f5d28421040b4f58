package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/homehub-dev/homehub-core/internal/events"
)

type capturedMetric struct {
	id    string
	field string
	value float64
}

type mockWriter struct {
	mu      sync.Mutex
	sensors []capturedMetric
	devices []capturedMetric
}

func (m *mockWriter) WriteSensorMetric(sensorID, field string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sensors = append(m.sensors, capturedMetric{sensorID, field, value})
}

func (m *mockWriter) WriteDeviceMetric(deviceID, measurement string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices = append(m.devices, capturedMetric{deviceID, measurement, value})
}

func (m *mockWriter) sensorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sensors)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestRecorderWritesNumericSensorFields(t *testing.T) {
	bus := events.NewBus()
	writer := &mockWriter{}
	rec := NewRecorder(bus, writer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	// Subscription registration races the publish; wait for it.
	waitFor(t, func() bool { return bus.SensorSubscriberCount() > 0 })

	bus.PublishSensorData(events.SensorData{
		SensorID: "outdoor_temp",
		Data: map[string]any{
			"temperature": 14.5,
			"battery_ok":  true,
			"unit":        "C", // non-numeric, ignored
		},
	})

	waitFor(t, func() bool { return writer.sensorCount() == 2 })

	writer.mu.Lock()
	defer writer.mu.Unlock()
	byField := map[string]float64{}
	for _, m := range writer.sensors {
		if m.id != "outdoor_temp" {
			t.Errorf("unexpected sensor id %q", m.id)
		}
		byField[m.field] = m.value
	}
	if byField["temperature"] != 14.5 {
		t.Errorf("expected temperature 14.5, got %v", byField["temperature"])
	}
	if byField["battery_ok"] != 1 {
		t.Errorf("expected boolean recorded as 1, got %v", byField["battery_ok"])
	}
}

func TestRecorderWritesDeviceFields(t *testing.T) {
	bus := events.NewBus()
	writer := &mockWriter{}
	rec := NewRecorder(bus, writer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	waitFor(t, func() bool { return bus.DeviceSubscriberCount() > 0 })

	bus.PublishDeviceUpdate(events.DeviceUpdate{
		EntityID: "light.kitchen",
		Data:     map[string]any{"brightness": float64(200)},
	})

	waitFor(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return len(writer.devices) == 1
	})

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if writer.devices[0].id != "light.kitchen" || writer.devices[0].value != 200 {
		t.Errorf("unexpected device metric: %+v", writer.devices[0])
	}
}

func TestRecorderNilWriterExits(t *testing.T) {
	bus := events.NewBus()
	rec := NewRecorder(bus, nil, nil)

	done := make(chan struct{})
	go func() {
		rec.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected immediate exit with nil writer")
	}
}
