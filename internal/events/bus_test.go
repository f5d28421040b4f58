package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_DeviceUpdateFanOut(t *testing.T) {
	bus := NewBus()

	sub1 := bus.SubscribeDeviceUpdates()
	sub2 := bus.SubscribeDeviceUpdates()

	ev := DeviceUpdate{
		Topic:    "devices/light.kitchen/state",
		EntityID: "light.kitchen",
		Data:     map[string]any{"state": "on"},
	}
	bus.PublishDeviceUpdate(ev)

	for i, sub := range []<-chan DeviceUpdate{sub1, sub2} {
		select {
		case got := <-sub:
			if got.EntityID != "light.kitchen" {
				t.Errorf("subscriber %d: EntityID = %q, want %q", i, got.EntityID, "light.kitchen")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event received", i)
		}
	}
}

func TestBus_IndependentTypes(t *testing.T) {
	bus := NewBus()

	deviceSub := bus.SubscribeDeviceUpdates()
	sensorSub := bus.SubscribeSensorData()

	bus.PublishSensorData(SensorData{Topic: "sensors/temp1/data", SensorID: "temp1"})

	select {
	case got := <-sensorSub:
		if got.SensorID != "temp1" {
			t.Errorf("SensorID = %q, want %q", got.SensorID, "temp1")
		}
	case <-time.After(time.Second):
		t.Fatal("no sensor event received")
	}

	select {
	case ev := <-deviceSub:
		t.Errorf("device subscriber received unexpected event: %+v", ev)
	default:
	}
}

func TestBus_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()

	// Subscribe but never consume.
	_ = bus.SubscribeGeneric()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			bus.PublishGeneric(Generic{Topic: "misc/topic", Raw: []byte("x")})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = bus.SubscribeDeviceUpdates()
		}()
		go func() {
			defer wg.Done()
			bus.PublishDeviceUpdate(DeviceUpdate{Topic: "devices/x/state"})
		}()
	}
	wg.Wait()
}
