package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/homehub-dev/homehub-core/internal/events"
)

// newDisconnectedClient builds a client that has never reached the broker.
// Subscription-set behaviour and validation paths are fully exercisable in
// this state; connected-path tests live in integration tests that require a
// running broker.
func newDisconnectedClient() *Client {
	return &Client{
		subscriptions: make(map[string]subscription),
	}
}

func nopHandler(string, []byte) error { return nil }

func TestPublishDisconnected(t *testing.T) {
	c := newDisconnectedClient()

	err := c.Publish("devices/light.kitchen/set", []byte(`{"state":"on"}`), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishStringDisconnected(t *testing.T) {
	c := newDisconnectedClient()

	err := c.PublishString(StatusTopic, presenceOnline, 1, true)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishString() error = %v, want ErrNotConnected", err)
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	c := newDisconnectedClient()

	err := c.Publish("", []byte("x"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	c := newDisconnectedClient()

	err := c.Publish("devices/x/set", []byte("x"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestSubscribeWhileDisconnectedIsRecorded(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.Subscribe("devices/+/state", 1, nopHandler); err != nil {
		t.Fatalf("Subscribe() error = %v, want nil (deferred to next connect)", err)
	}

	if !c.HasSubscription("devices/+/state") {
		t.Error("subscription not recorded for replay at next connect")
	}
	if got := c.SubscriptionCount(); got != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", got)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.Subscribe("", 1, nopHandler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("devices/#", 5, nopHandler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("devices/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: error = %v, want ErrSubscribeFailed", err)
	}
}

func TestUnsubscribeWhileDisconnected(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.Subscribe("sensors/#", 1, nopHandler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Unsubscribe("sensors/#"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}

	if c.HasSubscription("sensors/#") {
		t.Error("unsubscribed topic still in subscription set")
	}
}

func TestCloseNil(t *testing.T) {
	c := newDisconnectedClient()

	if err := c.Close(); err != nil {
		t.Errorf("Close() on never-connected client error = %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		topic string
		want  MessageKind
	}{
		{"devices/light.kitchen/state", KindDeviceUpdate},
		{"homeassistant/sensor/hall_temp/state", KindDeviceUpdate},
		{"sensors/temp1/data", KindSensorData},
		{"smart-home/status", KindGeneric},
		{"some/other/topic", KindGeneric},
		{"devicesXYZ/not-a-device", KindGeneric},
	}

	for _, tt := range tests {
		if got := Classify(tt.topic); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.topic, got, tt.want)
		}
	}
}

func TestRouter_DeviceUpdate(t *testing.T) {
	bus := events.NewBus()
	sub := bus.SubscribeDeviceUpdates()
	router := NewRouter(bus)

	if err := router.Handle("devices/light.kitchen/state", []byte(`{"state":"on","brightness":128}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	select {
	case ev := <-sub:
		if ev.EntityID != "light.kitchen" {
			t.Errorf("EntityID = %q, want %q", ev.EntityID, "light.kitchen")
		}
		if ev.Data["state"] != "on" {
			t.Errorf("Data[state] = %v, want on", ev.Data["state"])
		}
	case <-time.After(time.Second):
		t.Fatal("no device update emitted")
	}
}

func TestRouter_HADiscoveryEntityID(t *testing.T) {
	bus := events.NewBus()
	sub := bus.SubscribeDeviceUpdates()
	router := NewRouter(bus)

	if err := router.Handle("homeassistant/sensor/hall_temp/state", []byte(`{"value":21.5}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	select {
	case ev := <-sub:
		if ev.EntityID != "hall_temp" {
			t.Errorf("EntityID = %q, want %q", ev.EntityID, "hall_temp")
		}
	case <-time.After(time.Second):
		t.Fatal("no device update emitted")
	}
}

func TestRouter_SensorData(t *testing.T) {
	bus := events.NewBus()
	sub := bus.SubscribeSensorData()
	router := NewRouter(bus)

	if err := router.Handle("sensors/temp1/data", []byte(`{"temperature":19.2}`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	select {
	case ev := <-sub:
		if ev.SensorID != "temp1" {
			t.Errorf("SensorID = %q, want %q", ev.SensorID, "temp1")
		}
	case <-time.After(time.Second):
		t.Fatal("no sensor event emitted")
	}
}

func TestRouter_UndecodablePayloadStillEmitted(t *testing.T) {
	bus := events.NewBus()
	sub := bus.SubscribeGeneric()
	router := NewRouter(bus)

	raw := []byte("\xff\xfenot json at all")
	if err := router.Handle("devices/light.kitchen/state", raw); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	select {
	case ev := <-sub:
		if string(ev.Raw) != string(raw) {
			t.Errorf("Raw = %q, want original payload", ev.Raw)
		}
		if ev.Data != nil {
			t.Errorf("Data = %v, want nil for undecodable payload", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("undecodable payload was dropped instead of emitted as generic")
	}
}

func TestRouter_BarePayloadWrappedAsValue(t *testing.T) {
	bus := events.NewBus()
	sub := bus.SubscribeSensorData()
	router := NewRouter(bus)

	if err := router.Handle("sensors/temp1/data", []byte(`21.5`)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	select {
	case ev := <-sub:
		if ev.Data["value"] != 21.5 {
			t.Errorf("Data[value] = %v, want 21.5", ev.Data["value"])
		}
	case <-time.After(time.Second):
		t.Fatal("no sensor event emitted")
	}
}

func TestDeviceCommandTopic(t *testing.T) {
	if got := DeviceCommandTopic("light.kitchen"); got != "devices/light.kitchen/set" {
		t.Errorf("DeviceCommandTopic() = %q, want %q", got, "devices/light.kitchen/set")
	}
}
