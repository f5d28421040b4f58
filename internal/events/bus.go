package events

import (
	"sync"
	"time"
)

// DeviceUpdate is emitted when a device-state message arrives from the broker.
type DeviceUpdate struct {
	Topic      string
	EntityID   string
	Data       map[string]any
	ReceivedAt time.Time
}

// SensorData is emitted when a sensor reading arrives from the broker.
type SensorData struct {
	Topic      string
	SensorID   string
	Data       map[string]any
	ReceivedAt time.Time
}

// Generic is emitted for every inbound message that does not match a known
// topic family, and for payloads that fail structured decoding. Raw always
// holds the untouched payload bytes; Data is nil when decoding failed.
type Generic struct {
	Topic      string
	Data       map[string]any
	Raw        []byte
	ReceivedAt time.Time
}

// Logger is the logging interface used by the Bus.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// subscriberBuffer is the channel capacity handed to each subscriber.
// A slow consumer drops events rather than stalling broker message handling.
const subscriberBuffer = 64

// Bus fans inbound broker messages out to typed subscribers.
//
// Publishers never block: if a subscriber's buffer is full the event is
// dropped for that subscriber and a warning is logged. Subscribers register
// independently and receive their own channel.
//
// Thread Safety: all methods are safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	deviceSubs  []chan DeviceUpdate
	sensorSubs  []chan SensorData
	genericSubs []chan Generic
	logger      Logger
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	return &Bus{logger: noopLogger{}}
}

// SetLogger sets the logger used to report dropped events.
func (b *Bus) SetLogger(logger Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if logger != nil {
		b.logger = logger
	}
}

// SubscribeDeviceUpdates registers a new device-update consumer.
// The returned channel is owned by the bus and must not be closed by callers.
func (b *Bus) SubscribeDeviceUpdates() <-chan DeviceUpdate {
	ch := make(chan DeviceUpdate, subscriberBuffer)
	b.mu.Lock()
	b.deviceSubs = append(b.deviceSubs, ch)
	b.mu.Unlock()
	return ch
}

// SubscribeSensorData registers a new sensor-reading consumer.
func (b *Bus) SubscribeSensorData() <-chan SensorData {
	ch := make(chan SensorData, subscriberBuffer)
	b.mu.Lock()
	b.sensorSubs = append(b.sensorSubs, ch)
	b.mu.Unlock()
	return ch
}

// SubscribeGeneric registers a consumer for unclassified messages.
func (b *Bus) SubscribeGeneric() <-chan Generic {
	ch := make(chan Generic, subscriberBuffer)
	b.mu.Lock()
	b.genericSubs = append(b.genericSubs, ch)
	b.mu.Unlock()
	return ch
}

// DeviceSubscriberCount returns the number of device-update consumers.
func (b *Bus) DeviceSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.deviceSubs)
}

// SensorSubscriberCount returns the number of sensor-reading consumers.
func (b *Bus) SensorSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sensorSubs)
}

// PublishDeviceUpdate delivers a device update to all registered consumers.
func (b *Bus) PublishDeviceUpdate(ev DeviceUpdate) {
	b.mu.RLock()
	subs := b.deviceSubs
	logger := b.logger
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("device update dropped: subscriber buffer full", "topic", ev.Topic)
		}
	}
}

// PublishSensorData delivers a sensor reading to all registered consumers.
func (b *Bus) PublishSensorData(ev SensorData) {
	b.mu.RLock()
	subs := b.sensorSubs
	logger := b.logger
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("sensor data dropped: subscriber buffer full", "topic", ev.Topic)
		}
	}
}

// PublishGeneric delivers an unclassified message to all registered consumers.
func (b *Bus) PublishGeneric(ev Generic) {
	b.mu.RLock()
	subs := b.genericSubs
	logger := b.logger
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("generic event dropped: subscriber buffer full", "topic", ev.Topic)
		}
	}
}
