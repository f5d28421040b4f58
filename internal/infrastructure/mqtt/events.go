package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/homehub-dev/homehub-core/internal/events"
)

// MessageKind classifies an inbound message by its topic.
type MessageKind int

const (
	// KindGeneric is any message outside the known topic families.
	KindGeneric MessageKind = iota

	// KindDeviceUpdate is device state traffic (devices/..., HA discovery).
	KindDeviceUpdate

	// KindSensorData is sensor readings (sensors/...).
	KindSensorData
)

// Classify determines the message kind from a topic name.
//
// Matching is by prefix: devices/ and homeassistant/sensor/ traffic are
// device updates, sensors/ traffic is sensor data, everything else is
// generic. The presence topic itself classifies as generic; this process
// does not consume its own announcements.
func Classify(topic string) MessageKind {
	switch {
	case strings.HasPrefix(topic, DeviceTopicPrefix), strings.HasPrefix(topic, HADiscoveryPrefix):
		return KindDeviceUpdate
	case strings.HasPrefix(topic, SensorTopicPrefix):
		return KindSensorData
	default:
		return KindGeneric
	}
}

// Router turns raw broker messages into typed events on the bus.
//
// Every received message is emitted: payloads that fail JSON decoding are
// published as generic events carrying the raw bytes rather than dropped.
type Router struct {
	bus *events.Bus
}

// NewRouter creates a router publishing to the given bus.
func NewRouter(bus *events.Bus) *Router {
	return &Router{bus: bus}
}

// Handle is a MessageHandler: classify the topic, decode the payload, and
// publish the corresponding typed event.
//
// Returns:
//   - error: Always nil; malformed payloads are demoted to generic events,
//     not treated as handler failures
func (r *Router) Handle(topic string, payload []byte) error {
	now := time.Now().UTC()

	data, ok := decodePayload(payload)
	if !ok {
		// Unparseable payload: still emitted, raw
		r.bus.PublishGeneric(events.Generic{
			Topic:      topic,
			Raw:        append([]byte(nil), payload...),
			ReceivedAt: now,
		})
		return nil
	}

	switch Classify(topic) {
	case KindDeviceUpdate:
		r.bus.PublishDeviceUpdate(events.DeviceUpdate{
			Topic:      topic,
			EntityID:   entityIDFromTopic(topic),
			Data:       data,
			ReceivedAt: now,
		})
	case KindSensorData:
		r.bus.PublishSensorData(events.SensorData{
			Topic:      topic,
			SensorID:   sensorIDFromTopic(topic),
			Data:       data,
			ReceivedAt: now,
		})
	default:
		r.bus.PublishGeneric(events.Generic{
			Topic:      topic,
			Data:       data,
			Raw:        append([]byte(nil), payload...),
			ReceivedAt: now,
		})
	}

	return nil
}

// decodePayload attempts structured decoding of a message payload.
// Non-object JSON (bare strings, numbers) is wrapped under a "value" key so
// consumers always see a map.
func decodePayload(payload []byte) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err == nil {
		return m, true
	}

	var v any
	if err := json.Unmarshal(payload, &v); err == nil {
		return map[string]any{"value": v}, true
	}

	return nil, false
}

// entityIDFromTopic extracts the entity identifier from a device topic.
// "devices/light.kitchen/state" -> "light.kitchen"
// "homeassistant/sensor/hall_temp/state" -> "hall_temp"
func entityIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if strings.HasPrefix(topic, HADiscoveryPrefix) && len(parts) > 2 {
		return parts[2]
	}
	if len(parts) > 1 {
		return parts[1]
	}
	return topic
}

// sensorIDFromTopic extracts the sensor identifier from a sensor topic.
// "sensors/temp1/data" -> "temp1"
func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 1 {
		return parts[1]
	}
	return topic
}
