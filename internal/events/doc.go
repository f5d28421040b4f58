// Package events provides the typed event bus that carries inbound broker
// messages to their consumers.
//
// Inbound MQTT traffic is classified by the broker client into device
// updates, sensor readings, and generic messages. Each class has its own
// event type and subscription channel, so consumers depend on the shape of
// the event rather than on a topic-name string.
//
// Delivery is best-effort: a subscriber that falls behind loses events
// instead of blocking the broker client's message handler.
package events
