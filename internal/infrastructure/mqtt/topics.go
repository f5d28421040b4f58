package mqtt

// Topic layout.
//
// The presence topic carries this process's connectivity announcements.
// Device and sensor traffic is matched by prefix; the exact topic tail is
// owned by whatever publishes it (Home Assistant MQTT discovery, custom
// firmware, other bridges).
const (
	// StatusTopic is the presence topic announcing online/offline state.
	StatusTopic = "smart-home/status"

	// DeviceTopicPrefix matches device state traffic (devices/<id>/...).
	DeviceTopicPrefix = "devices/"

	// SensorTopicPrefix matches sensor readings (sensors/<id>/...).
	SensorTopicPrefix = "sensors/"

	// HADiscoveryPrefix matches Home Assistant MQTT discovery sensor traffic.
	HADiscoveryPrefix = "homeassistant/sensor/"
)

// Presence payloads. Plain strings, not JSON: every subscriber, including
// dumb display firmware, can parse them.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"

	// presenceQoS is the QoS for presence messages (at least once).
	presenceQoS = 1
)

// DeviceCommandTopic returns the topic a broker-routed command is published
// to for the given device.
func DeviceCommandTopic(deviceID string) string {
	return DeviceTopicPrefix + deviceID + "/set"
}

// AllDeviceTopics returns the wildcard filter covering all device traffic.
func AllDeviceTopics() string {
	return DeviceTopicPrefix + "#"
}

// AllSensorTopics returns the wildcard filter covering all sensor traffic.
func AllSensorTopics() string {
	return SensorTopicPrefix + "#"
}

// AllDiscoveryTopics returns the wildcard filter covering Home Assistant
// MQTT discovery sensor traffic.
func AllDiscoveryTopics() string {
	return HADiscoveryPrefix + "#"
}
