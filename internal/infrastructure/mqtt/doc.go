// Package mqtt provides MQTT broker connectivity for HomeHub Core.
//
// This package manages:
//   - Connection to the broker with unbounded fixed-interval reconnect
//   - Presence announcements on smart-home/status (retained, with LWT)
//   - Message publishing with QoS guarantees
//   - A subscription set replayed verbatim after every reconnection
//   - Classification of inbound traffic into typed events
//
// # Reconnection protocol
//
// On every connected transition the client first publishes a retained
// "online" presence message, then resubscribes to each topic in the
// subscription set independently; one failed resubscription is logged and
// does not block the others. Connection loss is never fatal: the broker is
// retried at a fixed interval until the process exits.
//
// # Inbound traffic
//
// The Router classifies messages by topic prefix (devices/, sensors/,
// homeassistant/sensor/) and publishes typed events on the event bus.
// Payloads that fail JSON decoding are emitted as generic events with the
// raw bytes rather than dropped.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	router := mqtt.NewRouter(bus)
//	client.Subscribe(mqtt.AllDeviceTopics(), 1, router.Handle)
//	client.Subscribe(mqtt.AllSensorTopics(), 1, router.Handle)
package mqtt
