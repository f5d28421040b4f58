package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Simulated is the in-memory adapter used when no device backend is
// configured. Every validated call succeeds with a synthetic ack, and
// state transitions are tracked locally so ListDevices reflects prior
// calls within the process lifetime.
type Simulated struct {
	mu      sync.RWMutex
	devices map[string]DeviceSnapshot
}

// NewSimulated creates a simulated adapter seeded with a fixed device
// set covering each supported domain.
func NewSimulated() *Simulated {
	seed := []DeviceSnapshot{
		{
			ID:    "light.kitchen",
			Name:  "Kitchen Light",
			Type:  "light",
			State: "off",
			Attributes: map[string]any{
				"brightness": 0,
			},
		},
		{
			ID:    "light.living_room",
			Name:  "Living Room Light",
			Type:  "light",
			State: "on",
			Attributes: map[string]any{
				"brightness": 180,
			},
		},
		{
			ID:         "switch.garden_pump",
			Name:       "Garden Pump",
			Type:       "switch",
			State:      "off",
			Attributes: map[string]any{},
		},
		{
			ID:    "climate.hallway",
			Name:  "Hallway Thermostat",
			Type:  "climate",
			State: "heat",
			Attributes: map[string]any{
				"temperature":         20.0,
				"current_temperature": 19.2,
			},
		},
		{
			ID:    "media_player.lounge",
			Name:  "Lounge Speaker",
			Type:  "media_player",
			State: "idle",
			Attributes: map[string]any{
				"volume_level": 0.4,
			},
		},
		{
			ID:         "scene.movie_night",
			Name:       "Movie Night",
			Type:       "scene",
			State:      "idle",
			Attributes: map[string]any{},
		},
		{
			ID:    "sensor.outdoor_temp",
			Name:  "Outdoor Temperature",
			Type:  "sensor",
			State: "14.5",
			Attributes: map[string]any{
				"unit_of_measurement": "°C",
			},
		},
	}

	devices := make(map[string]DeviceSnapshot, len(seed))
	for _, d := range seed {
		devices[d.ID] = d
	}
	return &Simulated{devices: devices}
}

// State always reports simulated.
func (s *Simulated) State() ConnState {
	return StateSimulated
}

// TestConnectivity always succeeds; there is nothing to reach.
func (s *Simulated) TestConnectivity(ctx context.Context) bool {
	return true
}

// ListDevices returns the current simulated device set.
func (s *Simulated) ListDevices(ctx context.Context) ([]DeviceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]DeviceSnapshot, 0, len(s.devices))
	for _, d := range s.devices {
		snapshots = append(snapshots, d)
	}
	return snapshots, nil
}

// Invoke validates the action exactly as the live adapter does, then
// applies a local state transition and returns a synthetic ack.
// Unknown entity IDs are accepted; the simulation does not gate on the
// seeded set so tests can invent devices freely.
func (s *Simulated) Invoke(ctx context.Context, domain, action, entityID string, params map[string]any) (*Result, error) {
	service, err := resolveService(domain, action, params)
	if err != nil {
		return nil, err
	}

	s.applyTransition(domain, action, entityID, params)

	raw, _ := json.Marshal(map[string]any{
		"simulated": true,
		"entity_id": entityID,
		"service":   fmt.Sprintf("%s.%s", domain, service),
	})

	return &Result{
		Success: true,
		Message: fmt.Sprintf("simulated %s.%s on %s", domain, service, entityID),
		Raw:     raw,
	}, nil
}

// applyTransition updates the tracked state for a known entity.
func (s *Simulated) applyTransition(domain, action, entityID string, params map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev, ok := s.devices[entityID]
	if !ok {
		return
	}

	switch action {
	case "on", "play":
		dev.State = onState(domain)
	case "off", "stop":
		dev.State = "off"
	case "toggle":
		if dev.State == "off" {
			dev.State = onState(domain)
		} else {
			dev.State = "off"
		}
	case "pause":
		dev.State = "paused"
	case "set":
		dev.State = onState(domain)
		if b, ok := params["brightness"]; ok {
			dev.Attributes["brightness"] = b
		}
		if t, ok := params["temperature"]; ok {
			dev.Attributes["temperature"] = t
		}
	}

	// Climate single-parameter services adjust attributes, not state.
	if domain == "climate" {
		if t, ok := params["temperature"]; ok {
			dev.Attributes["temperature"] = t
		}
		if m, ok := params["hvac_mode"].(string); ok {
			dev.State = m
		}
	}

	s.devices[entityID] = dev
}

// onState returns the domain's natural "on" state string.
func onState(domain string) string {
	if domain == "media_player" {
		return "playing"
	}
	return "on"
}
