package adapter

import "fmt"

// Action allow-lists per domain, and the backend service each action maps to.
//
// Validation is centralised here rather than in callers so that every
// invocation path (direct API call, scheduled automation, AI-parsed command)
// shares identical checks and none can bypass them.
var domainActions = map[string]map[string]string{
	"light": {
		"on":     "turn_on",
		"off":    "turn_off",
		"toggle": "toggle",
		"set":    "turn_on", // brightness/colour changes ride on turn_on
	},
	"switch": {
		"on":     "turn_on",
		"off":    "turn_off",
		"toggle": "toggle",
	},
	"scene": {
		"on":       "turn_on",
		"activate": "turn_on",
	},
	"media_player": {
		"on":          "turn_on",
		"off":         "turn_off",
		"toggle":      "toggle",
		"play":        "media_play",
		"pause":       "media_pause",
		"stop":        "media_stop",
		"next":        "media_next_track",
		"previous":    "media_previous_track",
		"volume_up":   "volume_up",
		"volume_down": "volume_down",
		"mute":        "volume_mute",
	},
}

// climateParams are the mutually exclusive climate control parameters.
// Exactly one must be present; each selects its own backend service.
var climateParams = map[string]string{
	"temperature": "set_temperature",
	"hvac_mode":   "set_hvac_mode",
	"fan_mode":    "set_fan_mode",
}

// resolveService validates an invocation and returns the backend service
// name to call.
//
// Returns:
//   - string: The service name (e.g. "turn_on", "set_temperature")
//   - error: ErrUnsupportedDomain, ErrUnsupportedAction, or
//     ErrMissingParameter; nil when the invocation is valid
func resolveService(domain, action string, params map[string]any) (string, error) {
	if domain == "climate" {
		return resolveClimateService(params)
	}

	actions, ok := domainActions[domain]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDomain, domain)
	}

	service, ok := actions[action]
	if !ok {
		return "", fmt.Errorf("%w: %q on %q", ErrUnsupportedAction, action, domain)
	}

	return service, nil
}

// resolveClimateService selects the climate service from the supplied
// parameters. Exactly one of temperature, hvac_mode, fan_mode must be set.
func resolveClimateService(params map[string]any) (string, error) {
	var service string
	count := 0
	for param, svc := range climateParams {
		if _, ok := params[param]; ok {
			service = svc
			count++
		}
	}

	switch count {
	case 1:
		return service, nil
	case 0:
		return "", fmt.Errorf("%w: climate requires one of temperature, hvac_mode, fan_mode", ErrMissingParameter)
	default:
		return "", fmt.Errorf("%w: climate accepts only one of temperature, hvac_mode, fan_mode", ErrMissingParameter)
	}
}
