// Package adapter translates logical device commands into control calls
// against a device backend.
//
// A command names a domain (light, switch, climate, media_player), an
// action, a target entity, and optional parameters. The adapter validates
// the action against a per-domain allow-list, resolves the backend service
// to call, and performs the call.
//
// Two implementations exist:
//
//   - Live: HTTP against a Home Assistant compatible REST API, bearer
//     token authenticated. Transport failures are wrapped in ErrTransport
//     and drive the command retry path upstream.
//   - Simulated: in-memory stand-in selected automatically when no backend
//     URL or token is configured. Validated calls succeed with a synthetic
//     ack and local state tracking, so the rest of the system exercises
//     identical code paths with or without real hardware.
//
// Validation errors (unsupported domain or action, missing parameter) are
// permanent and surface before any transport activity in both modes.
package adapter
