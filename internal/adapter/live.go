package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/homehub-dev/homehub-core/internal/infrastructure/config"
)

// maxResponseBytes caps how much of a backend response body is read.
// Control responses are small; anything bigger is a misbehaving backend.
const maxResponseBytes = 1 << 20 // 1MB

// Live is the adapter backed by a Home Assistant style HTTP API.
//
// Calls are bearer-token authenticated:
//   - GET  {base}/api/states                       — entity list
//   - POST {base}/api/services/{domain}/{service}  — control call
//   - GET  {base}/api/config                       — connectivity probe
//
// Thread Safety: all methods are safe for concurrent use.
type Live struct {
	baseURL string
	token   string
	client  *http.Client
	logger  Logger

	// state is advisory only, updated by probes and call outcomes.
	state   ConnState
	stateMu sync.RWMutex
}

// haEntity is the backend's native entity shape.
type haEntity struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// NewLive creates a live adapter for the configured backend.
// The backend being unreachable is not an error here; startup must not
// block on device connectivity. Use TestConnectivity to probe.
func NewLive(cfg config.HomeAssistantConfig, logger Logger) *Live {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Live{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.GetControlTimeout(),
		},
		logger: logger,
		state:  StateDisconnected,
	}
}

// State returns the advisory connectivity state.
func (l *Live) State() ConnState {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

func (l *Live) setState(s ConnState) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
}

// ListDevices fetches all entity states and maps them to snapshots.
//
// The entity type is derived from the entity_id prefix (light.kitchen →
// light); the display name comes from the friendly_name attribute when
// present.
func (l *Live) ListDevices(ctx context.Context) ([]DeviceSnapshot, error) {
	body, err := l.get(ctx, "/api/states")
	if err != nil {
		return nil, err
	}

	var entities []haEntity
	if err := json.Unmarshal(body, &entities); err != nil {
		return nil, fmt.Errorf("%w: decoding states response: %w", ErrTransport, err)
	}

	snapshots := make([]DeviceSnapshot, 0, len(entities))
	for _, e := range entities {
		snapshots = append(snapshots, normaliseEntity(e))
	}
	return snapshots, nil
}

// Invoke validates the action against the domain allow-list and performs
// the control call. Validation failures surface before any transport
// activity.
func (l *Live) Invoke(ctx context.Context, domain, action, entityID string, params map[string]any) (*Result, error) {
	service, err := resolveService(domain, action, params)
	if err != nil {
		return nil, err
	}

	// Service body: entity_id plus the caller's parameters
	payload := make(map[string]any, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["entity_id"] = entityID

	raw, err := l.post(ctx, fmt.Sprintf("/api/services/%s/%s", domain, service), payload)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("service called", "domain", domain, "service", service, "entity_id", entityID)

	return &Result{
		Success: true,
		Message: fmt.Sprintf("%s.%s executed on %s", domain, service, entityID),
		Raw:     raw,
	}, nil
}

// TestConnectivity probes the backend config endpoint.
// It never returns an error: any failure reports false and flips the
// advisory state to disconnected.
func (l *Live) TestConnectivity(ctx context.Context) bool {
	if _, err := l.get(ctx, "/api/config"); err != nil {
		l.logger.Warn("device backend unreachable", "error", err)
		return false
	}
	return true
}

// get performs an authenticated GET and returns the response body.
func (l *Live) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrTransport, err)
	}
	return l.do(req)
}

// post performs an authenticated POST with a JSON body.
func (l *Live) post(ctx context.Context, path string, body any) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request body: %w", ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return l.do(req)
}

// do executes a request, tracking advisory connectivity state.
func (l *Live) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+l.token)

	resp, err := l.client.Do(req)
	if err != nil {
		l.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		l.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		l.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrTransport, req.Method, req.URL.Path, resp.StatusCode)
	}

	l.setState(StateConnected)
	return body, nil
}

// normaliseEntity maps a backend entity to the snapshot shape.
func normaliseEntity(e haEntity) DeviceSnapshot {
	name := e.EntityID
	if fn, ok := e.Attributes["friendly_name"].(string); ok && fn != "" {
		name = fn
	}

	entityType := e.EntityID
	if idx := strings.Index(e.EntityID, "."); idx > 0 {
		entityType = e.EntityID[:idx]
	}

	return DeviceSnapshot{
		ID:         e.EntityID,
		Name:       name,
		Type:       entityType,
		State:      e.State,
		Attributes: e.Attributes,
	}
}
