package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	_ "github.com/mattn/go-sqlite3"

	"github.com/homehub-dev/homehub-core/internal/adapter"
	"github.com/homehub-dev/homehub-core/internal/audit"
	"github.com/homehub-dev/homehub-core/internal/command"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/config"
	"github.com/homehub-dev/homehub-core/internal/infrastructure/logging"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testServer creates a Server with a real dispatcher backed by in-memory
// SQLite and the simulated device adapter.
func testServer(t *testing.T) (*Server, *command.Dispatcher) {
	t.Helper()

	db := setupTestDB(t)
	repo := command.NewSQLiteRepository(db)
	trail := audit.NewSQLiteRepository(db)
	dispatcher := command.NewDispatcher(repo, trail, adapter.NewSimulated(), nil, nil, nil, command.Config{})

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret},
		},
		Logger:     log,
		Dispatcher: dispatcher,
		Adapter:    adapter.NewSimulated(),
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub for tests
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return srv, dispatcher
}

// setupTestDB creates an in-memory SQLite database with the command schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE commands (
			id                  TEXT PRIMARY KEY,
			type                TEXT NOT NULL,
			source              TEXT NOT NULL,
			device_id           TEXT NOT NULL,
			user_id             TEXT,
			action              TEXT NOT NULL,
			parameters          TEXT NOT NULL DEFAULT '{}',
			priority            TEXT NOT NULL DEFAULT 'normal',
			original_input      TEXT,
			status              TEXT NOT NULL DEFAULT 'pending',
			start_time          TEXT,
			end_time            TEXT,
			attempts            INTEGER NOT NULL DEFAULT 0,
			max_attempts        INTEGER NOT NULL DEFAULT 3,
			retry_after         TEXT,
			scheduled_for       TEXT,
			response_success    INTEGER NOT NULL DEFAULT 0,
			response_message    TEXT,
			response_error_code TEXT,
			response_raw        TEXT,
			batch_id            TEXT,
			sequence_number     INTEGER,
			depends_on          TEXT NOT NULL DEFAULT '[]',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		) STRICT;

		CREATE TABLE command_audit (
			id          TEXT PRIMARY KEY,
			command_id  TEXT NOT NULL,
			attempt     INTEGER NOT NULL,
			outcome     TEXT NOT NULL,
			error_code  TEXT,
			message     TEXT,
			created_at  TEXT NOT NULL
		) STRICT;`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// testToken signs a short-lived bearer token for the test user.
func testToken(t *testing.T) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// doRequest runs a request through the full router with auth attached.
func doRequest(t *testing.T, srv *Server, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testToken(t))

	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected ok status, got %v", body["status"])
	}
	if body["adapter_state"] != "simulated" {
		t.Errorf("expected simulated adapter state, got %v", body["adapter_state"])
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	srv, _ := testServer(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("a-different-secret-that-is-long-enough"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/commands", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong signing key, got %d", rec.Code)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ws?token=not-a-token", nil)
	rec = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	srv, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Devices []adapter.DeviceSnapshot `json:"devices"`
		Count   int                      `json:"count"`
		State   string                   `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Count == 0 || len(body.Devices) != body.Count {
		t.Errorf("expected seeded devices, got count=%d len=%d", body.Count, len(body.Devices))
	}
	if body.State != "simulated" {
		t.Errorf("expected simulated state, got %q", body.State)
	}
}
