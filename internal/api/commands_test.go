package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/homehub-dev/homehub-core/internal/command"
)

func TestSubmitCommand(t *testing.T) {
	srv, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/commands",
		`{"device_id": "light.kitchen", "action": "on", "priority": "high"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var cmd command.Command
	if err := json.Unmarshal(rec.Body.Bytes(), &cmd); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if cmd.ID == "" {
		t.Error("expected generated command ID")
	}
	if cmd.Execution.Status != command.StatusPending {
		t.Errorf("expected pending, got %s", cmd.Execution.Status)
	}
	if cmd.Priority != command.PriorityHigh {
		t.Errorf("expected high priority, got %s", cmd.Priority)
	}
	if cmd.UserID != "user-1" {
		t.Errorf("expected token subject as user, got %q", cmd.UserID)
	}
}

func TestSubmitCommandValidation(t *testing.T) {
	srv, _ := testServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/commands", `{"action": "on"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing device: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/commands", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/commands",
		`{"device_id": "light.kitchen", "action": "on", "depends_on": ["cmd-ghost"]}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown dependency: expected 422, got %d", rec.Code)
	}
}

func TestGetCommand(t *testing.T) {
	srv, dispatcher := testServer(t)

	cmd, err := dispatcher.Submit(context.Background(), command.SubmitRequest{
		Source: "test", DeviceID: "light.kitchen", Action: "on",
	})
	if err != nil {
		t.Fatalf("submitting: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/commands/"+cmd.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got command.Command
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.ID != cmd.ID {
		t.Errorf("expected %s, got %s", cmd.ID, got.ID)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/commands/cmd-missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown command, got %d", rec.Code)
	}
}

func TestListCommandsFilter(t *testing.T) {
	srv, dispatcher := testServer(t)
	ctx := context.Background()

	first, err := dispatcher.Submit(ctx, command.SubmitRequest{
		Source: "test", DeviceID: "light.kitchen", Action: "on",
	})
	if err != nil {
		t.Fatalf("submitting: %v", err)
	}
	if _, err := dispatcher.Submit(ctx, command.SubmitRequest{
		Source: "test", DeviceID: "switch.garden_pump", Action: "off",
	}); err != nil {
		t.Fatalf("submitting: %v", err)
	}
	if _, err := dispatcher.Attempt(ctx, first.ID); err != nil {
		t.Fatalf("attempting: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/commands?status=confirmed", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var result command.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Total != 1 || result.Commands[0].ID != first.ID {
		t.Errorf("expected only the confirmed command, got total=%d", result.Total)
	}
}

func TestCancelCommand(t *testing.T) {
	srv, dispatcher := testServer(t)

	cmd, err := dispatcher.Submit(context.Background(), command.SubmitRequest{
		Source: "test", DeviceID: "light.kitchen", Action: "on",
	})
	if err != nil {
		t.Fatalf("submitting: %v", err)
	}

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/commands/"+cmd.ID+"?reason=changed+my+mind", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got command.Command
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Execution.Status != command.StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Execution.Status)
	}

	// Repeat cancellation is a no-op success.
	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/commands/"+cmd.ID, "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 on repeat cancel, got %d", rec.Code)
	}
}

func TestCommandHistory(t *testing.T) {
	srv, dispatcher := testServer(t)
	ctx := context.Background()

	cmd, err := dispatcher.Submit(ctx, command.SubmitRequest{
		Source: "test", DeviceID: "light.kitchen", Action: "on",
	})
	if err != nil {
		t.Fatalf("submitting: %v", err)
	}
	if _, err := dispatcher.Attempt(ctx, cmd.ID); err != nil {
		t.Fatalf("attempting: %v", err)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/commands/"+cmd.ID+"/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		CommandID string `json:"command_id"`
		Attempts  []struct {
			Outcome string `json:"outcome"`
			Attempt int    `json:"attempt"`
		} `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Attempts) != 1 || body.Attempts[0].Outcome != "confirmed" {
		t.Errorf("expected one confirmed attempt, got %+v", body.Attempts)
	}
}
