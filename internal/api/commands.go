package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homehub-dev/homehub-core/internal/command"
)

// submitCommandRequest is the request body for POST /api/v1/commands.
type submitCommandRequest struct {
	Type          string         `json:"type,omitempty"`
	Source        string         `json:"source,omitempty"`
	DeviceID      string         `json:"device_id"`
	Action        string         `json:"action"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Priority      string         `json:"priority,omitempty"`
	OriginalInput string         `json:"original_input,omitempty"`
	ScheduledFor  *time.Time     `json:"scheduled_for,omitempty"`
	BatchID       string         `json:"batch_id,omitempty"`
	SequenceNum   *int           `json:"sequence_number,omitempty"`
	DependsOn     []string       `json:"depends_on,omitempty"`
}

// handleSubmitCommand creates a new pending command.
func (s *Server) handleSubmitCommand(w http.ResponseWriter, r *http.Request) {
	var req submitCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Source == "" {
		req.Source = "api"
	}

	cmd, err := s.dispatcher.Submit(r.Context(), command.SubmitRequest{
		Type:          command.Type(req.Type),
		Source:        req.Source,
		DeviceID:      req.DeviceID,
		UserID:        userIDFrom(r.Context()),
		Action:        req.Action,
		Parameters:    req.Parameters,
		Priority:      command.Priority(req.Priority),
		OriginalInput: req.OriginalInput,
		ScheduledFor:  req.ScheduledFor,
		BatchID:       req.BatchID,
		SequenceNum:   req.SequenceNum,
		DependsOn:     req.DependsOn,
	})
	if err != nil {
		switch {
		case errors.Is(err, command.ErrInvalidCommand):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, command.ErrInvalidDependency):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("command submission failed", "error", err)
			writeInternalError(w, "failed to store command")
		}
		return
	}

	writeJSON(w, http.StatusCreated, cmd)
}

// handleListCommands returns commands matching the query filters.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := command.Filter{
		Status:   command.Status(q.Get("status")),
		DeviceID: q.Get("device_id"),
		BatchID:  q.Get("batch_id"),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	result, err := s.dispatcher.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("command listing failed", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetCommand returns a single command by ID.
func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cmd, err := s.dispatcher.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, command.ErrNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		s.logger.Error("command lookup failed", "command_id", id, "error", err)
		writeInternalError(w, "failed to load command")
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}

// handleCancelCommand cancels a command. Cancelling an already-terminal
// command succeeds without changing it.
func (s *Server) handleCancelCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "cancelled via api"
	}

	cmd, err := s.dispatcher.Cancel(r.Context(), id, reason)
	if err != nil {
		if errors.Is(err, command.ErrNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		s.logger.Error("command cancellation failed", "command_id", id, "error", err)
		writeInternalError(w, "failed to cancel command")
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}

// handleCommandHistory returns a command's per-attempt audit trail.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := s.dispatcher.History(r.Context(), id)
	if err != nil {
		if errors.Is(err, command.ErrNotFound) {
			writeNotFound(w, "command not found")
			return
		}
		s.logger.Error("command history lookup failed", "command_id", id, "error", err)
		writeInternalError(w, "failed to load command history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"command_id": id,
		"attempts":   entries,
	})
}
