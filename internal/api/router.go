package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket upgrade cannot carry an Authorization header from a
		// browser; the handler validates a token query parameter itself.
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Command endpoints
			r.Route("/commands", func(r chi.Router) {
				r.Get("/", s.handleListCommands)
				r.Post("/", s.handleSubmitCommand)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCommand)
					r.Delete("/", s.handleCancelCommand)
					r.Get("/history", s.handleCommandHistory)
				})
			})

			// Device endpoints
			r.Get("/devices", s.handleListDevices)
		})
	})

	return r
}

// handleHealth returns the server health status along with the advisory
// state of the device backend and the broker connection.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	brokerConnected := false
	if s.mqtt != nil {
		brokerConnected = s.mqtt.IsConnected()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          s.version,
		"adapter_state":    string(s.adapter.State()),
		"broker_connected": brokerConnected,
	})
}
