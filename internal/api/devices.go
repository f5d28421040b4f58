package api

import (
	"net/http"
)

// handleListDevices returns the current device snapshots from the
// adapter. In simulated mode this is the fixture set; in live mode it is
// a read against the device backend's state listing.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.adapter.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("device listing failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "device backend unreachable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
		"state":   string(s.adapter.State()),
	})
}
