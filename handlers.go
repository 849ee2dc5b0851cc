package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleRoot answers plain HTTP requests on the WebSocket path.
func (s *server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "PalmIQ health monitoring server. Devices connect here over WebSocket.")
}

// handleSensors returns the latest sensor reading.
func (s *server) handleSensors(w http.ResponseWriter, r *http.Request) {
	s.log.Debugf("GET /api/sensors from %s", r.RemoteAddr)
	s.writeJSON(w, s.store.Get())
}

// handleHealth reports liveness and process uptime in seconds.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Seconds(),
	})
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("Error encoding response: %v", err)
	}
}
