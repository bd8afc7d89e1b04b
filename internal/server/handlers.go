// Package server exposes HTTP handlers: the WebSocket upgrade that joins a
// browser or tool to the same room as TCP clients, and a health check.
package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the connection and attaches it to
// the hub, which runs the same session protocol as the TCP listener.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	if s.hub.Attach(newWSTransport(conn, s.cfg.MaxMessageSize)) == nil {
		s.logger.Info("rejected WebSocket client during shutdown", "remote", r.RemoteAddr)
	}
}

// HealthHandler responds with a plain text status line including the
// number of members currently in the room.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running! %d/%d members online.",
		s.hub.registry.Count(), s.hub.registry.MaxUsers())
}
