// Package server wires HTTP handlers into a ServeMux for the relay's
// health check and WebSocket endpoint.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with the health check
// and WebSocket endpoint.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	return mux
}
