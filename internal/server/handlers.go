// Package server exposes HTTP handlers: the WebSocket gateway into the chat,
// a health check, and the current user list.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// WebSocketHandler upgrades the request and serves a chat session over the
// resulting connection until it closes. The line protocol is identical to
// the TCP listener's; each text frame carries one line.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	lineConn := NewWebSocketLineConn(conn, r.RemoteAddr, s.cfg.MaxLineLength, s.cfg.WriteTimeout, s.cfg.PingInterval)
	if err := s.ServeConn(lineConn); err != nil {
		s.log.Debug("WebSocket connection refused", "remote", r.RemoteAddr, "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat server is running! Active users: %d", s.registry.Len())
}

// UserListResponse is the JSON body served by UsersHandler.
type UserListResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}

// UsersHandler returns the registry snapshot as JSON.
func (s *Server) UsersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users := s.registry.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(UserListResponse{Users: users, Count: len(users)}); err != nil {
		s.log.Warn("Error writing user list response", "error", err)
	}
}
