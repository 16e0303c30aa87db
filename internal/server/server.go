// Package server implements the core chat service: it accepts connections,
// runs one Session per connection against a shared Registry, and shuts
// everything down on request.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrServerClosed is returned by Serve and ServeConn after Shutdown.
var ErrServerClosed = errors.New("chat server closed")

// Server owns the Registry and every live Session.
type Server struct {
	cfg      Config
	log      *slog.Logger
	registry *Registry
	router   *Router
	upgrader websocket.Upgrader

	mu           sync.Mutex
	sessions     map[*Session]struct{}
	listeners    map[net.Listener]struct{}
	shuttingDown atomic.Bool
	wg           sync.WaitGroup
}

// NewServer creates a Server from a sanitized configuration.
func NewServer(cfg Config, log *slog.Logger) *Server {
	cfg.Sanitize()
	registry := NewRegistry(log)
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		router:   NewRouter(registry, log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		sessions:  make(map[*Session]struct{}),
		listeners: make(map[net.Listener]struct{}),
	}
}

// Registry returns the server's handle registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// SessionCount returns the number of connections currently being served,
// including those still in the handshake.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Listen binds the configured TCP address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return ln, nil
}

// ListenAndServe binds the configured address and serves it. A bind
// failure is returned immediately.
func (s *Server) ListenAndServe() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and runs a Session for each one in its
// own goroutine. It returns nil once Shutdown closes ln.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	s.log.Info("Chat server listening", "addr", ln.Addr().String())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			backoff = nextBackoff(backoff)
			s.log.Warn("Accept failed; retrying", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		lineConn := NewTCPLineConn(conn, s.cfg.MaxLineLength, s.cfg.WriteTimeout)
		go func() {
			if err := s.ServeConn(lineConn); err != nil {
				s.log.Debug("Connection refused", "remote", lineConn.RemoteAddr(), "error", err)
			}
		}()
	}
}

// ServeConn runs a Session on conn and blocks until it is closed. A panic
// inside the session is logged and contained.
func (s *Server) ServeConn(conn LineConn) error {
	session := NewSession(conn, s.registry, s.router, s.cfg, s.log)
	if !s.trackSession(session) {
		_ = conn.Close()
		return ErrServerClosed
	}
	defer s.untrackSession(session)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered from panic in session", "session", session.ID(), "panic", r)
		}
	}()

	session.Run()
	return nil
}

// Shutdown stops accepting connections, closes every live session and waits
// for their cleanup to finish or for timeout to elapse.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Initiating chat server shutdown...")

	s.mu.Lock()
	s.shuttingDown.Store(true)
	listeners := make([]net.Listener, 0, len(s.listeners))
	for ln := range s.listeners {
		listeners = append(listeners, ln)
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		if err := ln.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn("Error closing listener", "error", err)
		}
	}
	for _, session := range sessions {
		session.Close()
	}
	s.log.Info("Closed client connections", "count", len(sessions))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Chat server shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Chat server shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown.Load() {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

func (s *Server) trackSession(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown.Load() {
		return false
	}
	s.sessions[session] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackSession(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
	s.wg.Done()
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, time.Second)
}
