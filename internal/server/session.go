// Package server manages individual chat sessions, handling the handle
// handshake, the read loop, the outbound queue and exactly-once cleanup for
// each connection.
package server

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateUnauthenticated State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is the server side of one client connection. The reader
// goroutine (Run) owns the handshake, routing and cleanup; a writer
// goroutine drains the outbound queue onto the connection.
type Session struct {
	id       string
	conn     LineConn
	registry *Registry
	router   *Router
	log      *slog.Logger
	limiter  *rateLimiter

	maxHandleLength int

	send       chan string
	stop       chan struct{}
	stopOnce   sync.Once
	writerDone chan struct{}
	closeOnce  sync.Once

	state  atomic.Int32
	handle string
}

// NewSession creates a session in StateUnauthenticated. Nothing happens
// on the connection until Run is called.
func NewSession(conn LineConn, registry *Registry, router *Router, cfg Config, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:              id,
		conn:            conn,
		registry:        registry,
		router:          router,
		log:             log.With("session", id, "remote", conn.RemoteAddr()),
		limiter:         newRateLimiter(cfg.RateLimit),
		maxHandleLength: cfg.MaxHandleLength,
		send:            make(chan string, cfg.QueueSize),
		stop:            make(chan struct{}),
		writerDone:      make(chan struct{}),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Handle returns the registered handle, or "" before the session is ACTIVE.
// It is only meaningful once Run has returned or from the reader goroutine.
func (s *Session) Handle() string { return s.handle }

// Enqueue implements Mailbox. When the queue is full the line is dropped
// and the session is stopped; its reader then runs the normal cleanup.
func (s *Session) Enqueue(line string) bool {
	select {
	case s.send <- line:
		return true
	default:
		s.signalStop()
		return false
	}
}

// Close forces the session down from any goroutine. Cleanup still runs
// exactly once, on the reader goroutine.
func (s *Session) Close() {
	if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn("Error closing connection", "error", err)
	}
}

// Run performs the handshake and then routes inbound lines until the peer
// disconnects or the connection fails. It always leaves the session CLOSED
// with its handle unregistered.
func (s *Session) Run() {
	go s.writeLoop()
	defer s.terminate()

	s.log.Debug("Session started")
	if !s.handshake() {
		return
	}
	s.readLoop()
}

func (s *Session) handshake() bool {
	for {
		s.enqueue(protocol.SubmitName)

		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadError(err)
			s.enqueue(protocol.ForceExit)
			return false
		}

		candidate := strings.TrimSpace(line)
		switch {
		case candidate == protocol.NullHandle:
			s.log.Info("Client declined to submit a handle")
			s.enqueue(protocol.ForceExit)
			return false
		case candidate == "":
			continue
		}

		if err := protocol.ValidateHandle(candidate, s.maxHandleLength); err != nil {
			s.log.Debug("Rejected handle", "candidate", candidate, "error", err)
			continue
		}

		if !s.registry.Join(candidate, s, protocol.NameAccepted) {
			s.log.Debug("Rejected handle", "candidate", candidate, "error", protocol.ErrNameCollision)
			continue
		}

		s.handle = candidate
		s.state.Store(int32(StateActive))
		s.log.Info("Session active", "handle", candidate)
		return true
	}
}

func (s *Session) readLoop() {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadError(err)
			return
		}

		if !s.limiter.allow() {
			s.log.Warn("Rate limit exceeded; discarding line", "handle", s.handle)
			s.enqueue(protocol.RateLimited)
			continue
		}

		if err := s.router.Route(s.handle, s, line); err != nil {
			s.log.Debug("Line not fully delivered", "handle", s.handle, "error", err)
		}
	}
}

// writeLoop drains the outbound queue until it is closed by terminate or
// the session is stopped.
func (s *Session) writeLoop() {
	defer close(s.writerDone)

	for {
		select {
		case line, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.WriteLine(line); err != nil {
				if !isExpectedCloseError(err) {
					s.log.Warn("Write failed", "error", err)
				}
				s.Close()
				return
			}
		case <-s.stop:
			s.log.Warn("Send queue full; closing slow session")
			return
		}
	}
}

// terminate runs the cleanup sequence once: mark CLOSED, unregister and
// announce the departure, flush and stop the writer, release the
// connection.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		if s.handle != "" {
			s.registry.Leave(s.handle)
		}

		// No registry path references this mailbox after Leave.
		close(s.send)
		<-s.writerDone

		s.Close()
		s.log.Info("Session closed", "handle", s.handle)
	})
}

func (s *Session) enqueue(frame protocol.Frame) {
	s.Enqueue(frame.Encode())
}

// signalStop never blocks: it may run under the registry lock.
func (s *Session) signalStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		go s.Close()
	})
}

func (s *Session) logReadError(err error) {
	if isExpectedCloseError(err) {
		s.log.Info("Client disconnected")
		return
	}
	if errors.Is(err, errLineTooLong) {
		s.log.Warn("Line exceeded maximum length; closing session")
		return
	}
	s.log.Warn("Read failed", "error", err)
}
