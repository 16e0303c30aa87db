// Package server implements the chat session manager and message router.
//
// The implementation is organized into specialized files for configuration,
// the handle registry, sessions, routing, transports, and HTTP handlers. A
// Server accepts raw TCP connections and, through its HTTP gateway,
// WebSocket connections; both speak the same line protocol defined in
// package protocol.
package server
