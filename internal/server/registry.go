// Package server coordinates handle registration, message fan-out, and
// connection cleanup for the chat service via the Registry type.
package server

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// Mailbox is the outbound side of a session as seen by the Registry.
// Enqueue must never block; it reports false when the line was dropped.
type Mailbox interface {
	Enqueue(line string) bool
}

// Registry maps active handles to their mailboxes.
//
// Registration, removal and the announcements derived from them take the
// write lock, so a join or leave and its USER_LIST + notice pair are never
// interleaved with another mutation. Fan-out takes the read lock and only
// enqueues onto mailboxes; no network I/O happens while the lock is held.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Mailbox
	log     *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]Mailbox),
		log:     log,
	}
}

// TryRegister inserts handle if and only if it is absent.
func (r *Registry) TryRegister(handle string, mb Mailbox) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(handle, mb)
}

// Unregister removes handle. Removing an absent handle is a no-op; the
// return value reports whether anything was removed.
func (r *Registry) Unregister(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(handle)
}

// Join registers handle and, within the same critical section, enqueues
// ack to the new mailbox followed by the updated USER_LIST and the join
// notice to every active mailbox including the new one.
func (r *Registry) Join(handle string, mb Mailbox, ack protocol.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.insertLocked(handle, mb) {
		return false
	}
	if ack != nil {
		r.enqueueLocked(handle, mb, ack.Encode())
	}
	r.announceLocked(protocol.JoinNotice(handle))
	return true
}

// Leave unregisters handle and announces the updated USER_LIST and the
// departure notice to the remaining mailboxes. It is idempotent: a second
// call finds nothing to remove and announces nothing.
func (r *Registry) Leave(handle string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removeLocked(handle) {
		return false
	}
	r.announceLocked(protocol.LeaveNotice(handle))
	return true
}

// Snapshot returns the registered handles in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Lookup reports whether handle is registered.
func (r *Registry) Lookup(handle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[handle]
	return ok
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Broadcast enqueues frame to every mailbox registered when the call takes
// the read lock and returns how many accepted it.
func (r *Registry) Broadcast(frame protocol.Frame) int {
	line := frame.Encode()

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for handle, mb := range r.entries {
		if r.enqueueLocked(handle, mb, line) {
			delivered++
		}
	}
	return delivered
}

// Deliver enqueues frame to the mailbox registered under handle. Lookup and
// enqueue happen under one read lock so a concurrent Leave cannot release
// the mailbox in between.
func (r *Registry) Deliver(handle string, frame protocol.Frame) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mb, ok := r.entries[handle]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrRecipientNotFound, handle)
	}
	r.enqueueLocked(handle, mb, frame.Encode())
	return nil
}

func (r *Registry) insertLocked(handle string, mb Mailbox) bool {
	if _, taken := r.entries[handle]; taken {
		return false
	}
	r.entries[handle] = mb
	r.log.Info("Handle registered", "handle", handle, "active", len(r.entries))
	return true
}

func (r *Registry) removeLocked(handle string) bool {
	if _, ok := r.entries[handle]; !ok {
		return false
	}
	delete(r.entries, handle)
	r.log.Info("Handle unregistered", "handle", handle, "active", len(r.entries))
	return true
}

func (r *Registry) snapshotLocked() []string {
	handles := lo.Keys(r.entries)
	slices.Sort(handles)
	return handles
}

// announceLocked sends the current USER_LIST followed by notice to every
// mailbox. Callers hold the write lock.
func (r *Registry) announceLocked(notice protocol.Frame) {
	list := protocol.UserListSnapshot{Handles: r.snapshotLocked()}.Encode()
	text := notice.Encode()
	for handle, mb := range r.entries {
		r.enqueueLocked(handle, mb, list)
		r.enqueueLocked(handle, mb, text)
	}
}

func (r *Registry) enqueueLocked(handle string, mb Mailbox, line string) bool {
	if mb.Enqueue(line) {
		return true
	}
	r.log.Warn("Dropped outbound line; send queue full", "handle", handle)
	return false
}
