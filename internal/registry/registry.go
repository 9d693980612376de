// Package registry tracks which users currently hold a live connection.
// It is the single source of truth for reachability; presence is derived
// from its membership.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is one live push channel to a user's client. Send must not block;
// it reports false when the frame could not be queued.
type Conn interface {
	Send(frame []byte) bool
}

// Registry maps a user to at most one active connection. A new connection
// for the same user supersedes the previous entry; the superseded handle is
// orphaned and receives no further routed events.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[uuid.UUID]Conn)}
}

// Register installs or overwrites the mapping for userID. It reports
// whether an existing connection was superseded.
func (r *Registry) Register(userID uuid.UUID, c Conn) (superseded bool) {
	r.mu.Lock()
	_, superseded = r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()
	return superseded
}

// Unregister removes the mapping only if c is still the registered handle.
// This guards a stale disconnect callback against removing a newer
// connection for the same user. It reports whether an entry was removed.
func (r *Registry) Unregister(userID uuid.UUID, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[userID]; ok && cur == c {
		delete(r.conns, userID)
		return true
	}
	return false
}

// Lookup returns the active connection for userID, if any.
func (r *Registry) Lookup(userID uuid.UUID) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[userID]
	r.mu.RUnlock()
	return c, ok
}

// IsOnline reports whether userID has an active connection right now.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// ListUserIDs returns a snapshot of all currently registered users.
func (r *Registry) ListUserIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}
