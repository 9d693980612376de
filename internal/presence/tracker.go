// Package presence derives the online-user set from the connection registry
// and tracks the ephemeral typing / viewing indicators between peers.
// Nothing here is persisted; a process restart simply forgets it all.
package presence

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"dm_core/internal/events"
	"dm_core/internal/registry"
	"dm_core/internal/router"
)

type Tracker struct {
	reg *registry.Registry
	rt  *router.Router
	log *slog.Logger

	mu sync.Mutex
	// subject -> peer. One active entry per subject and kind; a new start
	// for a different peer supersedes the old one.
	typing  map[uuid.UUID]uuid.UUID
	viewing map[uuid.UUID]uuid.UUID
}

func NewTracker(reg *registry.Registry, rt *router.Router, log *slog.Logger) *Tracker {
	return &Tracker{
		reg:     reg,
		rt:      rt,
		log:     log,
		typing:  make(map[uuid.UUID]uuid.UUID),
		viewing: make(map[uuid.UUID]uuid.UUID),
	}
}

// HandleConnect broadcasts the full online snapshot after userID registered.
func (t *Tracker) HandleConnect(userID uuid.UUID) {
	t.log.Info("user connected", "user", userID)
	t.broadcastOnline()
}

// HandleDisconnect clears any ephemeral state the user left behind and
// broadcasts the shrunk online snapshot. The client never signals leftChat
// or stopTyping on a dropped connection, so cleanup happens here.
func (t *Tracker) HandleDisconnect(userID uuid.UUID) {
	t.mu.Lock()
	viewingPeer, wasViewing := t.viewing[userID]
	typingPeer, wasTyping := t.typing[userID]
	delete(t.viewing, userID)
	delete(t.typing, userID)
	t.mu.Unlock()

	if wasViewing {
		t.rt.EmitToUser(viewingPeer, events.UserLeftChat{UserID: userID})
	}
	if wasTyping {
		t.rt.EmitToUser(typingPeer, events.UserStoppedTyping{UserID: userID})
	}

	t.log.Info("user disconnected", "user", userID)
	t.broadcastOnline()
}

// StartTyping records the indicator and notifies the peer if reachable.
// Repeated starts are idempotent; re-emitting is harmless.
func (t *Tracker) StartTyping(subject, peer uuid.UUID) {
	t.mu.Lock()
	t.typing[subject] = peer
	t.mu.Unlock()
	t.rt.EmitToUser(peer, events.UserTyping{UserID: subject})
}

// StopTyping clears the indicator. A stop with no active entry is a no-op.
func (t *Tracker) StopTyping(subject, peer uuid.UUID) {
	t.mu.Lock()
	cur, ok := t.typing[subject]
	if ok && cur == peer {
		delete(t.typing, subject)
	}
	t.mu.Unlock()
	if !ok || cur != peer {
		return
	}
	t.rt.EmitToUser(peer, events.UserStoppedTyping{UserID: subject})
}

// StartViewing records that subject has peer's chat open and notifies peer.
func (t *Tracker) StartViewing(subject, peer uuid.UUID) {
	t.mu.Lock()
	t.viewing[subject] = peer
	t.mu.Unlock()
	t.rt.EmitToUser(peer, events.UserViewingChat{UserID: subject})
}

// StopViewing clears the entry and notifies peer.
func (t *Tracker) StopViewing(subject, peer uuid.UUID) {
	t.mu.Lock()
	cur, ok := t.viewing[subject]
	if ok && cur == peer {
		delete(t.viewing, subject)
	}
	t.mu.Unlock()
	if !ok || cur != peer {
		return
	}
	t.rt.EmitToUser(peer, events.UserLeftChat{UserID: subject})
}

// broadcastOnline pushes the full online-user list to every connection.
// Full snapshot rather than a delta: O(N) per churn event, fine at this scale.
func (t *Tracker) broadcastOnline() {
	t.rt.EmitToAll(events.OnlineUsers{UserIDs: t.reg.ListUserIDs()})
}
