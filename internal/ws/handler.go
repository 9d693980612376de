// Package ws is the realtime transport: it upgrades authenticated
// connections, feeds their lifecycle into the registry and presence tracker,
// and relays inbound client events into the core.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dm_core/internal/auth"
	"dm_core/internal/chat"
	"dm_core/internal/metrics"
	"dm_core/internal/presence"
	"dm_core/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, restrict to configured origins.
		return true
	},
}

type Handler struct {
	reg      *registry.Registry
	tracker  *presence.Tracker
	svc      *chat.Service
	verifier *auth.Verifier
	log      *slog.Logger

	eventRPS   float64
	eventBurst int
}

func NewHandler(reg *registry.Registry, tracker *presence.Tracker, svc *chat.Service,
	verifier *auth.Verifier, log *slog.Logger, eventRPS float64, eventBurst int) *Handler {
	return &Handler{
		reg:        reg,
		tracker:    tracker,
		svc:        svc,
		verifier:   verifier,
		log:        log,
		eventRPS:   eventRPS,
		eventBurst: eventBurst,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := newClient(h, userID, conn)

	// Last-write-wins: a reconnect supersedes the previous entry, whose
	// handle is orphaned from this point on.
	if !h.reg.Register(userID, c) {
		metrics.ActiveConnections.Inc()
	}
	h.tracker.HandleConnect(userID)

	go c.writePump()
	go c.readPump()
}

// onDisconnect runs after a guarded unregister succeeded.
func (h *Handler) onDisconnect(userID uuid.UUID) {
	metrics.ActiveConnections.Dec()
	h.tracker.HandleDisconnect(userID)
}
