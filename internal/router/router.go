// Package router delivers realtime events to connections looked up in the
// registry. Delivery is at-most-once and best-effort: if the target has no
// registered connection the event is dropped, never queued or retried. The
// durable store is the only guaranteed record.
package router

import (
	"log/slog"

	"github.com/google/uuid"

	"dm_core/internal/events"
	"dm_core/internal/metrics"
	"dm_core/internal/registry"
)

// MissSink observes events that were dropped because their target was
// unreachable. It must not block and must not influence the operation
// outcome; the offline-push pipeline hangs off this hook.
type MissSink interface {
	MissedEvent(userID uuid.UUID, ev events.Event)
}

type Router struct {
	reg  *registry.Registry
	miss MissSink // may be nil
	log  *slog.Logger
}

func New(reg *registry.Registry, miss MissSink, log *slog.Logger) *Router {
	return &Router{reg: reg, miss: miss, log: log}
}

// EmitToUser pushes ev to userID's connection if one is registered. It
// reports whether the event was handed to a connection. A miss is a normal
// outcome, not an error.
func (rt *Router) EmitToUser(userID uuid.UUID, ev events.Event) bool {
	frame, err := events.Marshal(ev)
	if err != nil {
		rt.log.Error("drop unmarshalable event", "event", ev.Name(), "err", err)
		return false
	}

	conn, ok := rt.reg.Lookup(userID)
	if !ok {
		metrics.EventsDropped.WithLabelValues(ev.Name()).Inc()
		if rt.miss != nil {
			rt.miss.MissedEvent(userID, ev)
		}
		return false
	}

	if !conn.Send(frame) {
		// Send buffer full: the connection is wedged and its pumps will tear
		// it down. Treat as a drop.
		metrics.EventsDropped.WithLabelValues(ev.Name()).Inc()
		rt.log.Warn("send buffer full, event dropped", "user", userID, "event", ev.Name())
		return false
	}

	metrics.EventsEmitted.WithLabelValues(ev.Name()).Inc()
	return true
}

// EmitToAll pushes ev to every registered connection. Used only for
// presence snapshots.
func (rt *Router) EmitToAll(ev events.Event) {
	frame, err := events.Marshal(ev)
	if err != nil {
		rt.log.Error("drop unmarshalable event", "event", ev.Name(), "err", err)
		return
	}
	for _, userID := range rt.reg.ListUserIDs() {
		conn, ok := rt.reg.Lookup(userID)
		if !ok {
			continue
		}
		if conn.Send(frame) {
			metrics.EventsEmitted.WithLabelValues(ev.Name()).Inc()
		} else {
			metrics.EventsDropped.WithLabelValues(ev.Name()).Inc()
		}
	}
}
