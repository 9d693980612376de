package router

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dm_core/internal/events"
	"dm_core/internal/registry"
)

type fakeConn struct {
	frames [][]byte
	full   bool
}

func (c *fakeConn) Send(frame []byte) bool {
	if c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

type missRecorder struct {
	missed []uuid.UUID
}

func (m *missRecorder) MissedEvent(userID uuid.UUID, _ events.Event) {
	m.missed = append(m.missed, userID)
}

func TestEmitToRegisteredUser(t *testing.T) {
	reg := registry.New()
	rt := New(reg, nil, slog.Default())

	userID := uuid.New()
	conn := &fakeConn{}
	reg.Register(userID, conn)

	require.True(t, rt.EmitToUser(userID, events.UserTyping{UserID: uuid.New()}))
	require.Len(t, conn.frames, 1)
}

func TestEmitToUnknownUserIsSilentDrop(t *testing.T) {
	reg := registry.New()
	rt := New(reg, nil, slog.Default())

	// Must not panic, block, or error.
	require.False(t, rt.EmitToUser(uuid.New(), events.UserTyping{UserID: uuid.New()}))
}

func TestEmitMissFeedsSink(t *testing.T) {
	reg := registry.New()
	sink := &missRecorder{}
	rt := New(reg, sink, slog.Default())

	userID := uuid.New()
	rt.EmitToUser(userID, events.NewMessage{})
	require.Equal(t, []uuid.UUID{userID}, sink.missed)
}

func TestEmitFullBufferIsDropNotMiss(t *testing.T) {
	reg := registry.New()
	sink := &missRecorder{}
	rt := New(reg, sink, slog.Default())

	userID := uuid.New()
	reg.Register(userID, &fakeConn{full: true})

	require.False(t, rt.EmitToUser(userID, events.NewMessage{}))
	// The user was reachable; the wedged connection is not an offline miss.
	require.Empty(t, sink.missed)
}

func TestEmitToAll(t *testing.T) {
	reg := registry.New()
	rt := New(reg, nil, slog.Default())

	a, b := &fakeConn{}, &fakeConn{}
	reg.Register(uuid.New(), a)
	reg.Register(uuid.New(), b)

	rt.EmitToAll(events.OnlineUsers{UserIDs: reg.ListUserIDs()})
	require.Len(t, a.frames, 1)
	require.Len(t, b.frames, 1)
}
