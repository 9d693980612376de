package registry

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	frames [][]byte
}

func (c *fakeConn) Send(frame []byte) bool {
	c.frames = append(c.frames, frame)
	return true
}

func TestRegisterAndLookup(t *testing.T) {
	reg := New()
	userID := uuid.New()

	_, ok := reg.Lookup(userID)
	require.False(t, ok)
	require.False(t, reg.IsOnline(userID))

	conn := &fakeConn{}
	superseded := reg.Register(userID, conn)
	require.False(t, superseded)

	got, ok := reg.Lookup(userID)
	require.True(t, ok)
	require.Same(t, conn, got.(*fakeConn))
	require.True(t, reg.IsOnline(userID))
}

func TestRegisterSupersedesPreviousConnection(t *testing.T) {
	reg := New()
	userID := uuid.New()

	old := &fakeConn{}
	reg.Register(userID, old)

	newer := &fakeConn{}
	superseded := reg.Register(userID, newer)
	require.True(t, superseded)

	got, ok := reg.Lookup(userID)
	require.True(t, ok)
	require.Same(t, newer, got.(*fakeConn))
}

func TestUnregisterGuardsAgainstStaleHandle(t *testing.T) {
	reg := New()
	userID := uuid.New()

	old := &fakeConn{}
	reg.Register(userID, old)
	newer := &fakeConn{}
	reg.Register(userID, newer)

	// The old connection's disconnect callback fires late; it must not
	// remove the newer mapping.
	require.False(t, reg.Unregister(userID, old))
	require.True(t, reg.IsOnline(userID))

	require.True(t, reg.Unregister(userID, newer))
	require.False(t, reg.IsOnline(userID))
}

func TestUnregisterUnknownUser(t *testing.T) {
	reg := New()
	require.False(t, reg.Unregister(uuid.New(), &fakeConn{}))
}

func TestListUserIDs(t *testing.T) {
	reg := New()
	a, b := uuid.New(), uuid.New()
	reg.Register(a, &fakeConn{})
	reg.Register(b, &fakeConn{})

	ids := reg.ListUserIDs()
	require.Len(t, ids, 2)
	require.ElementsMatch(t, []uuid.UUID{a, b}, ids)

	reg.Unregister(a, mustLookup(t, reg, a))
	require.ElementsMatch(t, []uuid.UUID{b}, reg.ListUserIDs())
}

func mustLookup(t *testing.T, reg *Registry, userID uuid.UUID) Conn {
	t.Helper()
	c, ok := reg.Lookup(userID)
	require.True(t, ok)
	return c
}
