package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"dm_core/internal/chat"
	"dm_core/internal/domain"
	"dm_core/internal/presence"
	"dm_core/internal/registry"
	"dm_core/internal/router"
	"dm_core/internal/store"
)

type fakeConn struct {
	frames [][]byte
}

func (c *fakeConn) Send(frame []byte) bool {
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) eventNames(t *testing.T) []string {
	t.Helper()
	var names []string
	for _, raw := range c.frames {
		var f struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(raw, &f))
		names = append(names, f.Event)
	}
	return names
}

type fakeBlob struct{}

func (fakeBlob) Save(context.Context, string) (string, error) { return "/uploads/x.png", nil }

type dispatchFixture struct {
	handler *Handler
	reg     *registry.Registry
	msgs    *store.MemoryStore
	dir     *store.MemoryDirectory
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	log := slog.Default()
	reg := registry.New()
	rt := router.New(reg, nil, log)
	tracker := presence.NewTracker(reg, rt, log)
	msgs := store.NewMemoryStore()
	dir := store.NewMemoryDirectory()
	svc := chat.NewService(msgs, dir, reg, rt, fakeBlob{}, log)
	return &dispatchFixture{
		handler: NewHandler(reg, tracker, svc, nil, log, 20, 40),
		reg:     reg,
		msgs:    msgs,
		dir:     dir,
	}
}

func (f *dispatchFixture) session(userID uuid.UUID) *Client {
	return &Client{
		userID:  userID,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		h:       f.handler,
	}
}

func rawFrame(t *testing.T, event string, data any) inboundFrame {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return inboundFrame{Event: event, Data: b}
}

func TestDispatchTypingRelaysToPeer(t *testing.T) {
	f := newDispatchFixture(t)
	alice, bob := uuid.New(), uuid.New()
	bobConn := &fakeConn{}
	f.reg.Register(bob, bobConn)

	c := f.session(alice)
	c.dispatch(rawFrame(t, "typing", map[string]string{"receiverId": bob.String()}))
	c.dispatch(rawFrame(t, "stopTyping", map[string]string{"receiverId": bob.String()}))

	require.Equal(t, []string{"userTyping", "userStoppedTyping"}, bobConn.eventNames(t))
}

func TestDispatchViewingAndLeaving(t *testing.T) {
	f := newDispatchFixture(t)
	alice, bob := uuid.New(), uuid.New()
	bobConn := &fakeConn{}
	f.reg.Register(bob, bobConn)

	c := f.session(alice)
	c.dispatch(rawFrame(t, "viewingChat", map[string]string{"chatPartnerId": bob.String()}))
	c.dispatch(rawFrame(t, "leftChat", map[string]string{"chatPartnerId": bob.String()}))

	require.Equal(t, []string{"userViewingChat", "userLeftChat"}, bobConn.eventNames(t))
}

func TestDispatchMarkAsReadPersistsAndNotifies(t *testing.T) {
	f := newDispatchFixture(t)
	alice, bob := uuid.New(), uuid.New()
	f.dir.AddUser(domain.User{ID: alice, Username: "alice"})
	f.dir.AddUser(domain.User{ID: bob, Username: "bob"})

	aliceConn := &fakeConn{}
	f.reg.Register(alice, aliceConn)

	msg := &domain.Message{
		ID:         uuid.New(),
		SenderID:   alice,
		ReceiverID: bob,
		Text:       "unread",
		Reactions:  []domain.Reaction{},
	}
	require.NoError(t, f.msgs.Insert(context.Background(), msg))

	c := f.session(bob)
	c.dispatch(rawFrame(t, "markAsRead", map[string]string{"senderId": alice.String()}))

	stored, err := f.msgs.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	require.True(t, stored.IsRead)
	require.Contains(t, aliceConn.eventNames(t), "messagesRead")
}

func TestDispatchIgnoresUnknownAndMalformedFrames(t *testing.T) {
	f := newDispatchFixture(t)
	c := f.session(uuid.New())

	c.dispatch(inboundFrame{Event: "mystery", Data: []byte(`{}`)})
	c.dispatch(inboundFrame{Event: "typing", Data: []byte(`not json`)})
	c.dispatch(inboundFrame{Event: "typing", Data: []byte(`{}`)})
}

func TestClientSendAfterTeardown(t *testing.T) {
	f := newDispatchFixture(t)
	c := f.session(uuid.New())
	close(c.done)
	require.False(t, c.Send([]byte(`{}`)))
}
