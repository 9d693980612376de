package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize  = 64 * 1024
	sendQueueSize = 256

	opTimeout = 5 * time.Second
)

// Client is one authenticated websocket session. It implements
// registry.Conn; all per-connection state lives here rather than in
// closures over the handler.
type Client struct {
	userID  uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	h       *Handler
}

func newClient(h *Handler, userID uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(h.eventRPS), h.eventBurst),
		h:       h,
	}
}

// Send queues an outbound frame without blocking. It reports false when the
// session is closing or the queue is full.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// inboundFrame mirrors the outbound envelope: named event plus payload.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type typingPayload struct {
	ReceiverID uuid.UUID `json:"receiverId"`
}

type markAsReadPayload struct {
	SenderID uuid.UUID `json:"senderId"`
}

type viewingPayload struct {
	ChatPartnerID uuid.UUID `json:"chatPartnerId"`
}

func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			c.h.log.Warn("inbound event rate exceeded, frame dropped", "user", c.userID)
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.h.log.Warn("unparsable inbound frame", "user", c.userID, "err", err)
			continue
		}
		c.dispatch(frame)
	}
}

// dispatch routes one inbound client event. Unknown events are ignored so
// old servers tolerate newer clients.
func (c *Client) dispatch(frame inboundFrame) {
	switch frame.Event {
	case "typing":
		var p typingPayload
		if json.Unmarshal(frame.Data, &p) == nil && p.ReceiverID != uuid.Nil {
			c.h.tracker.StartTyping(c.userID, p.ReceiverID)
		}
	case "stopTyping":
		var p typingPayload
		if json.Unmarshal(frame.Data, &p) == nil && p.ReceiverID != uuid.Nil {
			c.h.tracker.StopTyping(c.userID, p.ReceiverID)
		}
	case "markAsRead":
		var p markAsReadPayload
		if json.Unmarshal(frame.Data, &p) != nil || p.SenderID == uuid.Nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if _, err := c.h.svc.MarkRead(ctx, c.userID, p.SenderID); err != nil {
			c.h.log.Error("markAsRead failed", "user", c.userID, "err", err)
		}
	case "viewingChat":
		var p viewingPayload
		if json.Unmarshal(frame.Data, &p) == nil && p.ChatPartnerID != uuid.Nil {
			c.h.tracker.StartViewing(c.userID, p.ChatPartnerID)
		}
	case "leftChat":
		var p viewingPayload
		if json.Unmarshal(frame.Data, &p) == nil && p.ChatPartnerID != uuid.Nil {
			c.h.tracker.StopViewing(c.userID, p.ChatPartnerID)
		}
	default:
		c.h.log.Debug("unknown inbound event", "user", c.userID, "event", frame.Event)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// teardown runs exactly once when the session ends. The registry guard keeps
// a stale teardown from touching a newer connection of the same user.
func (c *Client) teardown() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
		if c.h.reg.Unregister(c.userID, c) {
			c.h.onDisconnect(c.userID)
		}
	})
}
