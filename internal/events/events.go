// Package events defines the outbound realtime event set. Each event is its
// own variant with a typed payload; the websocket layer serializes the
// envelope exactly once, at the transport boundary.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"dm_core/internal/domain"
)

// Event is one outbound realtime event. Name is the wire name the client
// subscribes to; the value itself is the payload.
type Event interface {
	Name() string
}

type NewMessage struct {
	Message *domain.Message `json:"message"`
}

func (NewMessage) Name() string { return "newMessage" }

type MessageEdited struct {
	MessageID uuid.UUID `json:"messageId"`
	Text      string    `json:"text"`
}

func (MessageEdited) Name() string { return "messageEdited" }

type MessageDeleted struct {
	MessageID uuid.UUID `json:"messageId"`
}

func (MessageDeleted) Name() string { return "messageDeleted" }

// MessageReaction carries both toggle directions; Removed distinguishes a
// toggle-off from an add so clients do not have to diff local state.
type MessageReaction struct {
	MessageID uuid.UUID       `json:"messageId"`
	Reaction  domain.Reaction `json:"reaction"`
	Removed   bool            `json:"removed"`
}

func (MessageReaction) Name() string { return "messageReaction" }

type MessagesRead struct {
	ReaderID   uuid.UUID   `json:"readerId"`
	MessageIDs []uuid.UUID `json:"messageIds"`
}

func (MessagesRead) Name() string { return "messagesRead" }

type UserTyping struct {
	UserID uuid.UUID `json:"userId"`
}

func (UserTyping) Name() string { return "userTyping" }

type UserStoppedTyping struct {
	UserID uuid.UUID `json:"userId"`
}

func (UserStoppedTyping) Name() string { return "userStoppedTyping" }

type UserViewingChat struct {
	UserID uuid.UUID `json:"userId"`
}

func (UserViewingChat) Name() string { return "userViewingChat" }

type UserLeftChat struct {
	UserID uuid.UUID `json:"userId"`
}

func (UserLeftChat) Name() string { return "userLeftChat" }

// OnlineUsers is the full presence snapshot, broadcast to everyone on every
// connect and disconnect.
type OnlineUsers struct {
	UserIDs []uuid.UUID `json:"userIds"`
}

func (OnlineUsers) Name() string { return "getOnlineUsers" }

// Envelope is the wire frame for an outbound event.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Marshal encodes ev into its wire frame.
func Marshal(ev Event) ([]byte, error) {
	b, err := json.Marshal(envelope{Event: ev.Name(), Data: ev})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Name(), err)
	}
	return b, nil
}
