package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxTextLen caps the text of a single message, counted in characters.
const MaxTextLen = 2000

type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reaction is one (user, emoji) pair attached to a message. The pair is
// unique within a message; reacting again with the same emoji toggles it off.
type Reaction struct {
	UserID uuid.UUID `json:"userId"`
	Emoji  string    `json:"emoji"`
}

type Message struct {
	ID          uuid.UUID  `json:"id"`
	SenderID    uuid.UUID  `json:"senderId"`
	ReceiverID  uuid.UUID  `json:"receiverId"`
	Text        string     `json:"text,omitempty"`
	ImageURL    string     `json:"image,omitempty"`
	ReplyTo     *uuid.UUID `json:"replyTo,omitempty"`
	IsEdited    bool       `json:"isEdited"`
	IsDelivered bool       `json:"isDelivered"`
	IsRead      bool       `json:"isRead"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	Reactions   []Reaction `json:"reactions"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// HasReaction reports whether the exact (userID, emoji) pair is present.
func (m *Message) HasReaction(userID uuid.UUID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// ToggleReaction adds the pair if absent and removes it if present.
// It reports whether the pair was removed.
func (m *Message) ToggleReaction(userID uuid.UUID, emoji string) (removed bool) {
	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return true
		}
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji})
	return false
}

// OtherParticipant returns the conversation peer of userID.
func (m *Message) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// NormalizeText trims text the way the store persists it.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

// UnreadSummary is the per-sender aggregate shown on the chat list.
type UnreadSummary struct {
	Count           int       `json:"count"`
	LastMessage     string    `json:"lastMessage,omitempty"`
	LastMessageTime time.Time `json:"lastMessageTime"`
}

// ChatPartner is a user the subject has exchanged at least one message with.
type ChatPartner struct {
	User
	UnreadCount int `json:"unreadCount"`
}
