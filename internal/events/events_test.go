package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMarshalEnvelopeShape(t *testing.T) {
	userID := uuid.New()
	frame, err := Marshal(UserTyping{UserID: userID})
	require.NoError(t, err)

	var decoded struct {
		Event string `json:"event"`
		Data  struct {
			UserID uuid.UUID `json:"userId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	require.Equal(t, "userTyping", decoded.Event)
	require.Equal(t, userID, decoded.Data.UserID)
}

func TestEventNamesMatchWireProtocol(t *testing.T) {
	cases := map[string]Event{
		"newMessage":        NewMessage{},
		"messageEdited":     MessageEdited{},
		"messageDeleted":    MessageDeleted{},
		"messageReaction":   MessageReaction{},
		"messagesRead":      MessagesRead{},
		"userTyping":        UserTyping{},
		"userStoppedTyping": UserStoppedTyping{},
		"userViewingChat":   UserViewingChat{},
		"userLeftChat":      UserLeftChat{},
		"getOnlineUsers":    OnlineUsers{},
	}
	for name, ev := range cases {
		require.Equal(t, name, ev.Name())
	}
}
