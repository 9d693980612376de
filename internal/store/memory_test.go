package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"dm_core/internal/domain"
)

func TestFindConversationCopiesReactions(t *testing.T) {
	s := NewMemoryStore()
	a, b := uuid.New(), uuid.New()
	msg := &domain.Message{
		ID:         uuid.New(),
		SenderID:   a,
		ReceiverID: b,
		Text:       "hi",
		Reactions:  []domain.Reaction{{UserID: b, Emoji: "👍"}},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, s.Insert(context.Background(), msg))

	got, err := s.FindConversation(context.Background(), a, b)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Mutating the returned slice must not leak into stored state.
	got[0].Reactions[0].Emoji = "💥"
	got[0].Reactions = append(got[0].Reactions, domain.Reaction{UserID: a, Emoji: "🙂"})

	stored, err := s.FindByID(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Equal(t, []domain.Reaction{{UserID: b, Emoji: "👍"}}, stored.Reactions)
}
