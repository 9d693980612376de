// Package store owns the durable side of the system: messages and the user
// directory. The lifecycle engine talks to these interfaces; the Postgres
// implementations live alongside, and an in-memory one backs the tests.
package store

import (
	"context"

	"github.com/google/uuid"

	"dm_core/internal/domain"
)

// Patch is a partial update to a message's mutable fields. Nil fields are
// left untouched.
type Patch struct {
	Text      *string
	IsEdited  *bool
	Reactions *[]domain.Reaction
}

type MessageStore interface {
	// Insert persists a fully-formed message. The caller assigns ID,
	// CreatedAt and the delivery snapshot before calling.
	Insert(ctx context.Context, msg *domain.Message) error

	// FindByID returns domain.ErrNotFound when the id is unknown.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)

	// FindConversation returns both directions of traffic between the two
	// users, ordered by insertion time ascending.
	FindConversation(ctx context.Context, userA, userB uuid.UUID) ([]*domain.Message, error)

	// UpdateFields applies patch to the message, or domain.ErrNotFound.
	UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) error

	// DeleteByID hard-removes the message, or domain.ErrNotFound.
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// BulkUpdateUnread flips every unread message from senderID to
	// receiverID to read in one atomic update and returns the affected ids.
	// A send racing this call is simply not part of the batch.
	BulkUpdateUnread(ctx context.Context, receiverID, senderID uuid.UUID) ([]uuid.UUID, error)

	// AggregateUnreadBySender returns, per sender, the unread count and the
	// latest unread message preview for receiverID.
	AggregateUnreadBySender(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]domain.UnreadSummary, error)

	// ListPartnerIDs returns every user receiverID has exchanged at least
	// one message with, in either direction.
	ListPartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type UserDirectory interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	FindByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// ListOthers returns every user except the excluded one.
	ListOthers(ctx context.Context, excluding uuid.UUID) ([]domain.User, error)
}
