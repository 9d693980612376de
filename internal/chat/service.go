// Package chat is the message lifecycle engine: the single writer for a
// message's send / edit / delete / react / read transitions. All checks run
// before any mutation, so a rejected request never leaves partial state.
// Realtime notification is best-effort and never fails the operation.
package chat

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"dm_core/internal/blob"
	"dm_core/internal/domain"
	"dm_core/internal/events"
	"dm_core/internal/metrics"
	"dm_core/internal/registry"
	"dm_core/internal/router"
	"dm_core/internal/store"
)

type Service struct {
	messages store.MessageStore
	users    store.UserDirectory
	reg      *registry.Registry
	rt       *router.Router
	blobs    blob.Store
	log      *slog.Logger
}

func NewService(messages store.MessageStore, users store.UserDirectory, reg *registry.Registry,
	rt *router.Router, blobs blob.Store, log *slog.Logger) *Service {
	return &Service{
		messages: messages,
		users:    users,
		reg:      reg,
		rt:       rt,
		blobs:    blobs,
		log:      log,
	}
}

// SendInput is the client-supplied part of a send request. Image is an
// inbound payload (data URL), not a stored URL.
type SendInput struct {
	Text    string     `json:"text"`
	Image   string     `json:"image"`
	ReplyTo *uuid.UUID `json:"replyTo"`
}

// Send validates, persists and announces a new message. The delivery flag is
// a snapshot of the receiver's reachability at the instant of persistence and
// is never recomputed.
func (s *Service) Send(ctx context.Context, senderID, receiverID uuid.UUID, in SendInput) (*domain.Message, error) {
	// Every precondition runs before the blob write, so a rejected send
	// leaves no orphaned object behind.
	if _, err := s.validateSend(ctx, senderID, receiverID, in.Text, in.Image != ""); err != nil {
		return nil, err
	}

	var imageURL string
	if in.Image != "" {
		url, err := s.blobs.Save(ctx, in.Image)
		if err != nil {
			return nil, err
		}
		imageURL = url
	}
	return s.create(ctx, senderID, receiverID, in.Text, imageURL, in.ReplyTo)
}

// validateSend runs every send precondition and returns the normalized text.
// Nothing may be written before it passes.
func (s *Service) validateSend(ctx context.Context, senderID, receiverID uuid.UUID, text string, hasImage bool) (string, error) {
	if senderID == receiverID {
		return "", domain.Validationf("cannot send messages to yourself")
	}
	text = domain.NormalizeText(text)
	if text == "" && !hasImage {
		return "", domain.Validationf("text or image is required")
	}
	// Characters, not bytes.
	if utf8.RuneCountInString(text) > domain.MaxTextLen {
		return "", domain.Validationf("text exceeds %d characters", domain.MaxTextLen)
	}

	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", domain.NotFoundf("receiver %s", receiverID)
	}
	return text, nil
}

// create is the shared persistence path for Send and Forward; imageURL is
// already a stored URL here.
func (s *Service) create(ctx context.Context, senderID, receiverID uuid.UUID, text, imageURL string, replyTo *uuid.UUID) (*domain.Message, error) {
	text, err := s.validateSend(ctx, senderID, receiverID, text, imageURL != "")
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		ImageURL:   imageURL,
		ReplyTo:    replyTo,
		// Online-ness at send time; deliberately coarse and final.
		IsDelivered: s.reg.IsOnline(receiverID),
		Reactions:   []domain.Reaction{},
		CreatedAt:   time.Now(),
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	s.rt.EmitToUser(receiverID, events.NewMessage{Message: msg})
	return msg, nil
}

// Edit replaces the text of the requester's own message.
func (s *Service) Edit(ctx context.Context, messageID, requesterID uuid.UUID, newText string) (*domain.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, domain.Forbiddenf("you can only edit your own messages")
	}

	newText = domain.NormalizeText(newText)
	if newText == "" && msg.ImageURL == "" {
		return nil, domain.Validationf("text is required")
	}
	if utf8.RuneCountInString(newText) > domain.MaxTextLen {
		return nil, domain.Validationf("text exceeds %d characters", domain.MaxTextLen)
	}

	edited := true
	if err := s.messages.UpdateFields(ctx, messageID, store.Patch{Text: &newText, IsEdited: &edited}); err != nil {
		return nil, err
	}
	msg.Text = newText
	msg.IsEdited = true

	s.rt.EmitToUser(msg.ReceiverID, events.MessageEdited{MessageID: msg.ID, Text: msg.Text})
	return msg, nil
}

// Delete hard-removes the requester's own message. Deleting an id that is
// already gone reports not-found, not success.
func (s *Service) Delete(ctx context.Context, messageID, requesterID uuid.UUID) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return domain.Forbiddenf("you can only delete your own messages")
	}

	if err := s.messages.DeleteByID(ctx, messageID); err != nil {
		return err
	}

	s.rt.EmitToUser(msg.ReceiverID, events.MessageDeleted{MessageID: messageID})
	return nil
}

// React toggles the (userID, emoji) pair on the message and notifies the
// other participant, with an explicit removed flag on the event.
func (s *Service) React(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*domain.Message, error) {
	if emoji == "" {
		return nil, domain.Validationf("emoji is required")
	}

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID && msg.ReceiverID != userID {
		return nil, domain.Forbiddenf("only conversation participants can react")
	}

	removed := msg.ToggleReaction(userID, emoji)
	if err := s.messages.UpdateFields(ctx, messageID, store.Patch{Reactions: &msg.Reactions}); err != nil {
		return nil, err
	}

	s.rt.EmitToUser(msg.OtherParticipant(userID), events.MessageReaction{
		MessageID: msg.ID,
		Reaction:  domain.Reaction{UserID: userID, Emoji: emoji},
		Removed:   removed,
	})
	return msg, nil
}

// MarkRead flips every unread message from senderID to readerID in one batch
// and notifies the sender once. Calling it again with nothing unread is a
// no-op that emits nothing.
func (s *Service) MarkRead(ctx context.Context, readerID, senderID uuid.UUID) (int, error) {
	ids, err := s.messages.BulkUpdateUnread(ctx, readerID, senderID)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.rt.EmitToUser(senderID, events.MessagesRead{ReaderID: readerID, MessageIDs: ids})
	return len(ids), nil
}

// Forward sends a copy of the message to each target. Content is copied,
// not referenced; later edits to the original do not propagate.
func (s *Service) Forward(ctx context.Context, messageID, requesterID uuid.UUID, targets []uuid.UUID) ([]*domain.Message, error) {
	if len(targets) == 0 {
		return nil, domain.Validationf("at least one target is required")
	}

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
		return nil, domain.Forbiddenf("only conversation participants can forward")
	}

	copies := make([]*domain.Message, 0, len(targets))
	for _, target := range targets {
		cp, err := s.create(ctx, requesterID, target, msg.Text, msg.ImageURL, nil)
		if err != nil {
			return copies, err
		}
		copies = append(copies, cp)
	}
	return copies, nil
}

// Conversation returns both directions of traffic with the peer, in
// insertion order.
func (s *Service) Conversation(ctx context.Context, userID, peerID uuid.UUID) ([]*domain.Message, error) {
	return s.messages.FindConversation(ctx, userID, peerID)
}

// UnreadBySender returns the per-sender unread aggregate for the chat list.
func (s *Service) UnreadBySender(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]domain.UnreadSummary, error) {
	return s.messages.AggregateUnreadBySender(ctx, userID)
}

// Contacts lists every other user in the directory.
func (s *Service) Contacts(ctx context.Context, userID uuid.UUID) ([]domain.User, error) {
	return s.users.ListOthers(ctx, userID)
}

// ChatPartners lists users the subject has history with, each annotated with
// their unread count.
func (s *Service) ChatPartners(ctx context.Context, userID uuid.UUID) ([]domain.ChatPartner, error) {
	ids, err := s.messages.ListPartnerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	unread, err := s.messages.AggregateUnreadBySender(ctx, userID)
	if err != nil {
		return nil, err
	}

	partners := make([]domain.ChatPartner, 0, len(ids))
	for _, id := range ids {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			// Partner may have been deleted from the directory; skip rather
			// than fail the whole listing.
			s.log.Warn("unknown chat partner", "user", id, "err", err)
			continue
		}
		partners = append(partners, domain.ChatPartner{User: *u, UnreadCount: unread[id].Count})
	}
	return partners, nil
}
