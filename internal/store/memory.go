package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dm_core/internal/domain"
)

// MemoryStore is an in-memory MessageStore. It backs the tests and the
// no-database dev mode; semantics match the Postgres implementation,
// including the atomic unread batch.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[uuid.UUID]*domain.Message)}
}

func (s *MemoryStore) Insert(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	cp.Reactions = append([]domain.Reaction(nil), msg.Reactions...)
	s.messages[msg.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, domain.NotFoundf("message %s", id)
	}
	cp := *msg
	cp.Reactions = append([]domain.Reaction(nil), msg.Reactions...)
	return &cp, nil
}

func (s *MemoryStore) FindConversation(_ context.Context, userA, userB uuid.UUID) ([]*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Message
	for _, msg := range s.messages {
		if (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA) {
			cp := *msg
			cp.Reactions = append([]domain.Reaction(nil), msg.Reactions...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, id uuid.UUID, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return domain.NotFoundf("message %s", id)
	}
	if patch.Text != nil {
		msg.Text = *patch.Text
	}
	if patch.IsEdited != nil {
		msg.IsEdited = *patch.IsEdited
	}
	if patch.Reactions != nil {
		msg.Reactions = append([]domain.Reaction(nil), (*patch.Reactions)...)
	}
	return nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[id]; !ok {
		return domain.NotFoundf("message %s", id)
	}
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) BulkUpdateUnread(_ context.Context, receiverID, senderID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var ids []uuid.UUID
	for _, msg := range s.messages {
		if msg.ReceiverID == receiverID && msg.SenderID == senderID && !msg.IsRead {
			msg.IsRead = true
			at := now
			msg.ReadAt = &at
			ids = append(ids, msg.ID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) AggregateUnreadBySender(_ context.Context, receiverID uuid.UUID) (map[uuid.UUID]domain.UnreadSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]domain.UnreadSummary)
	for _, msg := range s.messages {
		if msg.ReceiverID != receiverID || msg.IsRead {
			continue
		}
		sum := out[msg.SenderID]
		sum.Count++
		if !msg.CreatedAt.Before(sum.LastMessageTime) {
			sum.LastMessage = msg.Text
			sum.LastMessageTime = msg.CreatedAt
		}
		out[msg.SenderID] = sum
	}
	return out, nil
}

func (s *MemoryStore) ListPartnerIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	for _, msg := range s.messages {
		switch userID {
		case msg.SenderID:
			seen[msg.ReceiverID] = true
		case msg.ReceiverID:
			seen[msg.SenderID] = true
		}
	}
	ids := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

// MemoryDirectory is an in-memory UserDirectory.
type MemoryDirectory struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[uuid.UUID]domain.User)}
}

// AddUser seeds the directory.
func (d *MemoryDirectory) AddUser(u domain.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

func (d *MemoryDirectory) Exists(_ context.Context, userID uuid.UUID) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.users[userID]
	return ok, nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, userID uuid.UUID) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return nil, domain.NotFoundf("user %s", userID)
	}
	return &u, nil
}

func (d *MemoryDirectory) ListOthers(_ context.Context, excluding uuid.UUID) ([]domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var users []domain.User
	for id, u := range d.users {
		if id == excluding {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
