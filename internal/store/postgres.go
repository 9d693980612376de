package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"dm_core/internal/domain"
)

// PostgresMessageStore implements MessageStore over database/sql. Reactions
// are kept as a jsonb column; the toggle itself happens in the engine and is
// written back whole.
type PostgresMessageStore struct {
	db *sql.DB
}

func NewPostgresMessageStore(db *sql.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

const messageColumns = `id, sender_id, receiver_id, text, image_url, reply_to,
	is_edited, is_delivered, is_read, read_at, reactions, created_at`

func (s *PostgresMessageStore) Insert(ctx context.Context, msg *domain.Message) error {
	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return fmt.Errorf("failed to marshal reactions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image_url, reply_to,
			is_edited, is_delivered, is_read, read_at, reactions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, msg.ID, msg.SenderID, msg.ReceiverID, nullString(msg.Text), nullString(msg.ImageURL),
		nullUUID(msg.ReplyTo), msg.IsEdited, msg.IsDelivered, msg.IsRead, nullTime(msg.ReadAt),
		reactions, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *PostgresMessageStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE id = $1
	`, id)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("message %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	return msg, nil
}

func (s *PostgresMessageStore) FindConversation(ctx context.Context, userA, userB uuid.UUID) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC
	`, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresMessageStore) UpdateFields(ctx context.Context, id uuid.UUID, patch Patch) error {
	set := make([]string, 0, 3)
	args := []any{id}

	if patch.Text != nil {
		args = append(args, *patch.Text)
		set = append(set, fmt.Sprintf("text = $%d", len(args)))
	}
	if patch.IsEdited != nil {
		args = append(args, *patch.IsEdited)
		set = append(set, fmt.Sprintf("is_edited = $%d", len(args)))
	}
	if patch.Reactions != nil {
		reactions, err := json.Marshal(*patch.Reactions)
		if err != nil {
			return fmt.Errorf("failed to marshal reactions: %w", err)
		}
		args = append(args, reactions)
		set = append(set, fmt.Sprintf("reactions = $%d", len(args)))
	}
	if len(set) == 0 {
		return nil
	}

	query := "UPDATE messages SET " + strings.Join(set, ", ") + " WHERE id = $1"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundf("message %s", id)
	}
	return nil
}

func (s *PostgresMessageStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFoundf("message %s", id)
	}
	return nil
}

func (s *PostgresMessageStore) BulkUpdateUnread(ctx context.Context, receiverID, senderID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE messages
		SET is_read = TRUE, read_at = NOW()
		WHERE receiver_id = $1 AND sender_id = $2 AND is_read = FALSE
		RETURNING id
	`, receiverID, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresMessageStore) AggregateUnreadBySender(ctx context.Context, receiverID uuid.UUID) (map[uuid.UUID]domain.UnreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ON (sender_id)
			sender_id,
			COUNT(*) OVER (PARTITION BY sender_id),
			COALESCE(text, ''),
			created_at
		FROM messages
		WHERE receiver_id = $1 AND is_read = FALSE
		ORDER BY sender_id, created_at DESC
	`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate unread: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]domain.UnreadSummary)
	for rows.Next() {
		var senderID uuid.UUID
		var sum domain.UnreadSummary
		if err := rows.Scan(&senderID, &sum.Count, &sum.LastMessage, &sum.LastMessageTime); err != nil {
			return nil, err
		}
		out[senderID] = sum
	}
	return out, rows.Err()
}

func (s *PostgresMessageStore) ListPartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*domain.Message, error) {
	var (
		msg       domain.Message
		text      sql.NullString
		imageURL  sql.NullString
		replyTo   uuid.NullUUID
		readAt    sql.NullTime
		reactions []byte
	)
	err := row.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &text, &imageURL, &replyTo,
		&msg.IsEdited, &msg.IsDelivered, &msg.IsRead, &readAt, &reactions, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.Text = text.String
	msg.ImageURL = imageURL.String
	if replyTo.Valid {
		id := replyTo.UUID
		msg.ReplyTo = &id
	}
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	if err := json.Unmarshal(reactions, &msg.Reactions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
	}
	if msg.Reactions == nil {
		msg.Reactions = []domain.Reaction{}
	}
	return &msg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// PostgresUserDirectory implements UserDirectory over the users table.
type PostgresUserDirectory struct {
	db *sql.DB
}

func NewPostgresUserDirectory(db *sql.DB) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

func (d *PostgresUserDirectory) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

func (d *PostgresUserDirectory) FindByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := d.db.QueryRowContext(ctx, `
		SELECT id, username, COALESCE(avatar_url, ''), created_at FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Username, &u.AvatarURL, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("user %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return &u, nil
}

func (d *PostgresUserDirectory) ListOthers(ctx context.Context, excluding uuid.UUID) ([]domain.User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, username, COALESCE(avatar_url, ''), created_at
		FROM users
		WHERE id != $1
		ORDER BY username ASC
	`, excluding)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.AvatarURL, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
