package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"chathub/internal/models"
	"chathub/internal/realtime"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	realtime.MessageStore
	realtime.PresenceHistory
	ListPrivateChats(ctx context.Context, userID string) ([]models.ChatSummary, error)
}

// MessageRepo is a sqlx-backed repository. Private and group messages share
// one table keyed by chat_type; receiver_id is a user or a group id.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ MessageRepository = (*MessageRepo)(nil)

// Insert stores msg under a fresh ULID so that id order is creation order.
func (r *MessageRepo) Insert(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = ulid.Make().String()
	msg.CreatedAt = time.Now().UTC()

	_, err := r.db.NamedExecContext(ctx, `INSERT INTO messages (id, chat_type, sender_id, sender_name, receiver_id, content, created_at)
        VALUES (:id, :chat_type, :sender_id, :sender_name, :receiver_id, :content, :created_at)`, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// QueryPrivate returns up to limit messages between two users older than
// before, oldest first.
func (r *MessageRepo) QueryPrivate(ctx context.Context, userA, userB, before string, limit int) ([]models.Message, error) {
	query := `SELECT id, chat_type, sender_id, sender_name, receiver_id, content, created_at
        FROM messages
        WHERE chat_type = 'private'
        AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))
        AND ($3 = '' OR id < $3)
        ORDER BY id DESC
        LIMIT $4`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, userA, userB, before, limit); err != nil {
		return nil, fmt.Errorf("query private messages: %w", err)
	}
	reverse(msgs)
	return msgs, nil
}

// QueryGroup returns up to limit group messages older than before, oldest first.
func (r *MessageRepo) QueryGroup(ctx context.Context, groupID, before string, limit int) ([]models.Message, error) {
	query := `SELECT id, chat_type, sender_id, sender_name, receiver_id, content, created_at
        FROM messages
        WHERE chat_type = 'group' AND receiver_id = $1
        AND ($2 = '' OR id < $2)
        ORDER BY id DESC
        LIMIT $3`
	var msgs []models.Message
	if err := r.db.SelectContext(ctx, &msgs, query, groupID, before, limit); err != nil {
		return nil, fmt.Errorf("query group messages: %w", err)
	}
	reverse(msgs)
	return msgs, nil
}

// UsersToNotify returns the user's private-chat partners, most recent first.
func (r *MessageRepo) UsersToNotify(ctx context.Context, userID string, limit int) ([]string, error) {
	query := `SELECT partner_id FROM (
            SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id, MAX(id) AS last_id
            FROM messages
            WHERE chat_type = 'private' AND (sender_id = $1 OR receiver_id = $1)
            GROUP BY 1
        ) p
        WHERE partner_id <> $1
        ORDER BY last_id DESC
        LIMIT $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, userID, limit); err != nil {
		return nil, fmt.Errorf("query presence audience: %w", err)
	}
	return ids, nil
}

// ListPrivateChats lists the user's private conversations, most recent first.
// The partner name is the display name carried by their latest message.
func (r *MessageRepo) ListPrivateChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	query := `SELECT p.partner_id AS receiver_id,
            COALESCE((SELECT m.sender_name FROM messages m
                WHERE m.chat_type = 'private' AND m.sender_id = p.partner_id
                ORDER BY m.id DESC LIMIT 1), '') AS name,
            'private' AS chat_type
        FROM (
            SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner_id, MAX(id) AS last_id
            FROM messages
            WHERE chat_type = 'private' AND (sender_id = $1 OR receiver_id = $1)
            GROUP BY 1
        ) p
        ORDER BY p.last_id DESC`
	var chats []models.ChatSummary
	if err := r.db.SelectContext(ctx, &chats, query, userID); err != nil {
		return nil, fmt.Errorf("list private chats: %w", err)
	}
	return chats, nil
}

func reverse(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
