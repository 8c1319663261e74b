package models

import "time"

// ChatType distinguishes private and group conversations.
type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
)

// Valid reports whether t is one of the known chat types.
func (t ChatType) Valid() bool {
	return t == ChatTypePrivate || t == ChatTypeGroup
}

// Message is a persisted chat message. ReceiverID holds a user id for private
// messages and a group id for group messages.
type Message struct {
	ID         string    `db:"id" json:"id"`
	ChatType   ChatType  `db:"chat_type" json:"chat_type"`
	SenderID   string    `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name,omitempty"`
	ReceiverID string    `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	ReceiverID string   `db:"receiver_id" json:"receiver_id"`
	Name       string   `db:"name" json:"name"`
	ChatType   ChatType `db:"chat_type" json:"chat_type"`
}

// Notification is handed to the broker when a recipient has no live connection.
type Notification struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
