package models

import "time"

// Message represents a persisted conversation message. Content is stored
// already sanitized; the read flag only ever transitions false to true.
type Message struct {
	ID             int        `db:"id" json:"id"`
	ConversationID int        `db:"conversation_id" json:"conversation_id"`
	SenderID       int        `db:"sender_id" json:"sender_id"`
	Content        string     `db:"content" json:"content"`
	AttachmentURL  *string    `db:"attachment_url" json:"attachment_url"`
	AttachmentType *string    `db:"attachment_type" json:"attachment_type"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
