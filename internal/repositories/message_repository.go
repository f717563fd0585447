package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-gateway/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID int, senderID int, content string, attachmentURL, attachmentType *string) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkMessageRead(ctx context.Context, messageID int, readerID int) (bool, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message; content must already be sanitized.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID int, senderID int, content string, attachmentURL, attachmentType *string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content, attachment_url, attachment_type) VALUES ($1, $2, $3, $4, $5)
        RETURNING id, conversation_id, sender_id, content, attachment_url, attachment_type, is_read, read_at, created_at`,
		conversationID, senderID, content, attachmentURL, attachmentType).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.AttachmentURL, &msg.AttachmentType, &msg.IsRead, &msg.ReadAt, &msg.CreatedAt)
	return msg, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT id, conversation_id, sender_id, content, attachment_url, attachment_type, is_read, read_at, created_at FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkMessageRead sets the read flag for a message the reader did not send.
// The write is guarded so an already-read message stays untouched; it reports
// whether a row was actually updated.
func (r *MessageRepo) MarkMessageRead(ctx context.Context, messageID int, readerID int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE, read_at = NOW() WHERE id=$1 AND sender_id<>$2 AND is_read = FALSE`, messageID, readerID)
	if err != nil {
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
