package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-gateway/internal/models"
)

// NotificationRepository persists per-user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, userID int, kind, title, message string) (models.Notification, error)
	HasRecentDuplicate(ctx context.Context, userID int, title string, window time.Duration) (bool, error)
}

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateNotification stores a notification record.
func (r *NotificationRepo) CreateNotification(ctx context.Context, userID int, kind, title, message string) (models.Notification, error) {
	var n models.Notification
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (user_id, kind, title, message) VALUES ($1, $2, $3, $4)
        RETURNING id, user_id, kind, title, message, created_at`, userID, kind, title, message).
		Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Message, &n.CreatedAt)
	return n, err
}

// HasRecentDuplicate reports whether the same recipient already received a
// notification with the same title inside the given window.
func (r *NotificationRepo) HasRecentDuplicate(ctx context.Context, userID int, title string, window time.Duration) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM notifications WHERE user_id=$1 AND title=$2 AND created_at >= NOW() - ($3 * interval '1 second'))`,
		userID, title, window.Seconds())
	return exists, err
}
