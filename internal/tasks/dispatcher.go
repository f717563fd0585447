package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"messaging-gateway/internal/broadcast"
	"messaging-gateway/internal/models"
	"messaging-gateway/internal/repositories"
	"messaging-gateway/internal/taskqueue"
)

// Notifications with the same recipient and title inside this window are
// treated as duplicates and skipped.
const dedupWindow = 5 * time.Second

// Dispatcher enqueues the gateway's best-effort side-effect jobs: notification
// delivery and activity logging. Both run on the task queue, off the message
// broadcast path; failures are logged by the worker and never reach a client.
type Dispatcher struct {
	queue         *taskqueue.Queue
	notifications repositories.NotificationRepository
	activities    repositories.ActivityRepository
	backend       broadcast.Backend
}

// NewDispatcher builds a Dispatcher.
func NewDispatcher(queue *taskqueue.Queue, notifications repositories.NotificationRepository, activities repositories.ActivityRepository, backend broadcast.Backend) *Dispatcher {
	return &Dispatcher{
		queue:         queue,
		notifications: notifications,
		activities:    activities,
		backend:       backend,
	}
}

// NotifyUser queues a notification dispatch and returns immediately.
func (d *Dispatcher) NotifyUser(userID int, title, message, kind string) {
	d.queue.Enqueue("notify_user", func(ctx context.Context) error {
		return d.sendNotification(ctx, userID, title, message, kind)
	})
}

// LogActivity queues an activity record and returns immediately.
func (d *Dispatcher) LogActivity(actorID int, actionType, objectType string, objectID int, description string) {
	d.queue.Enqueue("log_activity", func(ctx context.Context) error {
		if _, err := d.activities.CreateActivityEvent(ctx, actorID, actionType, objectType, objectID, description, true); err != nil {
			return fmt.Errorf("create activity event: %w", err)
		}
		return nil
	})
}

func (d *Dispatcher) sendNotification(ctx context.Context, userID int, title, message, kind string) error {
	dup, err := d.notifications.HasRecentDuplicate(ctx, userID, title, dedupWindow)
	if err != nil {
		return fmt.Errorf("check duplicate notification: %w", err)
	}
	if dup {
		log.Printf("skipped duplicate notification for user %d: %s", userID, title)
		return nil
	}

	n, err := d.notifications.CreateNotification(ctx, userID, kind, title, message)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	event := models.ServerEvent{
		Type: models.EventNotification,
		Data: models.NotificationData{
			NotificationID: n.ID,
			Title:          n.Title,
			Message:        n.Message,
			Kind:           n.Kind,
			Timestamp:      n.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := d.backend.Send(ctx, broadcast.UserGroup(userID), event); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
