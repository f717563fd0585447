package models

import "time"

// Notification kinds.
const (
	NotificationKindApplication = "application"
	NotificationKindInvitation  = "invitation"
	NotificationKindConnection  = "connection"
	NotificationKindMessage     = "message"
	NotificationKindSystem      = "system"
)

// Notification is a persisted per-user notification record.
type Notification struct {
	ID        int       `db:"id" json:"id"`
	UserID    int       `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"kind"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActivityEvent records a user action for the activity feed.
type ActivityEvent struct {
	ID          int       `db:"id" json:"id"`
	ActorID     int       `db:"actor_id" json:"actor_id"`
	ActionType  string    `db:"action_type" json:"action_type"`
	ObjectType  string    `db:"object_type" json:"object_type"`
	ObjectID    int       `db:"object_id" json:"object_id"`
	Description string    `db:"description" json:"description"`
	IsPublic    bool      `db:"is_public" json:"is_public"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
