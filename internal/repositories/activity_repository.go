package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"messaging-gateway/internal/models"
)

// ActivityRepository persists activity feed events.
type ActivityRepository interface {
	CreateActivityEvent(ctx context.Context, actorID int, actionType, objectType string, objectID int, description string, isPublic bool) (models.ActivityEvent, error)
}

// ActivityRepo is a sqlx implementation of ActivityRepository.
type ActivityRepo struct {
	db *sqlx.DB
}

// NewActivityRepo constructs an ActivityRepo.
func NewActivityRepo(db *sqlx.DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// CreateActivityEvent stores an activity record.
func (r *ActivityRepo) CreateActivityEvent(ctx context.Context, actorID int, actionType, objectType string, objectID int, description string, isPublic bool) (models.ActivityEvent, error) {
	var ev models.ActivityEvent
	err := r.db.QueryRowxContext(ctx, `INSERT INTO activity_events (actor_id, action_type, object_type, object_id, description, is_public) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, actor_id, action_type, object_type, object_id, description, is_public, created_at`,
		actorID, actionType, objectType, objectID, description, isPublic).
		Scan(&ev.ID, &ev.ActorID, &ev.ActionType, &ev.ObjectType, &ev.ObjectID, &ev.Description, &ev.IsPublic, &ev.CreatedAt)
	return ev, err
}
