package broadcast

import (
	"context"
	"fmt"

	"messaging-gateway/internal/models"
)

// Subscriber receives events fanned out to a group. Deliver must not block:
// backends may call it while holding the group's lock, so implementations
// enqueue into a buffered writer and drop or close on overflow.
type Subscriber interface {
	Deliver(event models.ServerEvent)
}

// Backend is the pluggable group publish/subscribe capability. The in-memory
// implementation is the single-process reference; the Redis implementation
// fans out across processes. Within one group every subscriber observes
// events in the same relative order.
type Backend interface {
	Join(group string, sub Subscriber)
	Leave(group string, sub Subscriber)
	Send(ctx context.Context, group string, event models.ServerEvent) error
}

// ConversationGroup names the fan-out group for a conversation.
func ConversationGroup(conversationID int) string {
	return fmt.Sprintf("messages_%d", conversationID)
}

// UserGroup names a user's personal notification group.
func UserGroup(userID int) string {
	return fmt.Sprintf("user_%d", userID)
}
