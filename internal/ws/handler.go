package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-gateway/internal/auth"
	"messaging-gateway/internal/broadcast"
	"messaging-gateway/internal/models"
	"messaging-gateway/internal/observability"
	"messaging-gateway/internal/repositories"
	"messaging-gateway/internal/tasks"
)

// ConversationWSHandler upgrades conversation websocket connections.
type ConversationWSHandler struct {
	backend       broadcast.Backend
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	users         repositories.UserRepository
	verifier      *auth.Verifier
	dispatcher    *tasks.Dispatcher
}

// NewConversationWSHandler constructs a ConversationWSHandler.
func NewConversationWSHandler(backend broadcast.Backend, conversations repositories.ConversationRepository,
	messages repositories.MessageRepository, users repositories.UserRepository,
	verifier *auth.Verifier, dispatcher *tasks.Dispatcher) *ConversationWSHandler {
	return &ConversationWSHandler{
		backend:       backend,
		conversations: conversations,
		messages:      messages,
		users:         users,
		verifier:      verifier,
		dispatcher:    dispatcher,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, verifies participant membership, upgrades the
// connection and runs the session. Any failure before the upgrade rejects
// the connection with no side effects visible to other participants.
func (h *ConversationWSHandler) Handle(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("messaging-gateway/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := upgradeUserID(c, h.verifier)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.conversations.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	member, err := h.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil || !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
		return
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	conn := newConn(wsConn)
	conn.start()

	// net/http cancels the request context as soon as Handle returns; the
	// session outlives the handshake, so its store and broadcast calls run
	// on a context that keeps the trace values but not the cancellation.
	sessionCtx := context.WithoutCancel(ctx)

	session := newSession(user, conversationID, conn, h.backend, h.conversations, h.messages, h.dispatcher, info)
	h.backend.Join(session.group, session)

	observability.IncWSActive("conversation")
	observability.IncWSEvent("conversation", "ws_connect")
	publishWSEvent(sessionCtx, "conversation", conversationID, info, "ws_connect", "")

	session.announceOnline(sessionCtx)

	go h.readLoop(sessionCtx, session, conn, conversationID, info)
}

func (h *ConversationWSHandler) readLoop(ctx context.Context, session *Session, conn *Conn, conversationID int, info ConnInfo) {
	var closeReason string
	defer func() {
		session.announceOffline(ctx)
		h.backend.Leave(session.group, session)
		observability.DecWSActive("conversation")
		observability.IncWSEvent("conversation", "ws_disconnect")
		publishWSEvent(ctx, "conversation", conversationID, info, "ws_disconnect", closeReason)
		conn.close(websocket.CloseNormalClosure, "")
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("conversation", "ws_error")
				publishWSEvent(ctx, "conversation", conversationID, info, "ws_error", closeReason)
			}
			return
		}
		session.handleFrame(ctx, data)
	}
}

// upgradeUserID authenticates an upgrade request from the Authorization
// header or, for browser clients that cannot set headers, the token query
// parameter.
func upgradeUserID(c *gin.Context, verifier *auth.Verifier) (int, error) {
	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}
	parts := strings.Split(token, " ")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid token")
	}
	return verifier.ValidateToken(parts[1])
}

func publishWSEvent(ctx context.Context, kind string, resourceID int, info ConnInfo, event, reason string) {
	var durationMS int64
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	_ = observability.PublishEvent(ctx, wsRoutingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]any{
			"ws": observability.WSEventPayload{
				Kind:       kind,
				ResourceID: resourceID,
				Event:      event,
				ConnID:     info.ConnID,
				DurationMS: durationMS,
				Reason:     reason,
			},
			"identity": observability.IdentityPayload{
				UserID:   info.UserID,
				DeviceID: info.DeviceID,
				IP:       info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}

func wsRoutingKey(kind string) string {
	if kind == "notification" {
		return "ws_events.notifications"
	}
	return "ws_events.conversations"
}

// NotificationWSHandler subscribes a client to its own personal group, which
// carries notification events published by the task queue jobs.
type NotificationWSHandler struct {
	backend  broadcast.Backend
	verifier *auth.Verifier
}

// NewNotificationWSHandler constructs a NotificationWSHandler.
func NewNotificationWSHandler(backend broadcast.Backend, verifier *auth.Verifier) *NotificationWSHandler {
	return &NotificationWSHandler{backend: backend, verifier: verifier}
}

// notificationSubscriber forwards every group event to the connection.
type notificationSubscriber struct {
	conn *Conn
}

func (n *notificationSubscriber) Deliver(event models.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	if err := n.conn.enqueue(payload); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

// Handle upgrades the connection and keeps it subscribed until close.
func (h *NotificationWSHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messaging-gateway/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := upgradeUserID(c, h.verifier)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	conn := newConn(wsConn)
	conn.start()

	// Detached for the same reason as the conversation handler: the request
	// context dies with the handshake.
	sessionCtx := context.WithoutCancel(ctx)

	sub := &notificationSubscriber{conn: conn}
	group := broadcast.UserGroup(userID)
	h.backend.Join(group, sub)

	observability.IncWSActive("notification")
	observability.IncWSEvent("notification", "ws_connect")
	publishWSEvent(sessionCtx, "notification", userID, info, "ws_connect", "")

	go func() {
		var closeReason string
		defer func() {
			h.backend.Leave(group, sub)
			observability.DecWSActive("notification")
			observability.IncWSEvent("notification", "ws_disconnect")
			publishWSEvent(sessionCtx, "notification", userID, info, "ws_disconnect", closeReason)
			conn.close(websocket.CloseNormalClosure, "")
		}()
		for {
			// Inbound frames are not part of the notification protocol;
			// the loop only watches for transport close.
			if _, _, err := conn.ws.ReadMessage(); err != nil {
				closeReason = err.Error()
				return
			}
		}
	}()
}
