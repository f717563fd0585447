package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"messaging-gateway/internal/broadcast"
	"messaging-gateway/internal/models"
	"messaging-gateway/internal/repositories"
	"messaging-gateway/internal/tasks"
)

const maxContentLength = 5000

// Session owns one websocket connection joined to one conversation group.
// Lifecycle: the handshake handler authenticates and verifies membership
// (Connecting), joins the group and announces presence (Joined), and the read
// loop runs frames strictly in arrival order until the transport closes
// (Closed). Sessions are never persisted.
type Session struct {
	id             string
	user           models.User
	conversationID int
	group          string
	conn           *Conn

	backend       broadcast.Backend
	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	dispatcher    *tasks.Dispatcher

	info ConnInfo
}

func newSession(user models.User, conversationID int, conn *Conn, backend broadcast.Backend,
	conversations repositories.ConversationRepository, messages repositories.MessageRepository,
	dispatcher *tasks.Dispatcher, info ConnInfo) *Session {
	return &Session{
		id:             info.ConnID,
		user:           user,
		conversationID: conversationID,
		group:          broadcast.ConversationGroup(conversationID),
		conn:           conn,
		backend:        backend,
		conversations:  conversations,
		messages:       messages,
		dispatcher:     dispatcher,
		info:           info,
	}
}

// Deliver implements broadcast.Subscriber. The backend fans out uniformly to
// the whole group; typing indicators and online announcements are filtered
// here so a session never renders its own.
func (s *Session) Deliver(event models.ServerEvent) {
	switch event.Type {
	case models.EventTyping, models.EventUserOnline:
		if event.Origin == s.user.ID {
			return
		}
	case models.EventMessage, models.EventReadReceipt, models.EventUserOffline,
		models.EventNotification, models.EventError:
	default:
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	if err := s.conn.enqueue(payload); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

// handleFrame dispatches one inbound frame by its type discriminator.
// Unrecognized discriminators are ignored; malformed frames produce an error
// event to this session only.
func (s *Session) handleFrame(ctx context.Context, data []byte) {
	var head models.FrameHead
	if err := json.Unmarshal(data, &head); err != nil {
		s.sendError("Invalid JSON")
		return
	}

	switch head.Type {
	case models.FrameMessage:
		var frame models.MessageFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("Invalid JSON")
			return
		}
		s.handleMessage(ctx, frame)
	case models.FrameTyping:
		var frame models.TypingFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("Invalid JSON")
			return
		}
		s.handleTyping(ctx, frame)
	case models.FrameReadReceipt:
		var frame models.ReadReceiptFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("Invalid JSON")
			return
		}
		s.handleReadReceipt(ctx, frame)
	}
}

// handleMessage runs the message pipeline: trim, validate, sanitize, persist,
// broadcast, then hand off notification and activity jobs.
func (s *Session) handleMessage(ctx context.Context, frame models.MessageFrame) {
	content := strings.TrimSpace(frame.Content)
	if content == "" || utf8.RuneCountInString(content) > maxContentLength {
		s.sendError("Message must be 1-5000 characters")
		return
	}

	content = sanitizeContent(content)

	msg, err := s.messages.CreateMessage(ctx, s.conversationID, s.user.ID, content, frame.AttachmentURL, frame.AttachmentType)
	if err != nil {
		log.Printf("message save error: %v", err)
		s.sendError("Failed to save message")
		return
	}

	event := models.ServerEvent{
		Type:   models.EventMessage,
		Origin: s.user.ID,
		Data: models.MessageData{
			ID:             msg.ID,
			SenderID:       s.user.ID,
			SenderName:     s.user.Name(),
			SenderAvatar:   s.user.AvatarURL,
			Content:        msg.Content,
			Timestamp:      msg.CreatedAt.Format(time.RFC3339Nano),
			AttachmentURL:  msg.AttachmentURL,
			AttachmentType: msg.AttachmentType,
			IsRead:         false,
		},
	}
	if err := s.backend.Send(ctx, s.group, event); err != nil {
		log.Printf("message broadcast error: %v", err)
	}

	s.queueSideEffects(ctx, msg)
}

// handleTyping relays the indicator verbatim. No persistence, no debouncing;
// every toggle is broadcast and the sender's own session filters it out at
// delivery time.
func (s *Session) handleTyping(ctx context.Context, frame models.TypingFrame) {
	event := models.ServerEvent{
		Type:   models.EventTyping,
		Origin: s.user.ID,
		Data: models.TypingData{
			UserID:    s.user.ID,
			Username:  s.user.Name(),
			IsTyping:  frame.IsTyping,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		},
	}
	if err := s.backend.Send(ctx, s.group, event); err != nil {
		log.Printf("typing broadcast error: %v", err)
	}
}

// handleReadReceipt marks a message read and broadcasts the receipt. Unknown
// message ids and receipts from the message's own sender are silently
// skipped: no error frame, no broadcast.
func (s *Session) handleReadReceipt(ctx context.Context, frame models.ReadReceiptFrame) {
	if frame.MessageID == 0 {
		return
	}

	msg, err := s.messages.GetMessage(ctx, frame.MessageID)
	if err != nil {
		log.Printf("read receipt skipped for message %d: %v", frame.MessageID, err)
		return
	}
	if msg.SenderID == s.user.ID {
		log.Printf("read receipt from sender ignored for message %d", frame.MessageID)
		return
	}

	// Re-marking an already-read message is a no-op write; the broadcast
	// still goes out so the marking client's UI stays consistent.
	if _, err := s.messages.MarkMessageRead(ctx, frame.MessageID, s.user.ID); err != nil {
		log.Printf("read flag update error for message %d: %v", frame.MessageID, err)
		return
	}

	event := models.ServerEvent{
		Type:   models.EventReadReceipt,
		Origin: s.user.ID,
		Data: models.ReadReceiptData{
			MessageID: frame.MessageID,
			UserID:    s.user.ID,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		},
	}
	if err := s.backend.Send(ctx, s.group, event); err != nil {
		log.Printf("read receipt broadcast error: %v", err)
	}
}

// announceOnline broadcasts presence to the group after joining.
func (s *Session) announceOnline(ctx context.Context) {
	event := models.ServerEvent{
		Type:   models.EventUserOnline,
		Origin: s.user.ID,
		Data: models.UserOnlineData{
			UserID:    s.user.ID,
			Username:  s.user.Name(),
			Timestamp: time.Now().Format(time.RFC3339Nano),
		},
	}
	if err := s.backend.Send(ctx, s.group, event); err != nil {
		log.Printf("online broadcast error: %v", err)
	}
}

// announceOffline broadcasts the offline transition, best-effort.
func (s *Session) announceOffline(ctx context.Context) {
	event := models.ServerEvent{
		Type:   models.EventUserOffline,
		Origin: s.user.ID,
		Data: models.UserOfflineData{
			UserID:    s.user.ID,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		},
	}
	if err := s.backend.Send(ctx, s.group, event); err != nil {
		log.Printf("offline broadcast error: %v", err)
	}
}

// queueSideEffects hands notification and activity jobs to the task queue.
// Participant lookup failures only cost the notifications; the message is
// already persisted and broadcast.
func (s *Session) queueSideEffects(ctx context.Context, msg models.Message) {
	if s.dispatcher == nil {
		return
	}

	participants, err := s.conversations.GetParticipantIDs(ctx, s.conversationID)
	if err != nil {
		log.Printf("participant lookup error: %v", err)
	}
	for _, pid := range participants {
		if pid == s.user.ID {
			continue
		}
		s.dispatcher.NotifyUser(pid, "New Message",
			fmt.Sprintf("%s sent you a message", s.user.Name()), models.NotificationKindMessage)
	}
	s.dispatcher.LogActivity(s.user.ID, "message_sent", "messaging.Message", msg.ID, "")
}

// sendError reports a per-frame failure to this session only.
func (s *Session) sendError(message string) {
	event := models.ServerEvent{
		Type: models.EventError,
		Data: models.ErrorData{
			Message:   message,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	if err := s.conn.enqueue(payload); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}
