package models

// Wire protocol for websocket sessions. The event type set is closed: every
// inbound frame and outbound event carries one of the discriminators below,
// and dispatch switches over them exhaustively.

// Inbound frame discriminators.
const (
	FrameMessage     = "message"
	FrameTyping      = "typing"
	FrameReadReceipt = "read_receipt"
)

// Outbound event discriminators.
const (
	EventMessage      = "message"
	EventTyping       = "typing"
	EventReadReceipt  = "read_receipt"
	EventUserOnline   = "user_online"
	EventUserOffline  = "user_offline"
	EventError        = "error"
	EventNotification = "notification"
)

// FrameHead carries only the discriminator of an inbound frame.
type FrameHead struct {
	Type string `json:"type"`
}

// MessageFrame submits a new chat message.
type MessageFrame struct {
	Content        string  `json:"content"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentType *string `json:"attachment_type"`
}

// TypingFrame toggles the sender's typing indicator.
type TypingFrame struct {
	IsTyping bool `json:"is_typing"`
}

// ReadReceiptFrame marks a message as read.
type ReadReceiptFrame struct {
	MessageID int `json:"message_id"`
}

// ServerEvent is one outbound frame, serialized as {"type":..., "data":{...}}.
// Origin is the user id the event originated from; it drives delivery-time
// self-filtering and is not part of the wire format.
type ServerEvent struct {
	Type   string `json:"type"`
	Data   any    `json:"data"`
	Origin int    `json:"-"`
}

// MessageData is the payload of a "message" event.
type MessageData struct {
	ID             int     `json:"id"`
	SenderID       int     `json:"sender_id"`
	SenderName     string  `json:"sender_name"`
	SenderAvatar   string  `json:"sender_avatar"`
	Content        string  `json:"content"`
	Timestamp      string  `json:"timestamp"`
	AttachmentURL  *string `json:"attachment_url"`
	AttachmentType *string `json:"attachment_type"`
	IsRead         bool    `json:"is_read"`
}

// TypingData is the payload of a "typing" event.
type TypingData struct {
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"is_typing"`
	Timestamp string `json:"timestamp"`
}

// ReadReceiptData is the payload of a "read_receipt" event.
type ReadReceiptData struct {
	MessageID int    `json:"message_id"`
	UserID    int    `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// UserOnlineData is the payload of a "user_online" event.
type UserOnlineData struct {
	UserID    int    `json:"user_id"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

// UserOfflineData is the payload of a "user_offline" event.
type UserOfflineData struct {
	UserID    int    `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

// ErrorData is the payload of an "error" event, sent to one session only.
type ErrorData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// NotificationData is the payload of a "notification" event published to a
// user's personal group.
type NotificationData struct {
	NotificationID int    `json:"notification_id"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Kind           string `json:"notification_type"`
	Timestamp      string `json:"timestamp"`
}
