package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-gateway/internal/auth"
	"messaging-gateway/internal/broadcast"
	"messaging-gateway/internal/mocks"
	"messaging-gateway/internal/models"
	"messaging-gateway/internal/repositories"
)

type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type gatewayFixture struct {
	server   *httptest.Server
	verifier *auth.Verifier
	backend  *broadcast.MemoryBackend

	conversations *mocks.ConversationRepositoryMock
	messages      *mocks.MessageRepositoryMock
	users         *mocks.UserRepositoryMock
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &gatewayFixture{
		verifier:      auth.NewVerifier("test-secret"),
		conversations: new(mocks.ConversationRepositoryMock),
		messages:      new(mocks.MessageRepositoryMock),
		users:         new(mocks.UserRepositoryMock),
	}

	f.backend = broadcast.NewMemoryBackend()
	handler := NewConversationWSHandler(f.backend, f.conversations, f.messages, f.users, f.verifier, nil)
	notifications := NewNotificationWSHandler(f.backend, f.verifier)

	router := gin.New()
	router.GET("/ws/conversations/:conversation_id", handler.Handle)
	router.GET("/ws/notifications", notifications.Handle)

	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *gatewayFixture) allowParticipant(conversationID int, user models.User) {
	f.conversations.On("GetConversation", mock.Anything, conversationID).Return(models.Conversation{ID: conversationID}, nil)
	f.conversations.On("IsParticipant", mock.Anything, conversationID, user.ID).Return(true, nil)
	f.users.On("GetUser", mock.Anything, user.ID).Return(user, nil)
}

func (f *gatewayFixture) dial(t *testing.T, userID, conversationID int) *websocket.Conn {
	t.Helper()
	conn, resp, err := f.tryDial(userID, conversationID)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	// The handshake response is written before the server joins the group;
	// give the handler a moment to finish joining and announcing.
	time.Sleep(50 * time.Millisecond)
	return conn
}

func (f *gatewayFixture) tryDial(userID, conversationID int) (*websocket.Conn, *http.Response, error) {
	token, err := f.verifier.Sign(userID)
	if err != nil {
		return nil, nil, err
	}
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		fmt.Sprintf("/ws/conversations/%d?token=%s", conversationID, token)
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame wsFrame
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got one")
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "expected read timeout, got: %v", err)
}

func TestConversationScenario(t *testing.T) {
	f := setupGateway(t)
	alice := models.User{ID: 1, DisplayName: "alice"}
	bob := models.User{ID: 2, DisplayName: "bob"}
	f.allowParticipant(42, alice)
	f.allowParticipant(42, bob)

	connA := f.dial(t, 1, 42)
	connB := f.dial(t, 2, 42)

	// A sees B come online.
	online := readFrame(t, connA)
	require.Equal(t, models.EventUserOnline, online.Type)
	var onlineData models.UserOnlineData
	require.NoError(t, json.Unmarshal(online.Data, &onlineData))
	assert.Equal(t, 2, onlineData.UserID)
	assert.Equal(t, "bob", onlineData.Username)

	// A sends a message; both sessions receive the broadcast.
	created := models.Message{ID: 7, ConversationID: 42, SenderID: 1, Content: "hi", CreatedAt: time.Now()}
	f.messages.On("CreateMessage", mock.Anything, 42, 1, "hi", (*string)(nil), (*string)(nil)).Return(created, nil).Once()

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "message", "content": "hi"}))

	// Delivery per connection is ordered, so the message being B's first
	// frame also proves B never saw its own user_online announcement.
	for _, conn := range []*websocket.Conn{connA, connB} {
		frame := readFrame(t, conn)
		require.Equal(t, models.EventMessage, frame.Type)
		var data models.MessageData
		require.NoError(t, json.Unmarshal(frame.Data, &data))
		assert.Equal(t, 7, data.ID)
		assert.Equal(t, "hi", data.Content)
		assert.Equal(t, "alice", data.SenderName)
		assert.False(t, data.IsRead)
	}

	// B marks the message read; both sessions receive the receipt.
	f.messages.On("GetMessage", mock.Anything, 7).Return(created, nil).Once()
	f.messages.On("MarkMessageRead", mock.Anything, 7, 2).Return(true, nil).Once()

	require.NoError(t, connB.WriteJSON(map[string]any{"type": "read_receipt", "message_id": 7}))

	for _, conn := range []*websocket.Conn{connA, connB} {
		frame := readFrame(t, conn)
		require.Equal(t, models.EventReadReceipt, frame.Type)
		var data models.ReadReceiptData
		require.NoError(t, json.Unmarshal(frame.Data, &data))
		assert.Equal(t, 7, data.MessageID)
		assert.Equal(t, 2, data.UserID)
	}

	// A disconnects; B sees the offline transition.
	require.NoError(t, connA.Close())
	offline := readFrame(t, connB)
	require.Equal(t, models.EventUserOffline, offline.Type)
	var offlineData models.UserOfflineData
	require.NoError(t, json.Unmarshal(offline.Data, &offlineData))
	assert.Equal(t, 1, offlineData.UserID)

	f.messages.AssertExpectations(t)
}

func TestStoreCallsRunOnLiveContext(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(3, models.User{ID: 1, DisplayName: "alice"})

	connA := f.dial(t, 1, 3)

	// The read loop outlives the handshake, and net/http cancels the
	// request context once the handler returns. Persistence must run on a
	// context detached from that cancellation or every store call fails.
	ctxErr := make(chan error, 1)
	f.messages.On("CreateMessage", mock.Anything, 3, 1, "hi", (*string)(nil), (*string)(nil)).
		Run(func(args mock.Arguments) {
			ctxErr <- args.Get(0).(context.Context).Err()
		}).
		Return(models.Message{ID: 1, ConversationID: 3, SenderID: 1, Content: "hi", CreatedAt: time.Now()}, nil).
		Once()

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "message", "content": "hi"}))

	select {
	case err := <-ctxErr:
		assert.NoError(t, err, "CreateMessage received a canceled context")
	case <-time.After(2 * time.Second):
		t.Fatal("CreateMessage was never called")
	}
}

func TestTypingRelayExcludesSender(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(5, models.User{ID: 1, DisplayName: "alice"})
	f.allowParticipant(5, models.User{ID: 2, DisplayName: "bob"})

	connA := f.dial(t, 1, 5)
	connB := f.dial(t, 2, 5)
	_ = readFrame(t, connA) // B's user_online

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "typing", "is_typing": true}))

	frame := readFrame(t, connB)
	require.Equal(t, models.EventTyping, frame.Type)
	var data models.TypingData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, 1, data.UserID)
	assert.True(t, data.IsTyping)

	expectNoFrame(t, connA)
}

func TestNonParticipantRejectedWithoutSideEffects(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(9, models.User{ID: 1, DisplayName: "alice"})
	f.conversations.On("GetConversation", mock.Anything, 9).Return(models.Conversation{ID: 9}, nil)
	f.conversations.On("IsParticipant", mock.Anything, 9, 3).Return(false, nil)

	member := f.dial(t, 1, 9)

	conn, resp, err := f.tryDial(3, 9)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The existing member observes nothing.
	expectNoFrame(t, member)
}

func TestUnknownConversationRejected(t *testing.T) {
	f := setupGateway(t)
	f.conversations.On("GetConversation", mock.Anything, 404).Return(models.Conversation{}, repositories.ErrConversationNotFound)

	conn, resp, err := f.tryDial(1, 404)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidTokenRejected(t *testing.T) {
	f := setupGateway(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/conversations/1?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotificationStreamRejectsInvalidToken(t *testing.T) {
	f := setupGateway(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/notifications?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotificationStreamDeliversUserGroupEvents(t *testing.T) {
	f := setupGateway(t)

	token, err := f.verifier.Sign(9)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/notifications?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, f.backend.Send(context.Background(), broadcast.UserGroup(9), models.ServerEvent{
		Type: models.EventNotification,
		Data: models.NotificationData{NotificationID: 1, Title: "New Message"},
	}))

	frame := readFrame(t, conn)
	require.Equal(t, models.EventNotification, frame.Type)
	var data models.NotificationData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, "New Message", data.Title)
}

func TestOversizedContentRejectedToSenderOnly(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(6, models.User{ID: 1, DisplayName: "alice"})
	f.allowParticipant(6, models.User{ID: 2, DisplayName: "bob"})

	connA := f.dial(t, 1, 6)
	connB := f.dial(t, 2, 6)
	_ = readFrame(t, connA) // B's user_online

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "message", "content": strings.Repeat("a", 5001)}))

	frame := readFrame(t, connA)
	require.Equal(t, models.EventError, frame.Type)
	var data models.ErrorData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, "Message must be 1-5000 characters", data.Message)

	expectNoFrame(t, connB)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWhitespaceOnlyContentRejected(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(6, models.User{ID: 1, DisplayName: "alice"})

	connA := f.dial(t, 1, 6)
	require.NoError(t, connA.WriteJSON(map[string]any{"type": "message", "content": "   \n\t "}))

	frame := readFrame(t, connA)
	require.Equal(t, models.EventError, frame.Type)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSanitizedContentIsPersistedAndBroadcast(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(8, models.User{ID: 1, DisplayName: "alice"})

	connA := f.dial(t, 1, 8)

	stored := models.Message{ID: 3, ConversationID: 8, SenderID: 1, Content: "&lt;script&gt;", CreatedAt: time.Now()}
	f.messages.On("CreateMessage", mock.Anything, 8, 1, "&lt;script&gt;", (*string)(nil), (*string)(nil)).Return(stored, nil).Once()

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "message", "content": "<script>"}))

	frame := readFrame(t, connA)
	require.Equal(t, models.EventMessage, frame.Type)
	var data models.MessageData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, "&lt;script&gt;", data.Content)

	f.messages.AssertExpectations(t)
}

func TestStoreFailureReportedToSenderOnly(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(4, models.User{ID: 1, DisplayName: "alice"})
	f.allowParticipant(4, models.User{ID: 2, DisplayName: "bob"})

	connA := f.dial(t, 1, 4)
	connB := f.dial(t, 2, 4)
	_ = readFrame(t, connA) // B's user_online

	f.messages.On("CreateMessage", mock.Anything, 4, 1, "hi", (*string)(nil), (*string)(nil)).Return(models.Message{}, assert.AnError).Once()

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "message", "content": "hi"}))

	frame := readFrame(t, connA)
	require.Equal(t, models.EventError, frame.Type)
	var data models.ErrorData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, "Failed to save message", data.Message)

	expectNoFrame(t, connB)
}

func TestReadReceiptFromSenderIsSilentlySkipped(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(4, models.User{ID: 1, DisplayName: "alice"})
	f.allowParticipant(4, models.User{ID: 2, DisplayName: "bob"})

	connA := f.dial(t, 1, 4)
	connB := f.dial(t, 2, 4)
	_ = readFrame(t, connA) // B's user_online

	f.messages.On("GetMessage", mock.Anything, 12).Return(models.Message{ID: 12, SenderID: 1}, nil).Once()

	require.NoError(t, connA.WriteJSON(map[string]any{"type": "read_receipt", "message_id": 12}))

	expectNoFrame(t, connA)
	expectNoFrame(t, connB)
	f.messages.AssertNotCalled(t, "MarkMessageRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestReadReceiptForUnknownMessageIsSilentlySkipped(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(4, models.User{ID: 2, DisplayName: "bob"})

	connB := f.dial(t, 2, 4)

	f.messages.On("GetMessage", mock.Anything, 99).Return(models.Message{}, repositories.ErrMessageNotFound).Once()

	require.NoError(t, connB.WriteJSON(map[string]any{"type": "read_receipt", "message_id": 99}))

	expectNoFrame(t, connB)
	f.messages.AssertNotCalled(t, "MarkMessageRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestAlreadyReadReceiptStillBroadcasts(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(4, models.User{ID: 2, DisplayName: "bob"})

	connB := f.dial(t, 2, 4)

	readAt := time.Now()
	f.messages.On("GetMessage", mock.Anything, 12).Return(models.Message{ID: 12, SenderID: 1, IsRead: true, ReadAt: &readAt}, nil).Once()
	// The guarded write touches nothing the second time around.
	f.messages.On("MarkMessageRead", mock.Anything, 12, 2).Return(false, nil).Once()

	require.NoError(t, connB.WriteJSON(map[string]any{"type": "read_receipt", "message_id": 12}))

	frame := readFrame(t, connB)
	require.Equal(t, models.EventReadReceipt, frame.Type)
	f.messages.AssertExpectations(t)
}

func TestMalformedFrameProducesErrorToSenderOnly(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(4, models.User{ID: 1, DisplayName: "alice"})
	f.allowParticipant(4, models.User{ID: 2, DisplayName: "bob"})

	connA := f.dial(t, 1, 4)
	connB := f.dial(t, 2, 4)
	_ = readFrame(t, connA) // B's user_online

	require.NoError(t, connA.WriteMessage(websocket.TextMessage, []byte("{not json")))

	frame := readFrame(t, connA)
	require.Equal(t, models.EventError, frame.Type)
	var data models.ErrorData
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	assert.Equal(t, "Invalid JSON", data.Message)

	expectNoFrame(t, connB)
}

func TestUnknownFrameTypeIsIgnored(t *testing.T) {
	f := setupGateway(t)
	f.allowParticipant(4, models.User{ID: 1, DisplayName: "alice"})

	connA := f.dial(t, 1, 4)
	require.NoError(t, connA.WriteJSON(map[string]any{"type": "weird"}))
	expectNoFrame(t, connA)
}
