package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-gateway/internal/broadcast"
	"messaging-gateway/internal/models"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID int) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) GetParticipantIDs(ctx context.Context, conversationID int) ([]int, error) {
	args := m.Called(ctx, conversationID)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID int, senderID int, content string, attachmentURL, attachmentType *string) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content, attachmentURL, attachmentType)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkMessageRead(ctx context.Context, messageID int, readerID int) (bool, error) {
	args := m.Called(ctx, messageID, readerID)
	return args.Bool(0), args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) CreateNotification(ctx context.Context, userID int, kind, title, message string) (models.Notification, error) {
	args := m.Called(ctx, userID, kind, title, message)
	var n models.Notification
	if val := args.Get(0); val != nil {
		n = val.(models.Notification)
	}
	return n, args.Error(1)
}

func (m *NotificationRepositoryMock) HasRecentDuplicate(ctx context.Context, userID int, title string, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, title, window)
	return args.Bool(0), args.Error(1)
}

type ActivityRepositoryMock struct {
	mock.Mock
}

func (m *ActivityRepositoryMock) CreateActivityEvent(ctx context.Context, actorID int, actionType, objectType string, objectID int, description string, isPublic bool) (models.ActivityEvent, error) {
	args := m.Called(ctx, actorID, actionType, objectType, objectID, description, isPublic)
	var ev models.ActivityEvent
	if val := args.Get(0); val != nil {
		ev = val.(models.ActivityEvent)
	}
	return ev, args.Error(1)
}

type BackendMock struct {
	mock.Mock
}

func (m *BackendMock) Join(group string, sub broadcast.Subscriber) {
	m.Called(group, sub)
}

func (m *BackendMock) Leave(group string, sub broadcast.Subscriber) {
	m.Called(group, sub)
}

func (m *BackendMock) Send(ctx context.Context, group string, event models.ServerEvent) error {
	args := m.Called(ctx, group, event)
	return args.Error(0)
}
