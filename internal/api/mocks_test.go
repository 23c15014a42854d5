package api

import (
	"encoding/json"
	"log"
	"net/http"
	"testing"

	"github.com/stretchr/testify/mock"

	"github.com/planhub/messaging/internal/auth"
	"github.com/planhub/messaging/internal/config"
	"github.com/planhub/messaging/internal/server"
	"github.com/planhub/messaging/internal/stats"
	"github.com/planhub/messaging/internal/testutil"
	"github.com/planhub/messaging/internal/types"
)

type MockConversationService struct {
	mock.Mock
}

func (m *MockConversationService) SendDirectMessage(senderId, receiverId int, content string, file *types.FileDescriptor) (types.DirectMessage, error) {
	args := m.Called(senderId, receiverId, content, file)
	return args.Get(0).(types.DirectMessage), args.Error(1)
}

func (m *MockConversationService) GetConversation(userId, otherId, limit, offset int) ([]types.DirectMessage, error) {
	args := m.Called(userId, otherId, limit, offset)
	return args.Get(0).([]types.DirectMessage), args.Error(1)
}

func (m *MockConversationService) MarkMessagesRead(receiverId, senderId int) error {
	args := m.Called(receiverId, senderId)
	return args.Error(0)
}

func (m *MockConversationService) GetUnreadCounts(userId int) (map[int]int, error) {
	args := m.Called(userId)
	return args.Get(0).(map[int]int), args.Error(1)
}

func (m *MockConversationService) DeleteMessage(messageId, requesterId int) error {
	args := m.Called(messageId, requesterId)
	return args.Error(0)
}

func (m *MockConversationService) SearchMessages(userId int, term string) ([]types.DirectMessage, error) {
	args := m.Called(userId, term)
	return args.Get(0).([]types.DirectMessage), args.Error(1)
}

func (m *MockConversationService) CreateRoom(name string, creatorId int, memberIds []int) (types.Room, error) {
	args := m.Called(name, creatorId, memberIds)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockConversationService) GetRoom(externalId string, userId int) (types.Room, error) {
	args := m.Called(externalId, userId)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockConversationService) ListRooms(userId int) ([]types.Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]types.Room), args.Error(1)
}

func (m *MockConversationService) AddMembers(externalId string, userIds []int) (types.Room, error) {
	args := m.Called(externalId, userIds)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockConversationService) RemoveMember(externalId string, userId int) error {
	args := m.Called(externalId, userId)
	return args.Error(0)
}

func (m *MockConversationService) DeleteRoom(externalId string, requesterId int) error {
	args := m.Called(externalId, requesterId)
	return args.Error(0)
}

func (m *MockConversationService) SendGroupMessage(roomId string, senderId int, content string, file *types.FileDescriptor) (types.GroupMessage, error) {
	args := m.Called(roomId, senderId, content, file)
	return args.Get(0).(types.GroupMessage), args.Error(1)
}

func (m *MockConversationService) GetRoomMessages(externalId string, userId int) ([]types.GroupMessage, error) {
	args := m.Called(externalId, userId)
	return args.Get(0).([]types.GroupMessage), args.Error(1)
}

func (m *MockConversationService) MarkGroupMessagesRead(externalId string, userId int) error {
	args := m.Called(externalId, userId)
	return args.Error(0)
}

func (m *MockConversationService) GetUnreadGroupCounts(userId int) ([]types.RoomUnreadCount, error) {
	args := m.Called(userId)
	return args.Get(0).([]types.RoomUnreadCount), args.Error(1)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) SaveSubscription(userId int, endpoint, p256dhKey, authKey string) (types.PushSubscription, error) {
	args := m.Called(userId, endpoint, p256dhKey, authKey)
	return args.Get(0).(types.PushSubscription), args.Error(1)
}

func (m *MockNotificationService) NotifyTaskAssignment(userId int, taskTitle string, data json.RawMessage) (types.Notification, error) {
	args := m.Called(userId, taskTitle, data)
	return args.Get(0).(types.Notification), args.Error(1)
}

func (m *MockNotificationService) NotifyTaskStatus(userId int, taskTitle, status string, data json.RawMessage) (types.Notification, error) {
	args := m.Called(userId, taskTitle, status, data)
	return args.Get(0).(types.Notification), args.Error(1)
}

func (m *MockNotificationService) ListNotifications(userId, limit, offset int) ([]types.Notification, error) {
	args := m.Called(userId, limit, offset)
	return args.Get(0).([]types.Notification), args.Error(1)
}

func (m *MockNotificationService) GetUnreadCount(userId int) (int, error) {
	args := m.Called(userId)
	return args.Int(0), args.Error(1)
}

func (m *MockNotificationService) MarkNotificationRead(userId int, notificationId string) error {
	args := m.Called(userId, notificationId)
	return args.Error(0)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping() error {
	args := m.Called()
	return args.Error(0)
}

type testApp struct {
	app      *App
	chat     *MockConversationService
	notifier *MockNotificationService
	verifier *auth.MockTokenVerifier
	db       *MockPinger
	log      *log.Logger
}

func newTestApp(t *testing.T) *testApp {
	chatSvc := &MockConversationService{}
	notifierSvc := &MockNotificationService{}
	verifier := &auth.MockTokenVerifier{}
	db := &MockPinger{}

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	gateway := server.NewMessagingServer(testutil.TestLogger(t), su)

	cfg, err := config.NewConfig("localhost:0", "dsn", "c2VjcmV0", []string{"http://localhost"}, "", "", "")
	if err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	logger := testutil.TestLogger(t)
	app := NewApp(http.NewServeMux(), logger, gateway, chatSvc, notifierSvc, verifier, db, cfg)

	return &testApp{
		app:      app,
		chat:     chatSvc,
		notifier: notifierSvc,
		verifier: verifier,
		db:       db,
		log:      logger,
	}
}
