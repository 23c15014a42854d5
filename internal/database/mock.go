package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) GetUserById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) CreateDirectMessage(params CreateDirectMessageParams) (DirectMessage, error) {
	args := m.Called(params)
	return args.Get(0).(DirectMessage), args.Error(1)
}

func (m *MockRepository) GetConversation(userA, userB, limit, offset int) ([]DirectMessage, error) {
	args := m.Called(userA, userB, limit, offset)
	return args.Get(0).([]DirectMessage), args.Error(1)
}

func (m *MockRepository) GetDirectMessage(id int) (DirectMessage, error) {
	args := m.Called(id)
	return args.Get(0).(DirectMessage), args.Error(1)
}

func (m *MockRepository) DeleteDirectMessage(id int) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockRepository) MarkMessagesRead(receiverId, senderId int) (int64, error) {
	args := m.Called(receiverId, senderId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetUnreadCounts(userId int) (map[int]int, error) {
	args := m.Called(userId)
	return args.Get(0).(map[int]int), args.Error(1)
}

func (m *MockRepository) SearchMessages(userId int, term string) ([]DirectMessage, error) {
	args := m.Called(userId, term)
	return args.Get(0).([]DirectMessage), args.Error(1)
}

func (m *MockRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockRepository) GetRoomWithMembers(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}

func (m *MockRepository) ListRoomsForUser(userId int) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}

func (m *MockRepository) AddRoomMembers(roomId int, userIds []int) ([]int, error) {
	args := m.Called(roomId, userIds)
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockRepository) RemoveRoomMember(roomId, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}

func (m *MockRepository) RoomMemberIds(roomId int) ([]int, error) {
	args := m.Called(roomId)
	return args.Get(0).([]int), args.Error(1)
}

func (m *MockRepository) IsRoomMember(roomId, userId int) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) DeleteRoom(roomId int) error {
	args := m.Called(roomId)
	return args.Error(0)
}

func (m *MockRepository) CreateGroupMessage(params CreateGroupMessageParams) (GroupMessage, error) {
	args := m.Called(params)
	return args.Get(0).(GroupMessage), args.Error(1)
}

func (m *MockRepository) GetRoomMessages(roomId int) ([]GroupMessage, error) {
	args := m.Called(roomId)
	return args.Get(0).([]GroupMessage), args.Error(1)
}

func (m *MockRepository) MarkGroupMessagesRead(roomId, userId int) (int64, error) {
	args := m.Called(roomId, userId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetUnreadGroupCounts(userId int) ([]RoomUnreadCount, error) {
	args := m.Called(userId)
	return args.Get(0).([]RoomUnreadCount), args.Error(1)
}

func (m *MockRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}

func (m *MockRepository) ListNotifications(userId, limit, offset int) ([]Notification, error) {
	args := m.Called(userId, limit, offset)
	return args.Get(0).([]Notification), args.Error(1)
}

func (m *MockRepository) CountUnreadNotifications(userId int) (int, error) {
	args := m.Called(userId)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) MarkNotificationRead(userId int, notificationId string) (int64, error) {
	args := m.Called(userId, notificationId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SavePushSubscription(params SavePushSubscriptionParams) (PushSubscription, error) {
	args := m.Called(params)
	return args.Get(0).(PushSubscription), args.Error(1)
}

func (m *MockRepository) ListPushSubscriptions(userId int) ([]PushSubscription, error) {
	args := m.Called(userId)
	return args.Get(0).([]PushSubscription), args.Error(1)
}

func (m *MockRepository) DeletePushSubscription(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
