package chat

import "github.com/stretchr/testify/mock"

// Broadcaster is the capability the service uses to mirror mutations onto
// the realtime fan-out path. The gateway implements it; tests inject a
// mock. The service never reaches into ambient connection state.
type Broadcaster interface {
	EmitToUser(userId int, event string, data any)
	EmitToRoom(roomId int, event string, data any)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) EmitToUser(userId int, event string, data any) {
	m.Called(userId, event, data)
}

func (m *MockBroadcaster) EmitToRoom(roomId int, event string, data any) {
	m.Called(roomId, event, data)
}
