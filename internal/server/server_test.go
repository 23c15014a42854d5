package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/planhub/messaging/internal/auth"
	"github.com/planhub/messaging/internal/stats"
	"github.com/planhub/messaging/internal/testutil"
	"github.com/planhub/messaging/internal/types"
)

func newTestServer(t *testing.T, su *stats.MockStatsUpdater) *MessagingServer {
	su.On("RegisterMetric", mock.Anything).Return().Times(2)
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()

	return NewMessagingServer(testutil.TestLogger(t), su)
}

func newTestClient(t *testing.T, ms *MessagingServer, userId int) *Client {
	return &Client{
		gateway:  ms,
		log:      testutil.TestLogger(t),
		identity: auth.Identity{Id: userId},
		send:     make(chan *ServerMessage, 8),
		rooms:    make(map[string]int),
		stop:     make(chan struct{}),
	}
}

func TestNewMessagingServer(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)

	ms := newTestServer(t, su)
	assert.NotNil(t, ms, "expected server to be non-nil")
	assert.NotNil(t, ms.clients, "expected clients map to be initialized")
	assert.NotNil(t, ms.userClients, "expected userClients map to be initialized")
	assert.NotNil(t, ms.roomClients, "expected roomClients map to be initialized")
	assert.NotNil(t, ms.RegisterChan, "expected RegisterChan to be initialized")
	assert.NotNil(t, ms.deRegisterChan, "expected deRegisterChan to be initialized")
	assert.NotNil(t, ms.presence, "expected presence tracker to be initialized")
}

func TestAddClientSendsPresenceState(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})

	existing := newTestClient(t, ms, 1)
	ms.addClient(existing)
	drain(existing)

	client := newTestClient(t, ms, 2)
	ms.addClient(client)

	assert.Len(t, ms.clients, 2, "expected 2 clients after adding")
	assert.Contains(t, ms.userClients[2], client, "expected userClients to contain new client")

	// First queued message is the online-user snapshot.
	select {
	case msg := <-client.send:
		assert.Equal(t, types.EventPresenceState, msg.Event, "expected presence state event")
		state, ok := msg.Data.(PresenceState)
		assert.True(t, ok, "expected presence state payload")
		assert.ElementsMatch(t, []int{1}, state.UserIds, "expected snapshot of users online before this connection")
	default:
		t.Fatal("expected presence state to be queued to new client")
	}

	// The existing client hears about the new user coming online.
	select {
	case msg := <-existing.send:
		assert.Equal(t, types.EventPresenceChange, msg.Event, "expected presence change event")
		change, ok := msg.Data.(PresenceChange)
		assert.True(t, ok, "expected presence change payload")
		assert.Equal(t, 2, change.UserId)
		assert.True(t, change.Online, "expected online transition")
	default:
		t.Fatal("expected presence change to be broadcast to existing client")
	}
}

func TestAddClientSecondConnectionNoBroadcast(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})

	first := newTestClient(t, ms, 1)
	ms.addClient(first)
	drain(first)

	second := newTestClient(t, ms, 1)
	ms.addClient(second)
	drain(second)

	select {
	case msg := <-first.send:
		t.Fatalf("expected no broadcast for an already-online user, got %v", msg)
	default:
	}
}

func TestRemoveClientBroadcastsOffline(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})

	observer := newTestClient(t, ms, 1)
	ms.addClient(observer)
	drain(observer)

	client := newTestClient(t, ms, 2)
	ms.addClient(client)
	drain(observer)
	drain(client)

	ms.removeClient(client)

	assert.NotContains(t, ms.clients, client, "expected client to be removed")
	assert.NotContains(t, ms.userClients, 2, "expected userClients entry to be cleaned up")

	select {
	case msg := <-observer.send:
		assert.Equal(t, types.EventPresenceChange, msg.Event, "expected presence change event")
		change, ok := msg.Data.(PresenceChange)
		assert.True(t, ok, "expected presence change payload")
		assert.Equal(t, 2, change.UserId)
		assert.False(t, change.Online, "expected offline transition")
	default:
		t.Fatal("expected offline broadcast after last connection closed")
	}
}

func TestEmitToUserReachesAllConnections(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})

	c1 := newTestClient(t, ms, 1)
	c2 := newTestClient(t, ms, 1)
	other := newTestClient(t, ms, 2)
	for _, c := range []*Client{c1, c2, other} {
		ms.addClient(c)
		drain(c1)
		drain(c2)
		drain(other)
	}

	ms.EmitToUser(1, types.EventNewDirectMessage, "payload")

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			assert.Equal(t, types.EventNewDirectMessage, msg.Event)
			assert.Equal(t, "payload", msg.Data)
		default:
			t.Fatal("expected event to reach every connection of the user")
		}
	}

	select {
	case msg := <-other.send:
		t.Fatalf("expected no event for other users, got %v", msg)
	default:
	}
}

func TestEmitToUserNoConnectionsIsNoop(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})
	ms.EmitToUser(9, types.EventNewDirectMessage, "payload")
}

func TestEmitToRoom(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})

	joined := newTestClient(t, ms, 1)
	outside := newTestClient(t, ms, 2)
	ms.addClient(joined)
	ms.addClient(outside)
	drain(joined)
	drain(outside)

	ms.JoinRoom(joined, 4)

	ms.EmitToRoom(4, types.EventNewGroupMessage, "payload")

	select {
	case msg := <-joined.send:
		assert.Equal(t, types.EventNewGroupMessage, msg.Event)
	default:
		t.Fatal("expected event to reach joined connection")
	}

	select {
	case msg := <-outside.send:
		t.Fatalf("expected no event for connection not joined to room, got %v", msg)
	default:
	}

	ms.LeaveRoom(joined, 4)
	ms.EmitToRoom(4, types.EventNewGroupMessage, "payload")

	select {
	case msg := <-joined.send:
		t.Fatalf("expected no event after leaving room, got %v", msg)
	default:
	}
}

func TestRemoveClientDropsRoomSubscriptions(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})

	client := newTestClient(t, ms, 1)
	ms.addClient(client)
	ms.JoinRoom(client, 4)

	ms.removeClient(client)
	assert.NotContains(t, ms.roomClients, 4, "expected empty room entry to be cleaned up")
}

func TestMessagingServerShutdown(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})
	go ms.Run()

	done := make(chan struct{})
	go func() {
		ms.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected shutdown to complete")
	}
}

func TestMessagingServerRegisterLoop(t *testing.T) {
	ms := newTestServer(t, &stats.MockStatsUpdater{})
	go ms.Run()
	defer ms.Shutdown()

	client := newTestClient(t, ms, 1)
	ms.RegisterChan <- client

	assert.Eventually(t, func() bool {
		ms.clientsLock.RLock()
		defer ms.clientsLock.RUnlock()
		_, ok := ms.clients[client]
		return ok
	}, time.Second, 10*time.Millisecond, "expected client to be registered by run loop")

	ms.deRegisterChan <- client

	assert.Eventually(t, func() bool {
		ms.clientsLock.RLock()
		defer ms.clientsLock.RUnlock()
		_, ok := ms.clients[client]
		return !ok
	}, time.Second, 10*time.Millisecond, "expected client to be deregistered by run loop")
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}
