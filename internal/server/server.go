package server

import (
	"log"
	"sync"

	"github.com/planhub/messaging/internal/stats"
	"github.com/planhub/messaging/internal/types"
)

// MessagingServer is the realtime gateway hub. It tracks every live
// connection, indexes connections by user and by joined room, and fans
// server events out to the right send queues. It implements the
// broadcaster capability the domain services emit through.
type MessagingServer struct {
	log            *log.Logger
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	userClients    map[int]map[*Client]struct{}
	roomClients    map[int]map[*Client]struct{}
	clientsLock    sync.RWMutex
	presence       *PresenceTracker
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewMessagingServer(logger *log.Logger, su stats.StatsProvider) *MessagingServer {
	su.RegisterMetric("ActiveConnections")
	su.RegisterMetric("EventsDelivered")

	return &MessagingServer{
		log:            logger,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		userClients:    make(map[int]map[*Client]struct{}),
		roomClients:    make(map[int]map[*Client]struct{}),
		presence:       NewPresenceTracker(),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (ms *MessagingServer) Run() {
	for {
		select {
		case client := <-ms.RegisterChan:
			ms.log.Printf("adding connection for user %d", client.identity.Id)
			ms.addClient(client)
		case client := <-ms.deRegisterChan:
			ms.log.Printf("removing connection for user %d", client.identity.Id)
			ms.removeClient(client)
		case <-ms.stop:
			close(ms.done)
			return
		}
	}
}

func (ms *MessagingServer) addClient(c *Client) {
	ms.clientsLock.Lock()
	ms.clients[c] = struct{}{}
	if ms.userClients[c.identity.Id] == nil {
		ms.userClients[c.identity.Id] = make(map[*Client]struct{})
	}
	ms.userClients[c.identity.Id][c] = struct{}{}
	ms.clientsLock.Unlock()

	ms.stats.Incr("ActiveConnections")

	// The new connection gets the current online set; everyone else only
	// hears about the user's first connection.
	c.queueMessage(EventMessage(types.EventPresenceState, PresenceState{
		UserIds: ms.presence.OnlineUserIds(),
	}))

	if ms.presence.Connected(c.identity.Id) {
		ms.emitToAll(types.EventPresenceChange, PresenceChange{UserId: c.identity.Id, Online: true})
	}
}

func (ms *MessagingServer) removeClient(c *Client) {
	ms.clientsLock.Lock()
	delete(ms.clients, c)
	if set, ok := ms.userClients[c.identity.Id]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(ms.userClients, c.identity.Id)
		}
	}
	for roomId, set := range ms.roomClients {
		delete(set, c)
		if len(set) == 0 {
			delete(ms.roomClients, roomId)
		}
	}
	ms.clientsLock.Unlock()

	ms.stats.Decr("ActiveConnections")

	if ms.presence.Disconnected(c.identity.Id) {
		ms.emitToAll(types.EventPresenceChange, PresenceChange{UserId: c.identity.Id, Online: false})
	}
}

// JoinRoom subscribes a connection to a room's fan-out channel.
// Membership is checked by the caller before this point.
func (ms *MessagingServer) JoinRoom(c *Client, roomId int) {
	ms.clientsLock.Lock()
	defer ms.clientsLock.Unlock()

	if ms.roomClients[roomId] == nil {
		ms.roomClients[roomId] = make(map[*Client]struct{})
	}
	ms.roomClients[roomId][c] = struct{}{}
}

func (ms *MessagingServer) LeaveRoom(c *Client, roomId int) {
	ms.clientsLock.Lock()
	defer ms.clientsLock.Unlock()

	if set, ok := ms.roomClients[roomId]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(ms.roomClients, roomId)
		}
	}
}

// EmitToUser delivers an event to every live connection of one user. A
// user with no connections is a no-op; delivery is at-most-once.
func (ms *MessagingServer) EmitToUser(userId int, event string, data any) {
	msg := EventMessage(event, data)

	ms.clientsLock.RLock()
	defer ms.clientsLock.RUnlock()

	for c := range ms.userClients[userId] {
		if c.queueMessage(msg) {
			ms.stats.Incr("EventsDelivered")
		}
	}
}

// EmitToRoom delivers an event to every connection currently joined to
// the room.
func (ms *MessagingServer) EmitToRoom(roomId int, event string, data any) {
	msg := EventMessage(event, data)

	ms.clientsLock.RLock()
	defer ms.clientsLock.RUnlock()

	for c := range ms.roomClients[roomId] {
		if c.queueMessage(msg) {
			ms.stats.Incr("EventsDelivered")
		}
	}
}

func (ms *MessagingServer) emitToAll(event string, data any) {
	msg := EventMessage(event, data)

	ms.clientsLock.RLock()
	defer ms.clientsLock.RUnlock()

	for c := range ms.clients {
		c.queueMessage(msg)
	}
}

func (ms *MessagingServer) IsOnline(userId int) bool {
	return ms.presence.IsOnline(userId)
}

// Shutdown closes every live connection, then stops the run loop.
// Clients deregister through the run loop as their pumps exit.
func (ms *MessagingServer) Shutdown() {
	ms.log.Println("received shutdown signal")

	ms.clientsLock.RLock()
	for c := range ms.clients {
		c.stopClient()
	}
	ms.clientsLock.RUnlock()

	close(ms.stop)
	<-ms.done
}
