package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/planhub/messaging/internal/auth"
	"github.com/planhub/messaging/internal/chat"
	"github.com/planhub/messaging/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ChatService is the slice of the conversation service the gateway
// dispatches client operations to.
type ChatService interface {
	SendDirectMessage(senderId, receiverId int, content string, file *types.FileDescriptor) (types.DirectMessage, error)
	SendGroupMessage(roomId string, senderId int, content string, file *types.FileDescriptor) (types.GroupMessage, error)
	MarkMessagesRead(receiverId, senderId int) error
	MarkGroupMessagesRead(roomId string, userId int) error
	GetRoom(externalId string, userId int) (types.Room, error)
}

// Client owns one websocket connection. Reads are dispatched to the chat
// service; writes drain the buffered send queue with ping keepalives.
type Client struct {
	conn      *websocket.Conn
	gateway   *MessagingServer
	chatSvc   ChatService
	log       *log.Logger
	identity  auth.Identity
	send      chan *ServerMessage
	rooms     map[string]int
	roomsLock sync.RWMutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(identity auth.Identity, conn *websocket.Conn, ms *MessagingServer, svc ChatService, l *log.Logger) *Client {
	return &Client{
		conn:     conn,
		gateway:  ms,
		chatSvc:  svc,
		log:      l,
		identity: identity,
		send:     make(chan *ServerMessage, 256),
		rooms:    make(map[string]int),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.SendDirect != nil:
		_, err := c.chatSvc.SendDirectMessage(c.identity.Id, msg.SendDirect.ReceiverId, msg.SendDirect.Content, nil)
		c.respond(msg.Id, err)
	case msg.SendGroup != nil:
		_, err := c.chatSvc.SendGroupMessage(msg.SendGroup.RoomId, c.identity.Id, msg.SendGroup.Content, nil)
		c.respond(msg.Id, err)
	case msg.Join != nil:
		c.joinRoom(msg)
	case msg.Leave != nil:
		c.leaveRoom(msg)
	case msg.MarkRead != nil:
		c.respond(msg.Id, c.chatSvc.MarkMessagesRead(c.identity.Id, msg.MarkRead.SenderId))
	case msg.MarkGroupRead != nil:
		c.respond(msg.Id, c.chatSvc.MarkGroupMessagesRead(msg.MarkGroupRead.RoomId, c.identity.Id))
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

// respond maps a service result onto the wire acknowledgement for the
// client message id.
func (c *Client) respond(id int, err error) {
	if err == nil {
		c.queueMessage(NoErrOK(id, nil))
		return
	}

	var validationErr *chat.ValidationError
	var authzErr *chat.AuthorizationError
	var notFoundErr *chat.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		c.queueMessage(ErrBadRequest(id, validationErr.Msg))
	case errors.As(err, &authzErr):
		c.queueMessage(ErrForbidden(id, authzErr.Msg))
	case errors.As(err, &notFoundErr):
		c.queueMessage(ErrNotFound(id, notFoundErr.Error()))
	default:
		c.log.Printf("dispatch error for user %d: %v", c.identity.Id, err)
		c.queueMessage(ErrInternalError(id))
	}
}

// joinRoom subscribes the connection to a room's fan-out after checking
// membership through the service.
func (c *Client) joinRoom(msg *ClientMessage) {
	room, err := c.chatSvc.GetRoom(msg.Join.RoomId, c.identity.Id)
	if err != nil {
		c.respond(msg.Id, err)
		return
	}

	c.roomsLock.Lock()
	c.rooms[room.ExternalId] = room.Id
	c.roomsLock.Unlock()

	c.gateway.JoinRoom(c, room.Id)
	c.queueMessage(NoErrOK(msg.Id, room))
}

func (c *Client) leaveRoom(msg *ClientMessage) {
	c.roomsLock.Lock()
	roomId, ok := c.rooms[msg.Leave.RoomId]
	delete(c.rooms, msg.Leave.RoomId)
	c.roomsLock.Unlock()

	if !ok {
		c.queueMessage(ErrNotFound(msg.Id, "room not joined"))
		return
	}

	c.gateway.LeaveRoom(c, roomId)
	c.queueMessage(NoErrOK(msg.Id, nil))
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	select {
	case c.gateway.deRegisterChan <- c:
	case <-c.gateway.done:
	}
	c.stopClient()
}
