package server

import (
	"net/http"
	"time"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope clients send over the realtime
// connection. Exactly one operation field is expected to be set.
type ClientMessage struct {
	BaseMessage
	SendDirect    *SendDirect    `json:"send_direct,omitempty"`
	SendGroup     *SendGroup     `json:"send_group,omitempty"`
	Join          *Join          `json:"join,omitempty"`
	Leave         *Leave         `json:"leave,omitempty"`
	MarkRead      *MarkRead      `json:"mark_read,omitempty"`
	MarkGroupRead *MarkGroupRead `json:"mark_group_read,omitempty"`
}

type SendDirect struct {
	ReceiverId int    `json:"receiver_id"`
	Content    string `json:"content"`
}

type SendGroup struct {
	RoomId  string `json:"room_id"`
	Content string `json:"content"`
}

type Join struct {
	RoomId string `json:"room_id"`
}

type Leave struct {
	RoomId string `json:"room_id"`
}

type MarkRead struct {
	SenderId int `json:"sender_id"`
}

type MarkGroupRead struct {
	RoomId string `json:"room_id"`
}

// ServerMessage is the envelope pushed to clients. Event/Data carries
// server-initiated fan-out; Response acknowledges a ClientMessage by id.
type ServerMessage struct {
	BaseMessage
	Event    string    `json:"event,omitempty"`
	Data     any       `json:"data,omitempty"`
	Response *Response `json:"response,omitempty"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

// PresenceChange announces a user's transition between online and offline.
type PresenceChange struct {
	UserId int  `json:"user_id"`
	Online bool `json:"online"`
}

// PresenceState is the online-user snapshot delivered on connect.
type PresenceState struct {
	UserIds []int `json:"user_ids"`
}

func EventMessage(event string, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Event: event,
		Data:  data,
	}
}

func NoErrOK(id int, data any) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Data: data,
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func ErrBadRequest(id int, msg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        msg,
		},
	}
}

func ErrNotFound(id int, msg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusNotFound,
			Error:        msg,
		},
	}
}

func ErrForbidden(id int, msg string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        msg,
		},
	}
}

func ErrInternalError(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
