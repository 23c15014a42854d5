package types

import (
	"encoding/json"
	"time"
)

// Event names routed over the realtime connection.
const (
	EventNewDirectMessage  = "new-direct-message"
	EventNewGroupMessage   = "new-group-message"
	EventMessagesRead      = "messages-read"
	EventGroupMessagesRead = "group-messages-read"
	EventRoomCreated       = "room-created"
	EventAddedToRoom       = "added-to-room"
	EventRemovedFromRoom   = "removed-from-room"
	EventRoomDeleted       = "room-deleted"
	EventTaskAssigned      = "task-assigned"
	EventNotificationRead  = "notification-read"
	EventPresenceChange    = "presence-change"
	EventPresenceState     = "presence-state"
)

type User struct {
	Id          int       `json:"id"`
	DisplayName string    `json:"display_name"`
	IsOnline    bool      `json:"is_online,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// FileDescriptor is an already-stored attachment reference. Byte storage
// and size/type validation happen before it reaches the messaging core.
type FileDescriptor struct {
	StoredName   string `json:"stored_name"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
}

type Attachment struct {
	Id           int    `json:"id"`
	StoredName   string `json:"stored_name"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	PublicPath   string `json:"public_path"`
}

type DirectMessage struct {
	Id         int         `json:"id"`
	SenderId   int         `json:"sender_id"`
	ReceiverId int         `json:"receiver_id"`
	Sender     User        `json:"sender"`
	Receiver   User        `json:"receiver"`
	Content    string      `json:"content"`
	Read       bool        `json:"read"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

type Room struct {
	Id         int       `json:"-"`
	ExternalId string    `json:"id"`
	Name       string    `json:"name"`
	CreatorId  int       `json:"creator_id"`
	Members    []User    `json:"members,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

type GroupMessage struct {
	Id         int         `json:"id"`
	RoomId     string      `json:"room_id"`
	SenderId   int         `json:"sender_id"`
	Sender     User        `json:"sender"`
	Content    string      `json:"content"`
	Read       bool        `json:"read"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

type Notification struct {
	Id        string          `json:"id"`
	UserId    int             `json:"user_id"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

type PushSubscription struct {
	Id        int       `json:"id"`
	UserId    int       `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dhKey string    `json:"p256dh_key"`
	AuthKey   string    `json:"auth_key"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// RoomUnreadCount is one entry of the per-room unread accounting for a user.
type RoomUnreadCount struct {
	RoomId string `json:"room_id"`
	Count  int    `json:"count"`
}
