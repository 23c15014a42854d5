package database

import "time"

type User struct {
	Id          int
	DisplayName string
	CreatedAt   time.Time
}

type DirectMessage struct {
	Id           int
	SenderId     int
	ReceiverId   int
	SenderName   string
	ReceiverName string
	Content      string
	Read         bool
	Attachment   *Attachment
	CreatedAt    time.Time
}

type Attachment struct {
	Id           int
	StoredName   string
	OriginalName string
	MimeType     string
	Size         int64
	PublicPath   string
	CreatedAt    time.Time
}

type Room struct {
	Id         int
	ExternalId string
	Name       string
	CreatorId  int
	CreatedAt  time.Time
	Members    []RoomMember
}

type RoomMember struct {
	UserId      int
	DisplayName string
	CreatedAt   time.Time
}

type GroupMessage struct {
	Id             int
	RoomId         int
	RoomExternalId string
	SenderId       int
	SenderName     string
	Content        string
	Read           bool
	Attachment     *Attachment
	CreatedAt      time.Time
}

type Notification struct {
	Id        string
	UserId    int
	Title     string
	Body      string
	Data      []byte
	Read      bool
	CreatedAt time.Time
}

type PushSubscription struct {
	Id        int
	UserId    int
	Endpoint  string
	P256dhKey string
	AuthKey   string
	CreatedAt time.Time
}

// RoomUnreadCount is a per-room unread tally for one user.
type RoomUnreadCount struct {
	RoomId     int
	ExternalId string
	Count      int
}

type AttachmentParams struct {
	StoredName   string
	OriginalName string
	MimeType     string
	Size         int64
	PublicPath   string
}

type CreateDirectMessageParams struct {
	SenderId   int
	ReceiverId int
	Content    string
	Attachment *AttachmentParams
}

type CreateRoomParams struct {
	Name       string
	ExternalId string
	CreatorId  int
	// MemberIds must already contain the creator and no duplicates.
	MemberIds []int
}

type CreateGroupMessageParams struct {
	RoomId     int
	SenderId   int
	Content    string
	Attachment *AttachmentParams
}

type CreateNotificationParams struct {
	Id     string
	UserId int
	Title  string
	Body   string
	Data   []byte
}

type SavePushSubscriptionParams struct {
	UserId    int
	Endpoint  string
	P256dhKey string
	AuthKey   string
}
