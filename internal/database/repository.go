package database

// ConversationRepository owns direct messages, rooms, memberships, group
// messages and attachments.
type ConversationRepository interface {
	Ping() error
	GetUserById(id int) (User, error)

	CreateDirectMessage(params CreateDirectMessageParams) (DirectMessage, error)
	GetConversation(userA, userB, limit, offset int) ([]DirectMessage, error)
	GetDirectMessage(id int) (DirectMessage, error)
	DeleteDirectMessage(id int) error
	MarkMessagesRead(receiverId, senderId int) (int64, error)
	GetUnreadCounts(userId int) (map[int]int, error)
	SearchMessages(userId int, term string) ([]DirectMessage, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	GetRoomWithMembers(roomId int) (Room, error)
	ListRoomsForUser(userId int) ([]Room, error)
	AddRoomMembers(roomId int, userIds []int) ([]int, error)
	RemoveRoomMember(roomId, userId int) error
	RoomMemberIds(roomId int) ([]int, error)
	IsRoomMember(roomId, userId int) (bool, error)
	DeleteRoom(roomId int) error

	CreateGroupMessage(params CreateGroupMessageParams) (GroupMessage, error)
	GetRoomMessages(roomId int) ([]GroupMessage, error)
	MarkGroupMessagesRead(roomId, userId int) (int64, error)
	GetUnreadGroupCounts(userId int) ([]RoomUnreadCount, error)
}

// NotificationRepository owns notification and push-subscription rows.
type NotificationRepository interface {
	CreateNotification(params CreateNotificationParams) (Notification, error)
	ListNotifications(userId, limit, offset int) ([]Notification, error)
	CountUnreadNotifications(userId int) (int, error)
	MarkNotificationRead(userId int, notificationId string) (int64, error)
	SavePushSubscription(params SavePushSubscriptionParams) (PushSubscription, error)
	ListPushSubscriptions(userId int) ([]PushSubscription, error)
	DeletePushSubscription(id int) error
}

// Repository is the full persistence surface of the messaging core.
type Repository interface {
	ConversationRepository
	NotificationRepository
}
