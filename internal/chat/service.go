package chat

import (
	"fmt"
	"log"
	"strings"

	"github.com/teris-io/shortid"

	"github.com/planhub/messaging/internal/database"
	"github.com/planhub/messaging/internal/stats"
	"github.com/planhub/messaging/internal/types"
)

const attachmentPublicPrefix = "/files/"

// ReadReceipt is the payload of messages-read events. UnreadCounts is only
// populated on the receiver's copy.
type ReadReceipt struct {
	SenderId     int         `json:"sender_id"`
	ReceiverId   int         `json:"receiver_id"`
	UnreadCounts map[int]int `json:"unread_counts,omitempty"`
}

// GroupReadReceipt is the payload of group-messages-read events.
type GroupReadReceipt struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
}

// RoomRef is the payload of removed-from-room and room-deleted events.
type RoomRef struct {
	RoomId string `json:"room_id"`
}

// Service is the single mutation path for conversation state. Both the
// REST handlers and the realtime gateway call it; it mirrors every
// mutation that affects other participants onto the Broadcaster.
type Service struct {
	log         *log.Logger
	db          database.ConversationRepository
	broadcaster Broadcaster
	stats       stats.StatsProvider
}

func NewService(logger *log.Logger, db database.ConversationRepository, b Broadcaster, su stats.StatsProvider) *Service {
	su.RegisterMetric("DirectMessagesSent")
	su.RegisterMetric("GroupMessagesSent")

	return &Service{
		log:         logger,
		db:          db,
		broadcaster: b,
		stats:       su,
	}
}

func toUser(id int, displayName string) types.User {
	return types.User{Id: id, DisplayName: displayName}
}

func toAttachment(a *database.Attachment) *types.Attachment {
	if a == nil {
		return nil
	}

	return &types.Attachment{
		Id:           a.Id,
		StoredName:   a.StoredName,
		OriginalName: a.OriginalName,
		MimeType:     a.MimeType,
		Size:         a.Size,
		PublicPath:   a.PublicPath,
	}
}

func toDirectMessage(m database.DirectMessage) types.DirectMessage {
	return types.DirectMessage{
		Id:         m.Id,
		SenderId:   m.SenderId,
		ReceiverId: m.ReceiverId,
		Sender:     toUser(m.SenderId, m.SenderName),
		Receiver:   toUser(m.ReceiverId, m.ReceiverName),
		Content:    m.Content,
		Read:       m.Read,
		Attachment: toAttachment(m.Attachment),
		Timestamp:  m.CreatedAt,
	}
}

func toDirectMessages(msgs []database.DirectMessage) []types.DirectMessage {
	out := make([]types.DirectMessage, len(msgs))
	for i, m := range msgs {
		out[i] = toDirectMessage(m)
	}
	return out
}

func toRoom(r database.Room) types.Room {
	room := types.Room{
		Id:         r.Id,
		ExternalId: r.ExternalId,
		Name:       r.Name,
		CreatorId:  r.CreatorId,
		CreatedAt:  r.CreatedAt,
	}

	for _, m := range r.Members {
		room.Members = append(room.Members, toUser(m.UserId, m.DisplayName))
	}

	return room
}

func toGroupMessage(m database.GroupMessage) types.GroupMessage {
	return types.GroupMessage{
		Id:         m.Id,
		RoomId:     m.RoomExternalId,
		SenderId:   m.SenderId,
		Sender:     toUser(m.SenderId, m.SenderName),
		Content:    m.Content,
		Read:       m.Read,
		Attachment: toAttachment(m.Attachment),
		Timestamp:  m.CreatedAt,
	}
}

func attachmentParams(file *types.FileDescriptor) *database.AttachmentParams {
	if file == nil {
		return nil
	}

	return &database.AttachmentParams{
		StoredName:   file.StoredName,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		Size:         file.Size,
		PublicPath:   attachmentPublicPrefix + file.StoredName,
	}
}

// SendDirectMessage persists a direct message (with its attachment, if
// any, in the same transaction) and fans it out to both participants'
// personal channels.
func (s *Service) SendDirectMessage(senderId, receiverId int, content string, file *types.FileDescriptor) (types.DirectMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return types.DirectMessage{}, &ValidationError{Msg: "message content cannot be empty"}
	}

	if _, err := s.db.GetUserById(receiverId); err != nil {
		return types.DirectMessage{}, notFound(err, "user")
	}

	dbMsg, err := s.db.CreateDirectMessage(database.CreateDirectMessageParams{
		SenderId:   senderId,
		ReceiverId: receiverId,
		Content:    content,
		Attachment: attachmentParams(file),
	})
	if err != nil {
		return types.DirectMessage{}, fmt.Errorf("create direct message: %w", err)
	}

	s.stats.Incr("DirectMessagesSent")

	msg := toDirectMessage(dbMsg)
	s.broadcaster.EmitToUser(senderId, types.EventNewDirectMessage, msg)
	s.broadcaster.EmitToUser(receiverId, types.EventNewDirectMessage, msg)

	return msg, nil
}

func (s *Service) GetConversation(userId, otherId, limit, offset int) ([]types.DirectMessage, error) {
	msgs, err := s.db.GetConversation(userId, otherId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return toDirectMessages(msgs), nil
}

// MarkMessagesRead flips all unread messages from senderId to receiverId
// to read. Idempotent; fan-out only happens when something changed.
func (s *Service) MarkMessagesRead(receiverId, senderId int) error {
	affected, err := s.db.MarkMessagesRead(receiverId, senderId)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	if affected == 0 {
		return nil
	}

	counts, err := s.db.GetUnreadCounts(receiverId)
	if err != nil {
		return fmt.Errorf("get unread counts: %w", err)
	}

	// The receiver's other sessions get the recomputed counts; the sender
	// gets a bare read receipt.
	s.broadcaster.EmitToUser(receiverId, types.EventMessagesRead, ReadReceipt{
		SenderId:     senderId,
		ReceiverId:   receiverId,
		UnreadCounts: counts,
	})
	s.broadcaster.EmitToUser(senderId, types.EventMessagesRead, ReadReceipt{
		SenderId:   senderId,
		ReceiverId: receiverId,
	})

	return nil
}

func (s *Service) GetUnreadCounts(userId int) (map[int]int, error) {
	return s.db.GetUnreadCounts(userId)
}

// DeleteMessage hard-deletes a direct message. Only its sender may do so.
func (s *Service) DeleteMessage(messageId, requesterId int) error {
	msg, err := s.db.GetDirectMessage(messageId)
	if err != nil {
		return notFound(err, "message")
	}

	if msg.SenderId != requesterId {
		return &AuthorizationError{Msg: "only the sender may delete a message"}
	}

	return s.db.DeleteDirectMessage(messageId)
}

func (s *Service) SearchMessages(userId int, term string) ([]types.DirectMessage, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, &ValidationError{Msg: "search term cannot be empty"}
	}

	msgs, err := s.db.SearchMessages(userId, term)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	return toDirectMessages(msgs), nil
}

// dedupeMembers returns the union of memberIds and the creator with
// duplicates removed, creator first.
func dedupeMembers(creatorId int, memberIds []int) []int {
	seen := map[int]struct{}{creatorId: {}}
	members := []int{creatorId}
	for _, id := range memberIds {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}

// CreateRoom creates a room and its memberships atomically. The creator is
// always a member, whether or not memberIds lists them.
func (s *Service) CreateRoom(name string, creatorId int, memberIds []int) (types.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Room{}, &ValidationError{Msg: "room name cannot be empty"}
	}
	if memberIds == nil {
		return types.Room{}, &ValidationError{Msg: "member list is required"}
	}

	externalId, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	dbRoom, err := s.db.CreateRoom(database.CreateRoomParams{
		Name:       name,
		ExternalId: externalId,
		CreatorId:  creatorId,
		MemberIds:  dedupeMembers(creatorId, memberIds),
	})
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	room := toRoom(dbRoom)
	for _, member := range room.Members {
		s.broadcaster.EmitToUser(member.Id, types.EventRoomCreated, room)
	}

	return room, nil
}

// GetRoom returns a room with its members. Membership is the authorization
// boundary for reading room state.
func (s *Service) GetRoom(externalId string, userId int) (types.Room, error) {
	dbRoom, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		return types.Room{}, notFound(err, "room")
	}

	member, err := s.db.IsRoomMember(dbRoom.Id, userId)
	if err != nil {
		return types.Room{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return types.Room{}, &AuthorizationError{Msg: "not a member of this room"}
	}

	full, err := s.db.GetRoomWithMembers(dbRoom.Id)
	if err != nil {
		return types.Room{}, notFound(err, "room")
	}

	return toRoom(full), nil
}

func (s *Service) ListRooms(userId int) ([]types.Room, error) {
	dbRooms, err := s.db.ListRoomsForUser(userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]types.Room, len(dbRooms))
	for i, r := range dbRooms {
		rooms[i] = toRoom(r)
	}

	return rooms, nil
}

// AddMembers adds userIds to the room as an idempotent union; users who
// are already members are skipped. Each newly added user gets an
// added-to-room event.
func (s *Service) AddMembers(externalId string, userIds []int) (types.Room, error) {
	if len(userIds) == 0 {
		return types.Room{}, &ValidationError{Msg: "member list is required"}
	}

	dbRoom, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		return types.Room{}, notFound(err, "room")
	}

	added, err := s.db.AddRoomMembers(dbRoom.Id, userIds)
	if err != nil {
		return types.Room{}, fmt.Errorf("add room members: %w", err)
	}

	full, err := s.db.GetRoomWithMembers(dbRoom.Id)
	if err != nil {
		return types.Room{}, notFound(err, "room")
	}

	room := toRoom(full)
	for _, userId := range added {
		s.broadcaster.EmitToUser(userId, types.EventAddedToRoom, room)
	}

	return room, nil
}

// RemoveMember deletes the membership row; removing a non-member is a
// no-op.
func (s *Service) RemoveMember(externalId string, userId int) error {
	dbRoom, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		return notFound(err, "room")
	}

	if err := s.db.RemoveRoomMember(dbRoom.Id, userId); err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}

	s.broadcaster.EmitToUser(userId, types.EventRemovedFromRoom, RoomRef{RoomId: externalId})

	return nil
}

// DeleteRoom cascades to memberships and group messages. The member set is
// snapshotted before deletion so the room-deleted broadcast reaches every
// former member.
func (s *Service) DeleteRoom(externalId string, requesterId int) error {
	dbRoom, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		return notFound(err, "room")
	}

	if dbRoom.CreatorId != requesterId {
		return &AuthorizationError{Msg: "only the creator may delete a room"}
	}

	memberIds, err := s.db.RoomMemberIds(dbRoom.Id)
	if err != nil {
		return fmt.Errorf("snapshot room members: %w", err)
	}

	if err := s.db.DeleteRoom(dbRoom.Id); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	for _, userId := range memberIds {
		s.broadcaster.EmitToUser(userId, types.EventRoomDeleted, RoomRef{RoomId: externalId})
	}

	return nil
}

// SendGroupMessage persists a message in a room. Room membership is the
// sole authorization boundary for posting.
func (s *Service) SendGroupMessage(externalRoomId string, senderId int, content string, file *types.FileDescriptor) (types.GroupMessage, error) {
	dbRoom, err := s.db.GetRoomByExternalId(externalRoomId)
	if err != nil {
		return types.GroupMessage{}, notFound(err, "room")
	}

	member, err := s.db.IsRoomMember(dbRoom.Id, senderId)
	if err != nil {
		return types.GroupMessage{}, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return types.GroupMessage{}, &AuthorizationError{Msg: "not a member of this room"}
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return types.GroupMessage{}, &ValidationError{Msg: "message content cannot be empty"}
	}

	dbMsg, err := s.db.CreateGroupMessage(database.CreateGroupMessageParams{
		RoomId:     dbRoom.Id,
		SenderId:   senderId,
		Content:    content,
		Attachment: attachmentParams(file),
	})
	if err != nil {
		return types.GroupMessage{}, fmt.Errorf("create group message: %w", err)
	}

	s.stats.Incr("GroupMessagesSent")

	msg := toGroupMessage(dbMsg)
	s.broadcaster.EmitToRoom(dbRoom.Id, types.EventNewGroupMessage, msg)

	return msg, nil
}

func (s *Service) GetRoomMessages(externalId string, userId int) ([]types.GroupMessage, error) {
	dbRoom, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		return nil, notFound(err, "room")
	}

	member, err := s.db.IsRoomMember(dbRoom.Id, userId)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, &AuthorizationError{Msg: "not a member of this room"}
	}

	dbMsgs, err := s.db.GetRoomMessages(dbRoom.Id)
	if err != nil {
		return nil, fmt.Errorf("get room messages: %w", err)
	}

	msgs := make([]types.GroupMessage, len(dbMsgs))
	for i, m := range dbMsgs {
		msgs[i] = toGroupMessage(m)
	}

	return msgs, nil
}

// MarkGroupMessagesRead marks all messages in the room not authored by
// userId as read. The read flag is message-global, not per-member, so the
// room appears read to every member afterwards. Unread counts in rooms
// with more than two members are approximate.
func (s *Service) MarkGroupMessagesRead(externalId string, userId int) error {
	dbRoom, err := s.db.GetRoomByExternalId(externalId)
	if err != nil {
		return notFound(err, "room")
	}

	member, err := s.db.IsRoomMember(dbRoom.Id, userId)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return &AuthorizationError{Msg: "not a member of this room"}
	}

	affected, err := s.db.MarkGroupMessagesRead(dbRoom.Id, userId)
	if err != nil {
		return fmt.Errorf("mark group messages read: %w", err)
	}

	if affected == 0 {
		return nil
	}

	s.broadcaster.EmitToRoom(dbRoom.Id, types.EventGroupMessagesRead, GroupReadReceipt{
		RoomId: externalId,
		UserId: userId,
	})

	return nil
}

func (s *Service) GetUnreadGroupCounts(userId int) ([]types.RoomUnreadCount, error) {
	dbCounts, err := s.db.GetUnreadGroupCounts(userId)
	if err != nil {
		return nil, fmt.Errorf("get unread group counts: %w", err)
	}

	counts := make([]types.RoomUnreadCount, len(dbCounts))
	for i, c := range dbCounts {
		counts[i] = types.RoomUnreadCount{RoomId: c.ExternalId, Count: c.Count}
	}

	return counts, nil
}
