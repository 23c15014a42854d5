package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const defaultPageSize = 50

const directMessageColumns = `
	m.id, m.sender_id, m.receiver_id, s.display_name, r.display_name, m.content, m.read, m.created_at,
	a.id, a.stored_name, a.original_name, a.mime_type, a.byte_size, a.public_path`

const directMessageJoins = `
	FROM direct_messages m
	JOIN users s ON m.sender_id = s.id
	JOIN users r ON m.receiver_id = r.id
	LEFT JOIN attachments a ON a.direct_message_id = m.id`

func (db *PgRepository) GetUserById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, display_name, created_at FROM users WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(&user.Id, &user.DisplayName, &user.CreatedAt)

	return user, err
}

type nullAttachment struct {
	id           sql.NullInt64
	storedName   sql.NullString
	originalName sql.NullString
	mimeType     sql.NullString
	size         sql.NullInt64
	publicPath   sql.NullString
}

func (na *nullAttachment) attachment() *Attachment {
	if !na.id.Valid {
		return nil
	}

	return &Attachment{
		Id:           int(na.id.Int64),
		StoredName:   na.storedName.String,
		OriginalName: na.originalName.String,
		MimeType:     na.mimeType.String,
		Size:         na.size.Int64,
		PublicPath:   na.publicPath.String,
	}
}

func scanDirectMessage(row interface{ Scan(...any) error }) (DirectMessage, error) {
	var msg DirectMessage
	var na nullAttachment

	err := row.Scan(
		&msg.Id,
		&msg.SenderId,
		&msg.ReceiverId,
		&msg.SenderName,
		&msg.ReceiverName,
		&msg.Content,
		&msg.Read,
		&msg.CreatedAt,
		&na.id,
		&na.storedName,
		&na.originalName,
		&na.mimeType,
		&na.size,
		&na.publicPath,
	)
	msg.Attachment = na.attachment()

	return msg, err
}

func (db *PgRepository) CreateDirectMessage(params CreateDirectMessageParams) (DirectMessage, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return DirectMessage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO direct_messages (sender_id, receiver_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, read, created_at",
		params.SenderId,
		params.ReceiverId,
		params.Content,
		time.Now().UTC(),
	)

	var msg DirectMessage
	msg.SenderId = params.SenderId
	msg.ReceiverId = params.ReceiverId
	msg.Content = params.Content
	err = res.Scan(&msg.Id, &msg.Read, &msg.CreatedAt)
	if err != nil {
		return DirectMessage{}, err
	}

	if params.Attachment != nil {
		var att Attachment
		err = tx.QueryRow(
			"INSERT INTO attachments (direct_message_id, stored_name, original_name, mime_type, byte_size, public_path) "+
				"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			msg.Id,
			params.Attachment.StoredName,
			params.Attachment.OriginalName,
			params.Attachment.MimeType,
			params.Attachment.Size,
			params.Attachment.PublicPath,
		).Scan(&att.Id)
		if err != nil {
			return DirectMessage{}, err
		}

		att.StoredName = params.Attachment.StoredName
		att.OriginalName = params.Attachment.OriginalName
		att.MimeType = params.Attachment.MimeType
		att.Size = params.Attachment.Size
		att.PublicPath = params.Attachment.PublicPath
		msg.Attachment = &att
	}

	err = tx.QueryRow(
		"SELECT s.display_name, r.display_name FROM users s, users r WHERE s.id = $1 AND r.id = $2",
		params.SenderId,
		params.ReceiverId,
	).Scan(&msg.SenderName, &msg.ReceiverName)
	if err != nil {
		return DirectMessage{}, err
	}

	if err = tx.Commit(); err != nil {
		return DirectMessage{}, err
	}

	return msg, nil
}

func (db *PgRepository) GetConversation(userA, userB, limit, offset int) ([]DirectMessage, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.Query(
		"SELECT "+directMessageColumns+directMessageJoins+
			" WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)"+
			" ORDER BY m.created_at ASC, m.id ASC LIMIT $3 OFFSET $4",
		userA,
		userB,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]DirectMessage, 0, limit)
	for rows.Next() {
		msg, err := scanDirectMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgRepository) GetDirectMessage(id int) (DirectMessage, error) {
	row := db.conn.QueryRow(
		"SELECT "+directMessageColumns+directMessageJoins+" WHERE m.id = $1 LIMIT 1",
		id,
	)

	return scanDirectMessage(row)
}

func (db *PgRepository) DeleteDirectMessage(id int) error {
	_, err := db.conn.Exec("DELETE FROM direct_messages WHERE id = $1", id)
	return err
}

func (db *PgRepository) MarkMessagesRead(receiverId, senderId int) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE direct_messages SET read = TRUE WHERE receiver_id = $1 AND sender_id = $2 AND NOT read",
		receiverId,
		senderId,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgRepository) GetUnreadCounts(userId int) (map[int]int, error) {
	rows, err := db.conn.Query(
		"SELECT sender_id, COUNT(*) FROM direct_messages WHERE receiver_id = $1 AND NOT read GROUP BY sender_id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var senderId, count int
		if err := rows.Scan(&senderId, &count); err != nil {
			return nil, err
		}
		counts[senderId] = count
	}

	return counts, rows.Err()
}

// escapeLikePattern quotes LIKE metacharacters so a search term matches
// them literally instead of as wildcards.
func escapeLikePattern(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

// SearchMessages only matches conversations the user participates in; the
// participant predicate lives in the same WHERE clause as the match.
func (db *PgRepository) SearchMessages(userId int, term string) ([]DirectMessage, error) {
	rows, err := db.conn.Query(
		"SELECT "+directMessageColumns+directMessageJoins+
			" WHERE (m.sender_id = $1 OR m.receiver_id = $1) AND m.content ILIKE '%' || $2 || '%' ESCAPE '\\'"+
			" ORDER BY m.created_at ASC, m.id ASC",
		userId,
		escapeLikePattern(term),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]DirectMessage, 0)
	for rows.Next() {
		msg, err := scanDirectMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PgRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO rooms (external_id, name, creator_id, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, external_id, name, creator_id, created_at",
		params.ExternalId,
		params.Name,
		params.CreatorId,
		time.Now().UTC(),
	)

	var room Room
	err = res.Scan(&room.Id, &room.ExternalId, &room.Name, &room.CreatorId, &room.CreatedAt)
	if err != nil {
		return Room{}, err
	}

	for _, userId := range params.MemberIds {
		_, err = tx.Exec(
			"INSERT INTO room_memberships (room_id, user_id, created_at) VALUES ($1, $2, $3)",
			room.Id,
			userId,
			time.Now().UTC(),
		)
		if err != nil {
			return Room{}, err
		}
	}

	rows, err := tx.Query(
		"SELECT id, display_name FROM users WHERE id = ANY($1) ORDER BY id",
		pq.Array(params.MemberIds),
	)
	if err != nil {
		return Room{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var member RoomMember
		if err = rows.Scan(&member.UserId, &member.DisplayName); err != nil {
			return Room{}, err
		}
		room.Members = append(room.Members, member)
	}
	if err = rows.Err(); err != nil {
		return Room{}, err
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *PgRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, name, creator_id, created_at FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(&room.Id, &room.ExternalId, &room.Name, &room.CreatorId, &room.CreatedAt)

	return room, err
}

func (db *PgRepository) GetRoomWithMembers(roomId int) (Room, error) {
	query := `
		SELECT
				r.id,
				r.external_id,
				r.name,
				r.creator_id,
				r.created_at,
				rm.user_id,
				u.display_name,
				rm.created_at
		FROM rooms r
		LEFT JOIN room_memberships rm ON r.id = rm.room_id
		LEFT JOIN users u ON rm.user_id = u.id
		WHERE r.id = $1`

	rows, err := db.conn.Query(query, roomId)
	if err != nil {
		return Room{}, fmt.Errorf("fetch room with members: %w", err)
	}
	defer rows.Close()

	var room *Room
	for rows.Next() {
		var (
			id          int
			externalId  string
			name        string
			creatorId   int
			createdAt   time.Time
			memberId    sql.NullInt64
			displayName sql.NullString
			memberSince sql.NullTime
		)

		err := rows.Scan(&id, &externalId, &name, &creatorId, &createdAt, &memberId, &displayName, &memberSince)
		if err != nil {
			return Room{}, fmt.Errorf("scan row: %w", err)
		}

		if room == nil {
			room = &Room{
				Id:         id,
				ExternalId: externalId,
				Name:       name,
				CreatorId:  creatorId,
				CreatedAt:  createdAt,
				Members:    make([]RoomMember, 0),
			}
		}

		if memberId.Valid {
			room.Members = append(room.Members, RoomMember{
				UserId:      int(memberId.Int64),
				DisplayName: displayName.String,
				CreatedAt:   memberSince.Time,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return Room{}, fmt.Errorf("rows error: %w", err)
	}

	if room == nil {
		return Room{}, sql.ErrNoRows
	}

	return *room, nil
}

func (db *PgRepository) ListRoomsForUser(userId int) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, r.name, r.creator_id, r.created_at FROM room_memberships rm "+
			"JOIN rooms r ON r.id = rm.room_id WHERE rm.user_id = $1 ORDER BY r.created_at",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms = make([]Room, 0)
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.Id, &room.ExternalId, &room.Name, &room.CreatorId, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// AddRoomMembers inserts membership rows for users not already members and
// returns the ids that were actually added. Duplicate inserts are a no-op.
func (db *PgRepository) AddRoomMembers(roomId int, userIds []int) ([]int, error) {
	added := make([]int, 0, len(userIds))
	for _, userId := range userIds {
		res, err := db.conn.Exec(
			"INSERT INTO room_memberships (room_id, user_id, created_at) VALUES ($1, $2, $3) "+
				"ON CONFLICT (room_id, user_id) DO NOTHING",
			roomId,
			userId,
			time.Now().UTC(),
		)
		if err != nil {
			return added, err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return added, err
		}
		if n > 0 {
			added = append(added, userId)
		}
	}

	return added, nil
}

func (db *PgRepository) RemoveRoomMember(roomId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM room_memberships WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)

	return err
}

func (db *PgRepository) RoomMemberIds(roomId int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT user_id FROM room_memberships WHERE room_id = $1 ORDER BY user_id",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids = make([]int, 0)
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *PgRepository) IsRoomMember(roomId, userId int) (bool, error) {
	row := db.conn.QueryRow(
		"SELECT 1 FROM room_memberships WHERE room_id = $1 AND user_id = $2 LIMIT 1",
		roomId,
		userId,
	)

	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *PgRepository) DeleteRoom(roomId int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		"DELETE FROM attachments WHERE group_message_id IN (SELECT id FROM group_messages WHERE room_id = $1)",
		roomId,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM group_messages WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM room_memberships WHERE room_id = $1", roomId)
	if err != nil {
		return err
	}

	_, err = tx.Exec("DELETE FROM rooms WHERE id = $1", roomId)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgRepository) CreateGroupMessage(params CreateGroupMessageParams) (GroupMessage, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return GroupMessage{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	res := tx.QueryRow(
		"INSERT INTO group_messages (room_id, sender_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, read, created_at",
		params.RoomId,
		params.SenderId,
		params.Content,
		time.Now().UTC(),
	)

	var msg GroupMessage
	msg.RoomId = params.RoomId
	msg.SenderId = params.SenderId
	msg.Content = params.Content
	err = res.Scan(&msg.Id, &msg.Read, &msg.CreatedAt)
	if err != nil {
		return GroupMessage{}, err
	}

	if params.Attachment != nil {
		var att Attachment
		err = tx.QueryRow(
			"INSERT INTO attachments (group_message_id, stored_name, original_name, mime_type, byte_size, public_path) "+
				"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
			msg.Id,
			params.Attachment.StoredName,
			params.Attachment.OriginalName,
			params.Attachment.MimeType,
			params.Attachment.Size,
			params.Attachment.PublicPath,
		).Scan(&att.Id)
		if err != nil {
			return GroupMessage{}, err
		}

		att.StoredName = params.Attachment.StoredName
		att.OriginalName = params.Attachment.OriginalName
		att.MimeType = params.Attachment.MimeType
		att.Size = params.Attachment.Size
		att.PublicPath = params.Attachment.PublicPath
		msg.Attachment = &att
	}

	err = tx.QueryRow(
		"SELECT u.display_name, r.external_id FROM users u, rooms r WHERE u.id = $1 AND r.id = $2",
		params.SenderId,
		params.RoomId,
	).Scan(&msg.SenderName, &msg.RoomExternalId)
	if err != nil {
		return GroupMessage{}, err
	}

	if err = tx.Commit(); err != nil {
		return GroupMessage{}, err
	}

	return msg, nil
}

func (db *PgRepository) GetRoomMessages(roomId int) ([]GroupMessage, error) {
	rows, err := db.conn.Query(
		"SELECT m.id, m.room_id, r.external_id, m.sender_id, u.display_name, m.content, m.read, m.created_at, "+
			"a.id, a.stored_name, a.original_name, a.mime_type, a.byte_size, a.public_path "+
			"FROM group_messages m "+
			"JOIN rooms r ON m.room_id = r.id "+
			"JOIN users u ON m.sender_id = u.id "+
			"LEFT JOIN attachments a ON a.group_message_id = m.id "+
			"WHERE m.room_id = $1 ORDER BY m.created_at ASC, m.id ASC",
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]GroupMessage, 0)
	for rows.Next() {
		var msg GroupMessage
		var na nullAttachment

		err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.RoomExternalId,
			&msg.SenderId,
			&msg.SenderName,
			&msg.Content,
			&msg.Read,
			&msg.CreatedAt,
			&na.id,
			&na.storedName,
			&na.originalName,
			&na.mimeType,
			&na.size,
			&na.publicPath,
		)
		if err != nil {
			return nil, err
		}

		msg.Attachment = na.attachment()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MarkGroupMessagesRead flips the message-global read flag on every message
// in the room not authored by userId. The flag is not per-member state, so
// the room appears read to all members afterwards.
func (db *PgRepository) MarkGroupMessagesRead(roomId, userId int) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE group_messages SET read = TRUE WHERE room_id = $1 AND sender_id <> $2 AND NOT read",
		roomId,
		userId,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgRepository) GetUnreadGroupCounts(userId int) ([]RoomUnreadCount, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.external_id, COUNT(m.id) FROM room_memberships rm "+
			"JOIN rooms r ON r.id = rm.room_id "+
			"LEFT JOIN group_messages m ON m.room_id = r.id AND NOT m.read AND m.sender_id <> $1 "+
			"WHERE rm.user_id = $1 GROUP BY r.id, r.external_id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts = make([]RoomUnreadCount, 0)
	for rows.Next() {
		var c RoomUnreadCount
		if err := rows.Scan(&c.RoomId, &c.ExternalId, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}

	return counts, rows.Err()
}
