package database

import (
	"time"
)

func (db *PgRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (id, user_id, title, body, data, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, user_id, title, body, data, read, created_at",
		params.Id,
		params.UserId,
		params.Title,
		params.Body,
		params.Data,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(&n.Id, &n.UserId, &n.Title, &n.Body, &n.Data, &n.Read, &n.CreatedAt)

	return n, err
}

func (db *PgRepository) ListNotifications(userId, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := db.conn.Query(
		"SELECT id, user_id, title, body, data, read, created_at FROM notifications "+
			"WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userId,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications = make([]Notification, 0, limit)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.Id, &n.UserId, &n.Title, &n.Body, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgRepository) CountUnreadNotifications(userId int) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read",
		userId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

// MarkNotificationRead only touches rows owned by userId; marking another
// user's notification matches zero rows.
func (db *PgRepository) MarkNotificationRead(userId int, notificationId string) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2 AND NOT read",
		notificationId,
		userId,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// SavePushSubscription upserts by endpoint uniqueness: re-subscribing with
// the same endpoint updates and returns the existing row.
func (db *PgRepository) SavePushSubscription(params SavePushSubscriptionParams) (PushSubscription, error) {
	res := db.conn.QueryRow(
		"INSERT INTO push_subscriptions (user_id, endpoint, p256dh_key, auth_key, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) "+
			"ON CONFLICT (endpoint) DO UPDATE SET user_id = EXCLUDED.user_id, p256dh_key = EXCLUDED.p256dh_key, auth_key = EXCLUDED.auth_key "+
			"RETURNING id, user_id, endpoint, p256dh_key, auth_key, created_at",
		params.UserId,
		params.Endpoint,
		params.P256dhKey,
		params.AuthKey,
		time.Now().UTC(),
	)

	var sub PushSubscription
	err := res.Scan(&sub.Id, &sub.UserId, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt)

	return sub, err
}

func (db *PgRepository) ListPushSubscriptions(userId int) ([]PushSubscription, error) {
	rows, err := db.conn.Query(
		"SELECT id, user_id, endpoint, p256dh_key, auth_key, created_at FROM push_subscriptions WHERE user_id = $1",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs = make([]PushSubscription, 0)
	for rows.Next() {
		var sub PushSubscription
		if err := rows.Scan(&sub.Id, &sub.UserId, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (db *PgRepository) DeletePushSubscription(id int) error {
	_, err := db.conn.Exec("DELETE FROM push_subscriptions WHERE id = $1", id)
	return err
}
