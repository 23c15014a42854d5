package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planhub/messaging/internal/chat"
	"github.com/planhub/messaging/internal/database"
	"github.com/planhub/messaging/internal/stats"
	"github.com/planhub/messaging/internal/types"
)

const pushTimeout = 5 * time.Second

// NotificationRead is the payload of notification-read events.
type NotificationRead struct {
	NotificationId string `json:"notification_id"`
	UnreadCount    int    `json:"unread_count"`
}

// NotificationCreated is the payload of task-assigned events.
type NotificationCreated struct {
	Notification types.Notification `json:"notification"`
	UnreadCount  int                `json:"unread_count"`
}

// pushPayload is the JSON body handed to the push service.
type pushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notifier persists task notifications, mirrors them onto the realtime
// path, and attempts best-effort Web Push delivery. A notification
// operation succeeds once the row is durable; push failures are logged,
// never raised.
type Notifier struct {
	log         *log.Logger
	db          database.NotificationRepository
	broadcaster chat.Broadcaster
	push        PushSender
	stats       stats.StatsProvider
}

// NewNotifier creates a Notifier. push may be nil, which disables push
// delivery entirely.
func NewNotifier(logger *log.Logger, db database.NotificationRepository, b chat.Broadcaster, push PushSender, su stats.StatsProvider) *Notifier {
	su.RegisterMetric("NotificationsCreated")
	su.RegisterMetric("PushFailures")

	return &Notifier{
		log:         logger,
		db:          db,
		broadcaster: b,
		push:        push,
		stats:       su,
	}
}

// SaveSubscription upserts a push subscription keyed by endpoint.
func (n *Notifier) SaveSubscription(userId int, endpoint, p256dhKey, authKey string) (types.PushSubscription, error) {
	if strings.TrimSpace(endpoint) == "" || strings.TrimSpace(p256dhKey) == "" || strings.TrimSpace(authKey) == "" {
		return types.PushSubscription{}, &chat.ValidationError{Msg: "endpoint and keys are required"}
	}

	dbSub, err := n.db.SavePushSubscription(database.SavePushSubscriptionParams{
		UserId:    userId,
		Endpoint:  endpoint,
		P256dhKey: p256dhKey,
		AuthKey:   authKey,
	})
	if err != nil {
		return types.PushSubscription{}, fmt.Errorf("save push subscription: %w", err)
	}

	return toSubscription(dbSub), nil
}

// NotifyTaskAssignment records a task-assignment notification for the
// assignee and delivers it over every channel.
func (n *Notifier) NotifyTaskAssignment(userId int, taskTitle string, data json.RawMessage) (types.Notification, error) {
	title := "New task assigned"
	body := fmt.Sprintf("You have been assigned %q", taskTitle)
	return n.notify(userId, title, body, data)
}

// NotifyTaskStatus records a status-change notification for a task the
// user is watching.
func (n *Notifier) NotifyTaskStatus(userId int, taskTitle, status string, data json.RawMessage) (types.Notification, error) {
	title := "Task status changed"
	body := fmt.Sprintf("%q is now %s", taskTitle, status)
	return n.notify(userId, title, body, data)
}

func (n *Notifier) notify(userId int, title, body string, data json.RawMessage) (types.Notification, error) {
	dbNotif, err := n.db.CreateNotification(database.CreateNotificationParams{
		Id:     uuid.NewString(),
		UserId: userId,
		Title:  title,
		Body:   body,
		Data:   data,
	})
	if err != nil {
		return types.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	n.stats.Incr("NotificationsCreated")

	notif := toNotification(dbNotif)

	count, err := n.db.CountUnreadNotifications(userId)
	if err != nil {
		n.log.Printf("count unread notifications for user %d: %v", userId, err)
	}

	n.broadcaster.EmitToUser(userId, types.EventTaskAssigned, NotificationCreated{
		Notification: notif,
		UnreadCount:  count,
	})
	n.sendPush(userId, pushPayload{Title: title, Body: body, Data: data})

	return notif, nil
}

// sendPush fans the payload out to every subscription of the user. Each
// attempt gets its own bounded timeout and all attempts settle before
// return. Endpoints the push service reports gone are discarded.
func (n *Notifier) sendPush(userId int, payload pushPayload) {
	if n.push == nil {
		return
	}

	subs, err := n.db.ListPushSubscriptions(userId)
	if err != nil {
		n.log.Printf("list push subscriptions for user %d: %v", userId, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Printf("marshal push payload: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub database.PushSubscription) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
			defer cancel()

			err := n.push.Send(ctx, toSubscription(sub), body)
			if err == nil {
				return
			}

			if errors.Is(err, ErrSubscriptionGone) {
				n.log.Printf("discarding gone push subscription %d for user %d", sub.Id, userId)
				if delErr := n.db.DeletePushSubscription(sub.Id); delErr != nil {
					n.log.Printf("delete push subscription %d: %v", sub.Id, delErr)
				}
				return
			}

			n.stats.Incr("PushFailures")
			n.log.Printf("push to subscription %d for user %d: %v", sub.Id, userId, err)
		}(sub)
	}
	wg.Wait()
}

// ListNotifications returns the user's notifications, newest first.
func (n *Notifier) ListNotifications(userId, limit, offset int) ([]types.Notification, error) {
	dbNotifs, err := n.db.ListNotifications(userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	notifs := make([]types.Notification, len(dbNotifs))
	for i, dn := range dbNotifs {
		notifs[i] = toNotification(dn)
	}

	return notifs, nil
}

func (n *Notifier) GetUnreadCount(userId int) (int, error) {
	return n.db.CountUnreadNotifications(userId)
}

// MarkNotificationRead marks one of the user's notifications read.
// Unknown ids and notifications owned by other users are silent no-ops.
func (n *Notifier) MarkNotificationRead(userId int, notificationId string) error {
	affected, err := n.db.MarkNotificationRead(userId, notificationId)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	if affected == 0 {
		return nil
	}

	count, err := n.db.CountUnreadNotifications(userId)
	if err != nil {
		return fmt.Errorf("count unread notifications: %w", err)
	}

	n.broadcaster.EmitToUser(userId, types.EventNotificationRead, NotificationRead{
		NotificationId: notificationId,
		UnreadCount:    count,
	})

	return nil
}

func toNotification(dn database.Notification) types.Notification {
	return types.Notification{
		Id:        dn.Id,
		UserId:    dn.UserId,
		Title:     dn.Title,
		Body:      dn.Body,
		Data:      dn.Data,
		Read:      dn.Read,
		CreatedAt: dn.CreatedAt,
	}
}

func toSubscription(ds database.PushSubscription) types.PushSubscription {
	return types.PushSubscription{
		Id:        ds.Id,
		UserId:    ds.UserId,
		Endpoint:  ds.Endpoint,
		P256dhKey: ds.P256dhKey,
		AuthKey:   ds.AuthKey,
		CreatedAt: ds.CreatedAt,
	}
}
