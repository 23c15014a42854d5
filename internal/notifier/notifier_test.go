package notifier

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/planhub/messaging/internal/chat"
	"github.com/planhub/messaging/internal/database"
	"github.com/planhub/messaging/internal/stats"
	"github.com/planhub/messaging/internal/testutil"
	"github.com/planhub/messaging/internal/types"
)

func newTestNotifier(t *testing.T, push PushSender) (*Notifier, *database.MockRepository, *chat.MockBroadcaster, *stats.MockStatsUpdater) {
	repo := &database.MockRepository{}
	broadcaster := &chat.MockBroadcaster{}
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()

	n := NewNotifier(testutil.TestLogger(t), repo, broadcaster, push, su)
	return n, repo, broadcaster, su
}

func TestNotifyTaskAssignment(t *testing.T) {
	push := &MockPushSender{}
	n, repo, broadcaster, su := newTestNotifier(t, push)

	data := json.RawMessage(`{"task_id":42}`)
	repo.On("CreateNotification", mock.MatchedBy(func(params database.CreateNotificationParams) bool {
		return params.UserId == 2 && params.Id != "" && params.Title == "New task assigned"
	})).Return(database.Notification{Id: "n-1", UserId: 2, Title: "New task assigned"}, nil)
	su.On("Incr", "NotificationsCreated").Return()
	repo.On("CountUnreadNotifications", 2).Return(3, nil)
	broadcaster.On("EmitToUser", 2, types.EventTaskAssigned, mock.MatchedBy(func(payload NotificationCreated) bool {
		return payload.Notification.Id == "n-1" && payload.UnreadCount == 3
	})).Return()
	repo.On("ListPushSubscriptions", 2).Return([]database.PushSubscription{
		{Id: 1, UserId: 2, Endpoint: "https://push.example/a"},
	}, nil)
	push.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	notif, err := n.NotifyTaskAssignment(2, "Ship the release", data)
	assert.Nil(t, err, "expected no error creating notification")
	assert.Equal(t, "n-1", notif.Id)

	repo.AssertExpectations(t)
	broadcaster.AssertExpectations(t)
	push.AssertExpectations(t)
}

func TestNotifySucceedsWhenPushFails(t *testing.T) {
	push := &MockPushSender{}
	n, repo, broadcaster, su := newTestNotifier(t, push)

	repo.On("CreateNotification", mock.Anything).Return(database.Notification{Id: "n-1", UserId: 2}, nil)
	su.On("Incr", "NotificationsCreated").Return()
	su.On("Incr", "PushFailures").Return()
	repo.On("CountUnreadNotifications", 2).Return(1, nil)
	broadcaster.On("EmitToUser", 2, types.EventTaskAssigned, mock.Anything).Return()
	repo.On("ListPushSubscriptions", 2).Return([]database.PushSubscription{
		{Id: 1, UserId: 2, Endpoint: "https://push.example/a"},
	}, nil)
	push.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("endpoint unreachable"))

	_, err := n.NotifyTaskAssignment(2, "Ship the release", nil)
	assert.Nil(t, err, "expected push failure to not surface")
}

func TestPushFailureIsolation(t *testing.T) {
	push := &MockPushSender{}
	n, repo, broadcaster, su := newTestNotifier(t, push)

	repo.On("CreateNotification", mock.Anything).Return(database.Notification{Id: "n-1", UserId: 2}, nil)
	su.On("Incr", "NotificationsCreated").Return()
	su.On("Incr", "PushFailures").Return()
	repo.On("CountUnreadNotifications", 2).Return(1, nil)
	broadcaster.On("EmitToUser", 2, types.EventTaskAssigned, mock.Anything).Return()

	failing := database.PushSubscription{Id: 1, UserId: 2, Endpoint: "https://push.example/bad"}
	healthy := database.PushSubscription{Id: 2, UserId: 2, Endpoint: "https://push.example/good"}
	repo.On("ListPushSubscriptions", 2).Return([]database.PushSubscription{failing, healthy}, nil)

	push.On("Send", mock.Anything, mock.MatchedBy(func(sub types.PushSubscription) bool {
		return sub.Id == 1
	}), mock.Anything).Return(errors.New("endpoint unreachable")).Once()
	push.On("Send", mock.Anything, mock.MatchedBy(func(sub types.PushSubscription) bool {
		return sub.Id == 2
	}), mock.Anything).Return(nil).Once()

	_, err := n.NotifyTaskAssignment(2, "Ship the release", nil)
	assert.Nil(t, err, "expected one failing endpoint to not abort the operation")

	push.AssertExpectations(t)
}

func TestPushGoneSubscriptionDiscarded(t *testing.T) {
	push := &MockPushSender{}
	n, repo, broadcaster, su := newTestNotifier(t, push)

	repo.On("CreateNotification", mock.Anything).Return(database.Notification{Id: "n-1", UserId: 2}, nil)
	su.On("Incr", "NotificationsCreated").Return()
	repo.On("CountUnreadNotifications", 2).Return(1, nil)
	broadcaster.On("EmitToUser", 2, types.EventTaskAssigned, mock.Anything).Return()
	repo.On("ListPushSubscriptions", 2).Return([]database.PushSubscription{
		{Id: 1, UserId: 2, Endpoint: "https://push.example/stale"},
	}, nil)
	push.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(ErrSubscriptionGone)
	repo.On("DeletePushSubscription", 1).Return(nil)

	_, err := n.NotifyTaskAssignment(2, "Ship the release", nil)
	assert.Nil(t, err, "expected gone subscription to be cleaned up silently")

	repo.AssertExpectations(t)
}

func TestNotifyWithNilPushSender(t *testing.T) {
	n, repo, broadcaster, su := newTestNotifier(t, nil)

	repo.On("CreateNotification", mock.Anything).Return(database.Notification{Id: "n-1", UserId: 2}, nil)
	su.On("Incr", "NotificationsCreated").Return()
	repo.On("CountUnreadNotifications", 2).Return(1, nil)
	broadcaster.On("EmitToUser", 2, types.EventTaskAssigned, mock.Anything).Return()

	_, err := n.NotifyTaskAssignment(2, "Ship the release", nil)
	assert.Nil(t, err, "expected notification to succeed with push disabled")

	repo.AssertNotCalled(t, "ListPushSubscriptions", mock.Anything)
}

func TestNotifyTaskStatus(t *testing.T) {
	n, repo, broadcaster, su := newTestNotifier(t, nil)

	repo.On("CreateNotification", mock.MatchedBy(func(params database.CreateNotificationParams) bool {
		return params.Title == "Task status changed" && params.Body == `"Ship the release" is now done`
	})).Return(database.Notification{Id: "n-2", UserId: 2, Title: "Task status changed"}, nil)
	su.On("Incr", "NotificationsCreated").Return()
	repo.On("CountUnreadNotifications", 2).Return(1, nil)
	broadcaster.On("EmitToUser", 2, types.EventTaskAssigned, mock.Anything).Return()

	_, err := n.NotifyTaskStatus(2, "Ship the release", "done", nil)
	assert.Nil(t, err, "expected no error creating status notification")

	repo.AssertExpectations(t)
}

func TestMarkNotificationRead(t *testing.T) {
	n, repo, broadcaster, _ := newTestNotifier(t, nil)

	repo.On("MarkNotificationRead", 2, "n-1").Return(int64(1), nil)
	repo.On("CountUnreadNotifications", 2).Return(4, nil)
	broadcaster.On("EmitToUser", 2, types.EventNotificationRead, NotificationRead{
		NotificationId: "n-1",
		UnreadCount:    4,
	}).Return()

	err := n.MarkNotificationRead(2, "n-1")
	assert.Nil(t, err, "expected no error marking notification read")

	repo.AssertExpectations(t)
	broadcaster.AssertExpectations(t)
}

func TestMarkNotificationReadOwnerScoped(t *testing.T) {
	n, repo, broadcaster, _ := newTestNotifier(t, nil)

	// A notification owned by someone else affects zero rows.
	repo.On("MarkNotificationRead", 3, "n-1").Return(int64(0), nil)

	err := n.MarkNotificationRead(3, "n-1")
	assert.Nil(t, err, "expected foreign notification to be a silent no-op")

	repo.AssertNotCalled(t, "CountUnreadNotifications", mock.Anything)
	broadcaster.AssertNotCalled(t, "EmitToUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestSaveSubscriptionValidation(t *testing.T) {
	n, repo, _, _ := newTestNotifier(t, nil)

	var validationErr *chat.ValidationError
	_, err := n.SaveSubscription(2, "", "key", "auth")
	assert.True(t, errors.As(err, &validationErr), "expected validation error, got %v", err)

	repo.AssertNotCalled(t, "SavePushSubscription", mock.Anything)
}

func TestSaveSubscription(t *testing.T) {
	n, repo, _, _ := newTestNotifier(t, nil)

	repo.On("SavePushSubscription", database.SavePushSubscriptionParams{
		UserId:    2,
		Endpoint:  "https://push.example/a",
		P256dhKey: "p256dh",
		AuthKey:   "auth",
	}).Return(database.PushSubscription{Id: 1, UserId: 2, Endpoint: "https://push.example/a"}, nil)

	sub, err := n.SaveSubscription(2, "https://push.example/a", "p256dh", "auth")
	assert.Nil(t, err, "expected no error saving subscription")
	assert.Equal(t, 1, sub.Id)

	repo.AssertExpectations(t)
}
