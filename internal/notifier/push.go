package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/mock"

	"github.com/planhub/messaging/internal/types"
)

// ErrSubscriptionGone indicates the push service no longer knows the
// endpoint and the subscription should be discarded.
var ErrSubscriptionGone = errors.New("push subscription gone")

// PushSender delivers one payload to one subscription endpoint.
type PushSender interface {
	Send(ctx context.Context, sub types.PushSubscription, payload []byte) error
}

// WebPushSender sends VAPID-signed Web Push messages.
type WebPushSender struct {
	vapidPublicKey  string
	vapidPrivateKey string
	subject         string
}

func NewWebPushSender(publicKey, privateKey, subject string) *WebPushSender {
	return &WebPushSender{
		vapidPublicKey:  publicKey,
		vapidPrivateKey: privateKey,
		subject:         subject,
	}
}

func (w *WebPushSender) Send(ctx context.Context, sub types.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		Subscriber:      w.subject,
		VAPIDPublicKey:  w.vapidPublicKey,
		VAPIDPrivateKey: w.vapidPrivateKey,
		TTL:             60,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push endpoint returned status %d", resp.StatusCode)
	}

	return nil
}

type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) Send(ctx context.Context, sub types.PushSubscription, payload []byte) error {
	args := m.Called(ctx, sub, payload)
	return args.Error(0)
}
