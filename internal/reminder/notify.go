package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	appLog "wallcal/internal/log"
	"wallcal/internal/model"
)

// LogNotifier writes every notification to the app log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	appLog.Info("reminder: due", "key", n.Key, "body", n.Body, "start", n.Start)
	return nil
}

// Broadcaster fans a message out to connected clients.
type Broadcaster interface {
	Broadcast(msg any)
}

// BroadcastNotifier pushes notifications to live clients, such as open
// websocket connections.
type BroadcastNotifier struct {
	B Broadcaster
}

type broadcastMessage struct {
	Type string `json:"type"`
	Notification
}

func (b BroadcastNotifier) Notify(_ context.Context, n Notification) error {
	b.B.Broadcast(broadcastMessage{Type: "reminder", Notification: n})
	return nil
}

// Subscriptions lists and prunes stored Web Push subscriptions.
type Subscriptions interface {
	List(ctx context.Context) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Sender sends one Web Push message.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)
}

// WebPushSender sends through webpush-go.
type WebPushSender struct{}

func (WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, opts)
}

// PushConfig holds the VAPID identity used to sign pushes.
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subject is a mailto: or https: contact for the push service.
	Subject string
	// TTL is how long, in seconds, the push service keeps an undelivered
	// message.
	TTL int
}

// WebPushNotifier sends every notification to each stored subscription.
// Subscriptions the push service reports gone (404 or 410) are deleted.
type WebPushNotifier struct {
	subs   Subscriptions
	cfg    PushConfig
	sender Sender
}

func NewWebPushNotifier(subs Subscriptions, cfg PushConfig, sender Sender) *WebPushNotifier {
	if sender == nil {
		sender = WebPushSender{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	return &WebPushNotifier{subs: subs, cfg: cfg, sender: sender}
}

// pushPayload is what the service worker receives.
type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
	URL   string `json:"url,omitempty"`
}

func (w *WebPushNotifier) Notify(ctx context.Context, n Notification) error {
	subs, err := w.subs.List(ctx)
	if err != nil {
		return fmt.Errorf("webpush: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	data, err := json.Marshal(pushPayload{Title: n.Title, Body: n.Body, Tag: n.Key, URL: "/"})
	if err != nil {
		return fmt.Errorf("webpush: marshal payload: %w", err)
	}
	opts := &webpush.Options{
		Subscriber:      w.cfg.Subject,
		TTL:             w.cfg.TTL,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
	}

	var errs []error
	for _, sub := range subs {
		if err := w.send(ctx, sub, data, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *WebPushNotifier) send(ctx context.Context, sub model.PushSubscription, data []byte, opts *webpush.Options) error {
	resp, err := w.sender.Send(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, opts)
	if err != nil {
		return fmt.Errorf("webpush: send to subscription %d: %w", sub.ID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		appLog.Info("webpush: subscription expired, deleting", "id", sub.ID, "device", sub.DeviceName)
		if err := w.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			return fmt.Errorf("webpush: delete expired subscription %d: %w", sub.ID, err)
		}
		return nil
	case resp.StatusCode >= 400:
		return fmt.Errorf("webpush: push service returned %d for subscription %d", resp.StatusCode, sub.ID)
	}
	return nil
}
