// Package push delivers events to users with no live socket through the
// Web Push protocol.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"connectly/models"
	"connectly/outbox"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultTTL  = 30
	maxBodyRune = 100
)

type SubscriptionStore interface {
	ForUser(ctx context.Context, user primitive.ObjectID) ([]models.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// SendFunc matches webpush.SendNotificationWithContext.
type SendFunc func(ctx context.Context, message []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

type Notifier struct {
	subs   SubscriptionStore
	keys   VAPID
	logger *slog.Logger

	// Send defaults to webpush.SendNotificationWithContext.
	Send SendFunc
}

func NewNotifier(subs SubscriptionStore, keys VAPID, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:   subs,
		keys:   keys,
		logger: logger,
		Send:   webpush.SendNotificationWithContext,
	}
}

// Message is the JSON body the service worker receives.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// NotifyOffline pushes ev to every browser the recipient subscribed.
// Subscriptions the push service reports as gone are deleted.
func (n *Notifier) NotifyOffline(ctx context.Context, ev outbox.Event) error {
	msg, ok := Render(ev)
	if !ok {
		return nil
	}
	userID, err := primitive.ObjectIDFromHex(ev.Recipient)
	if err != nil {
		return fmt.Errorf("push: recipient %q: %w", ev.Recipient, err)
	}
	subs, err := n.subs.ForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("push: load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		if err := n.sendOne(ctx, body, sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendOne(ctx context.Context, body []byte, sub models.PushSubscription) error {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}
	resp, err := n.Send(ctx, body, target, &webpush.Options{
		Subscriber:      n.keys.Subject,
		VAPIDPublicKey:  n.keys.PublicKey,
		VAPIDPrivateKey: n.keys.PrivateKey,
		TTL:             defaultTTL,
	})
	if err != nil {
		return fmt.Errorf("push: send to %s: %w", sub.Endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		n.logger.Info("push subscription expired, deleting", "user", sub.UserID.Hex(), "status", resp.StatusCode)
		if err := n.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
			return fmt.Errorf("push: delete expired subscription: %w", err)
		}
		return nil
	case resp.StatusCode >= 300:
		return fmt.Errorf("push: %s answered %d", sub.Endpoint, resp.StatusCode)
	}
	n.logger.Debug("push delivered", "user", sub.UserID.Hex())
	return nil
}

// Render turns an event into a push message. Events without a visible
// counterpart, such as deletions, report false.
func Render(ev outbox.Event) (Message, bool) {
	switch p := ev.Payload.(type) {
	case outbox.NewMessagePayload:
		body := p.Message.Content
		if body == "" && p.Message.Attachment != nil {
			body = "Sent an attachment"
		}
		return Message{
			Title: senderName(p.Message.Sender) + " sent a message",
			Body:  truncate(body, maxBodyRune),
			Icon:  p.Message.Sender.ProfilePicture,
			Data:  map[string]string{"url": "/messages", "conversationId": p.ConversationID},
		}, true
	case outbox.NotificationPayload:
		data := map[string]string{"url": "/notifications", "notificationId": p.ID}
		if p.RelatedPost != "" {
			data["postId"] = p.RelatedPost
		}
		return Message{
			Title: "Connectly",
			Body:  truncate(p.Message, maxBodyRune),
			Icon:  p.Sender.ProfilePicture,
			Data:  data,
		}, true
	}
	return Message{}, false
}

func senderName(u models.UserSummary) string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return "Someone"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
