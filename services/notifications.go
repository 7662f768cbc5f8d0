package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"connectly/apperr"
	"connectly/models"
	"connectly/outbox"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DedupWindow is how long an identical notification is collapsed into the
// existing one.
const DedupWindow = 24 * time.Hour

type NotificationInput struct {
	Recipient      primitive.ObjectID
	Sender         primitive.ObjectID
	Type           models.NotificationType
	Message        string
	RelatedPost    *primitive.ObjectID
	RelatedComment *primitive.ObjectID
}

type NotificationPage struct {
	Notifications []models.NotificationView `json:"notifications"`
	UnreadCount   int64                     `json:"unreadCount"`
	Pagination    models.Pagination         `json:"pagination"`
}

type NotificationService struct {
	notifications NotificationRepository
	users         UserRepository

	Now func() time.Time
}

func NewNotificationService(notifications NotificationRepository, users UserRepository) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		users:         users,
		Now:           time.Now,
	}
}

// Create stores a notification unless the recipient is the sender or an
// identical one exists inside DedupWindow. created is true only when a new
// record was inserted; a self notification returns (nil, false, nil).
func (s *NotificationService) Create(ctx context.Context, in NotificationInput) (n *models.Notification, created bool, err error) {
	if in.Recipient == in.Sender {
		return nil, false, nil
	}
	if !in.Type.Valid() {
		return nil, false, apperr.Validation("Invalid notification type")
	}

	now := s.Now()
	key := models.DedupKey{
		Recipient:   in.Recipient,
		Sender:      in.Sender,
		Type:        in.Type,
		RelatedPost: in.RelatedPost,
	}
	existing, err := s.notifications.FindRecent(ctx, key, now.Add(-DedupWindow))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return nil, false, apperr.Internal("find recent notification", err)
	}

	n = s.build(in, now)
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, false, apperr.Internal("create notification", err)
	}
	return n, true, nil
}

// Notify creates a notification and returns the realtime event for it. No
// event is produced for suppressed or deduplicated notifications.
func (s *NotificationService) Notify(ctx context.Context, in NotificationInput, sender models.UserSummary) ([]outbox.Event, error) {
	n, created, err := s.Create(ctx, in)
	if err != nil || !created {
		return nil, err
	}
	return []outbox.Event{outbox.Notification(n, sender)}, nil
}

// NotifyMany bulk inserts one notification per recipient without
// deduplication. The sender is skipped.
func (s *NotificationService) NotifyMany(ctx context.Context, recipients []primitive.ObjectID, in NotificationInput, sender models.UserSummary) ([]outbox.Event, error) {
	now := s.Now()
	batch := make([]*models.Notification, 0, len(recipients))
	for _, r := range recipients {
		if r == in.Sender {
			continue
		}
		item := in
		item.Recipient = r
		batch = append(batch, s.build(item, now))
	}
	if len(batch) == 0 {
		return nil, nil
	}
	if err := s.notifications.CreateMany(ctx, batch); err != nil {
		return nil, apperr.Internal("create notifications", err)
	}

	events := make([]outbox.Event, 0, len(batch))
	for _, n := range batch {
		events = append(events, outbox.Notification(n, sender))
	}
	return events, nil
}

func (s *NotificationService) build(in NotificationInput, now time.Time) *models.Notification {
	return &models.Notification{
		ID:             primitive.NewObjectID(),
		Recipient:      in.Recipient,
		Sender:         in.Sender,
		Type:           in.Type,
		Message:        truncate(in.Message, models.NotificationMessageMaxLen),
		RelatedPost:    in.RelatedPost,
		RelatedComment: in.RelatedComment,
		CreatedAt:      now,
	}
}

// MarkRead flags a notification as read. Only its recipient may do so.
func (s *NotificationService) MarkRead(ctx context.Context, id, requester primitive.ObjectID) (*models.Notification, error) {
	n, err := s.notifications.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("Notification not found")
	}
	if err != nil {
		return nil, apperr.Internal("find notification", err)
	}
	if n.Recipient != requester {
		return nil, apperr.Forbidden("Not authorized to update this notification")
	}

	now := s.Now()
	if err := s.notifications.MarkRead(ctx, id, now); err != nil {
		return nil, apperr.Internal("mark notification read", err)
	}
	n.IsRead = true
	n.ReadAt = &now
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, recipient primitive.ObjectID, page, limit int64) (*NotificationPage, error) {
	page, limit, skip := models.PageParams(page, limit, 20, 100)

	items, total, err := s.notifications.ListForRecipient(ctx, recipient, skip, limit)
	if err != nil {
		return nil, apperr.Internal("list notifications", err)
	}
	unread, err := s.notifications.CountUnread(ctx, recipient)
	if err != nil {
		return nil, apperr.Internal("count unread notifications", err)
	}

	senderIDs := make([]primitive.ObjectID, 0, len(items))
	for _, n := range items {
		senderIDs = append(senderIDs, n.Sender)
	}
	senders, err := s.users.Summaries(ctx, senderIDs)
	if err != nil {
		return nil, apperr.Internal("load notification senders", err)
	}

	views := make([]models.NotificationView, 0, len(items))
	for _, n := range items {
		views = append(views, models.NotificationView{Notification: n, SenderInfo: senders[n.Sender]})
	}
	return &NotificationPage{
		Notifications: views,
		UnreadCount:   unread,
		Pagination:    models.NewPagination(page, limit, total),
	}, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
