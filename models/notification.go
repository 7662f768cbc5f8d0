package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const NotificationMessageMaxLen = 200

type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationShare   NotificationType = "share"
	NotificationMention NotificationType = "mention"
	NotificationPost    NotificationType = "post"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow,
		NotificationShare, NotificationMention, NotificationPost:
		return true
	}
	return false
}

type Notification struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient      primitive.ObjectID  `bson:"recipient" json:"recipientId"`
	Sender         primitive.ObjectID  `bson:"sender" json:"senderId"`
	Type           NotificationType    `bson:"type" json:"type"`
	Message        string              `bson:"message" json:"message"`
	RelatedPost    *primitive.ObjectID `bson:"relatedPost,omitempty" json:"relatedPost,omitempty"`
	RelatedComment *primitive.ObjectID `bson:"relatedComment,omitempty" json:"relatedComment,omitempty"`
	IsRead         bool                `bson:"isRead" json:"isRead"`
	ReadAt         *time.Time          `bson:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
}

// DedupKey identifies notifications that collapse inside the dedup window.
// A nil RelatedPost matches only notifications without a related post.
type DedupKey struct {
	Recipient   primitive.ObjectID
	Sender      primitive.ObjectID
	Type        NotificationType
	RelatedPost *primitive.ObjectID
}

type NotificationView struct {
	Notification
	SenderInfo UserSummary `json:"sender"`
}
