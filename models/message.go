package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageImage || t == MessageFile
}

type Attachment struct {
	URL      string `bson:"url" json:"url"`
	PublicID string `bson:"publicId,omitempty" json:"publicId,omitempty"`
	FileName string `bson:"fileName,omitempty" json:"fileName,omitempty"`
	FileSize int64  `bson:"fileSize,omitempty" json:"fileSize,omitempty"`
}

type Message struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Conversation primitive.ObjectID `bson:"conversation" json:"conversationId"`
	SenderID     primitive.ObjectID `bson:"sender" json:"senderId"`
	Content      string             `bson:"content" json:"content"`
	MessageType  MessageType        `bson:"messageType" json:"messageType"`
	Attachment   *Attachment        `bson:"attachment,omitempty" json:"attachment,omitempty"`
	IsRead       bool               `bson:"isRead" json:"isRead"`
	ReadAt       *time.Time         `bson:"readAt,omitempty" json:"readAt,omitempty"`
	IsDeleted    bool               `bson:"isDeleted" json:"-"`
	DeletedAt    *time.Time         `bson:"deletedAt,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// MessageView is a message with its sender resolved to display fields.
type MessageView struct {
	Message
	Sender UserSummary `json:"sender"`
}
