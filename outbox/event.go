// Package outbox carries the realtime events produced by write operations
// and delivers them to connected recipients.
package outbox

import (
	"connectly/models"
)

const (
	TypeNewMessage     = "newMessage"
	TypeMessageDeleted = "messageDeleted"
	TypeNotification   = "notification"
)

// Event is one payload addressed to one user.
type Event struct {
	Recipient string `json:"recipient"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
}

type NewMessagePayload struct {
	Message        models.MessageView `json:"message"`
	ConversationID string             `json:"conversationId"`
}

type MessageDeletedPayload struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type NotificationPayload struct {
	ID          string                  `json:"id"`
	Type        models.NotificationType `json:"type"`
	Message     string                  `json:"message"`
	Sender      models.UserSummary      `json:"sender"`
	RelatedPost string                  `json:"relatedPost,omitempty"`
}

func NewMessage(recipient string, msg models.MessageView) Event {
	return Event{
		Recipient: recipient,
		Type:      TypeNewMessage,
		Payload: NewMessagePayload{
			Message:        msg,
			ConversationID: msg.Conversation.Hex(),
		},
	}
}

func MessageDeleted(recipient, messageID, conversationID string) Event {
	return Event{
		Recipient: recipient,
		Type:      TypeMessageDeleted,
		Payload: MessageDeletedPayload{
			MessageID:      messageID,
			ConversationID: conversationID,
		},
	}
}

func Notification(n *models.Notification, sender models.UserSummary) Event {
	p := NotificationPayload{
		ID:      n.ID.Hex(),
		Type:    n.Type,
		Message: n.Message,
		Sender:  sender,
	}
	if n.RelatedPost != nil {
		p.RelatedPost = n.RelatedPost.Hex()
	}
	return Event{Recipient: n.Recipient.Hex(), Type: TypeNotification, Payload: p}
}
