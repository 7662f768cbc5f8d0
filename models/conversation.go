package models

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrDirectParticipants = errors.New("direct conversations must have exactly 2 participants")
	ErrGroupParticipants  = errors.New("group conversations need at least 2 participants")
	ErrDuplicateMember    = errors.New("participants must be distinct")
)

type UnreadCounter struct {
	User  primitive.ObjectID `bson:"user" json:"user"`
	Count int                `bson:"count" json:"count"`
}

type Conversation struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Participants  []primitive.ObjectID `bson:"participants" json:"participantIds"`
	PairKey       string               `bson:"pairKey,omitempty" json:"-"`
	LastMessage   *primitive.ObjectID  `bson:"lastMessage,omitempty" json:"lastMessageId,omitempty"`
	LastMessageAt time.Time            `bson:"lastMessageAt" json:"lastMessageAt"`
	IsGroup       bool                 `bson:"isGroup" json:"isGroup"`
	GroupName     string               `bson:"groupName,omitempty" json:"groupName,omitempty"`
	GroupAdmin    *primitive.ObjectID  `bson:"groupAdmin,omitempty" json:"groupAdmin,omitempty"`
	UnreadCount   []UnreadCounter      `bson:"unreadCount" json:"unreadCounts"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the membership invariants before a conversation is stored.
func (c *Conversation) Validate() error {
	seen := make(map[primitive.ObjectID]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if _, dup := seen[p]; dup {
			return ErrDuplicateMember
		}
		seen[p] = struct{}{}
	}
	if c.IsGroup {
		if len(c.Participants) < 2 {
			return ErrGroupParticipants
		}
		return nil
	}
	if len(c.Participants) != 2 {
		return ErrDirectParticipants
	}
	return nil
}

func (c *Conversation) HasParticipant(id primitive.ObjectID) bool {
	return containsID(c.Participants, id)
}

func (c *Conversation) UnreadFor(id primitive.ObjectID) int {
	for _, u := range c.UnreadCount {
		if u.User == id {
			return u.Count
		}
	}
	return 0
}

// PairKey returns the canonical key of an unordered participant pair.
func PairKey(a, b primitive.ObjectID) string {
	x, y := a.Hex(), b.Hex()
	if y < x {
		x, y = y, x
	}
	return x + ":" + y
}

type ConversationView struct {
	ID            primitive.ObjectID `json:"id"`
	Participants  []UserSummary      `json:"participants"`
	LastMessage   *MessageView       `json:"lastMessage,omitempty"`
	LastMessageAt time.Time          `json:"lastMessageAt"`
	IsGroup       bool               `json:"isGroup"`
	GroupName     string             `json:"groupName,omitempty"`
	UnreadCount   int                `json:"unreadCount"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}
