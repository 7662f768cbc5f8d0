package handlers

import (
	"connectly/apperr"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreateConversationRequest struct {
	UserID string `json:"userId"`
}

type CreateGroupRequest struct {
	ParticipantIDs []string `json:"participantIds"`
	GroupName      string   `json:"groupName"`
}

func (h *Handler) ListConversations(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	convs, err := h.Chat.ListConversations(ctx, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"conversations": convs})
}

// CreateConversation finds or creates the direct conversation with userId.
func (h *Handler) CreateConversation(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		h.badRequest(c, "User ID is required")
		return
	}
	other, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		h.badRequest(c, "Invalid user ID")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	conv, err := h.Chat.FindOrCreate(ctx, me, other)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"conversation": conv})
}

func (h *Handler) CreateGroup(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	members := make([]primitive.ObjectID, 0, len(req.ParticipantIDs))
	for _, raw := range req.ParticipantIDs {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			h.fail(c, apperr.Validation("Invalid participant ID "+raw))
			return
		}
		members = append(members, id)
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	conv, err := h.Chat.CreateGroup(ctx, me, members, req.GroupName)
	if err != nil {
		h.fail(c, err)
		return
	}
	createdMessage(c, "Group created successfully", gin.H{"conversation": conv})
}

// GetMessages returns one page of a conversation, oldest first, and marks
// the caller's unread messages in it as read.
func (h *Handler) GetMessages(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	id, err := pathID(c, "id", "conversation")
	if err != nil {
		h.fail(c, err)
		return
	}
	page, limit := paging(c)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Chat.ListAndMarkRead(ctx, id, me, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, res)
}
