package handlers

import (
	"connectly/apperr"
	"connectly/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SubscribeRequest struct {
	Endpoint string          `json:"endpoint"`
	Keys     models.PushKeys `json:"keys"`
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *Handler) VAPIDKey(c *gin.Context) {
	if h.VAPIDPublicKey == "" {
		h.fail(c, apperr.Unavailable("Push notifications are not configured"))
		return
	}
	success(c, gin.H{"publicKey": h.VAPIDPublicKey})
}

// SubscribePush binds a browser push endpoint to the caller. Posting the
// same endpoint again moves it to the current user.
func (h *Handler) SubscribePush(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.Subscriptions == nil {
		h.fail(c, apperr.Unavailable("Push notifications are not configured"))
		return
	}
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		h.badRequest(c, "Endpoint and keys are required")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	sub := &models.PushSubscription{
		ID:        primitive.NewObjectID(),
		UserID:    me,
		Endpoint:  req.Endpoint,
		Keys:      req.Keys,
		CreatedAt: h.now(),
	}
	if err := h.Subscriptions.Upsert(ctx, sub); err != nil {
		h.fail(c, apperr.Internal("save push subscription", err))
		return
	}
	successMessage(c, "Push subscription saved", nil)
}

func (h *Handler) UnsubscribePush(c *gin.Context) {
	if _, err := currentUser(c); err != nil {
		h.fail(c, err)
		return
	}
	if h.Subscriptions == nil {
		h.fail(c, apperr.Unavailable("Push notifications are not configured"))
		return
	}
	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Endpoint == "" {
		h.badRequest(c, "Endpoint is required")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Subscriptions.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		h.fail(c, apperr.Internal("delete push subscription", err))
		return
	}
	successMessage(c, "Push subscription removed", nil)
}
