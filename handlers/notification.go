package handlers

import (
	"github.com/gin-gonic/gin"
)

func (h *Handler) ListNotifications(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	page, limit := paging(c)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Notifications.List(ctx, me, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, res)
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	id, err := pathID(c, "id", "notification")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	n, err := h.Notifications.MarkRead(ctx, id, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"notification": n})
}
