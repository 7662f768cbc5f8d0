package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	connections := 0
	if h.Presence != nil {
		connections = h.Presence.Len()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": connections,
		"time":        h.now().UTC(),
	})
}
