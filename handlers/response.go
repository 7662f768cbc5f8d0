package handlers

import (
	"net/http"

	"connectly/apperr"

	"github.com/gin-gonic/gin"
)

type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Status: "success", Data: data})
}

func successMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, envelope{Status: "success", Message: message, Data: data})
}

func createdMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, envelope{Status: "success", Message: message, Data: data})
}

func sendError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Status: "error", Message: message})
}

// fail writes err with the status of its kind. Internal failures are logged
// and replaced by a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	status, message := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	sendError(c, status, message)
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.fail(c, apperr.Validation(message))
}
