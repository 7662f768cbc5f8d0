package handlers

import (
	"context"
	"net/http"
	"strings"

	"connectly/apperr"
	"connectly/media"
	"connectly/models"
	"connectly/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SendMessageRequest struct {
	ConversationID string             `json:"conversationId" form:"conversationId"`
	Content        string             `json:"content" form:"content"`
	MessageType    models.MessageType `json:"messageType" form:"messageType"`
}

// SendMessage accepts JSON, or multipart carrying an "attachment" file.
func (h *Handler) SendMessage(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req SendMessageRequest
	multipart := strings.HasPrefix(c.ContentType(), "multipart/")
	if multipart {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadSize)
		err = c.ShouldBind(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		h.badRequest(c, "Conversation ID and content are required")
		return
	}
	convID, err := primitive.ObjectIDFromHex(req.ConversationID)
	if err != nil {
		h.badRequest(c, "Conversation ID and content are required")
		return
	}

	ctx, cancel := withTimeout(c, uploadTimeout)
	defer cancel()

	in := services.SendInput{
		ConversationID: convID,
		SenderID:       me,
		Content:        req.Content,
		Type:           req.MessageType,
	}
	if multipart {
		att, kind, err := h.uploadAttachment(ctx, c, me)
		if err != nil {
			h.fail(c, err)
			return
		}
		if att != nil {
			in.Attachment = att
			if in.Type == "" || in.Type == models.MessageText {
				in.Type = kind
			}
		}
	}

	msg, events, err := h.Chat.Send(ctx, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)
	createdMessage(c, "Message sent", gin.H{"message": msg})
}

// uploadAttachment stores the optional "attachment" file. The message type is
// image for image/* uploads and file otherwise.
func (h *Handler) uploadAttachment(ctx context.Context, c *gin.Context, me primitive.ObjectID) (*models.Attachment, models.MessageType, error) {
	file, header, err := c.Request.FormFile("attachment")
	if err == http.ErrMissingFile {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", apperr.Validation("Could not read attachment")
	}
	defer file.Close()
	if h.Media == nil {
		return nil, "", apperr.Unavailable("Uploads are not configured")
	}

	uploaded, err := h.Media.Upload(ctx, media.KindAttachment, me.Hex(), file)
	if err != nil {
		return nil, "", apperr.Internal("upload attachment", err)
	}
	kind := models.MessageFile
	if strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		kind = models.MessageImage
	}
	return &models.Attachment{
		URL:      uploaded.URL,
		PublicID: uploaded.PublicID,
		FileName: header.Filename,
		FileSize: header.Size,
	}, kind, nil
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	id, err := pathID(c, "id", "message")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	events, err := h.Chat.Delete(ctx, id, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)
	successMessage(c, "Message deleted", nil)
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	id, err := pathID(c, "conversationId", "conversation")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Chat.MarkRead(ctx, id, me); err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Messages marked as read", nil)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	n, err := h.Chat.UnreadTotal(ctx, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"unreadCount": n})
}
