package handlers

import (
	"net/http"
	"strconv"

	"connectly/apperr"
	"connectly/media"

	"github.com/gin-gonic/gin"
)

func (h *Handler) GetUser(c *gin.Context) {
	me := viewer(c)
	id, err := pathID(c, "id", "user")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	profile, err := h.Users.Profile(ctx, id, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"user": profile})
}

func (h *Handler) ToggleFollow(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	target, err := pathID(c, "id", "user")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, events, err := h.Users.ToggleFollow(ctx, me, target)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)

	msg := "User unfollowed successfully"
	if res.IsFollowing {
		msg = "User followed successfully"
	}
	successMessage(c, msg, res)
}

func (h *Handler) Followers(c *gin.Context) {
	h.followList(c, true)
}

func (h *Handler) Following(c *gin.Context) {
	h.followList(c, false)
}

func (h *Handler) followList(c *gin.Context, followers bool) {
	id, err := pathID(c, "id", "user")
	if err != nil {
		h.fail(c, err)
		return
	}
	page, limit := paging(c)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	list := h.Users.Following
	if followers {
		list = h.Users.Followers
	}
	res, err := list(ctx, id, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, res)
}

func (h *Handler) Suggestions(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "5"), 10, 64)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	users, err := h.Users.Suggestions(ctx, me, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"users": users})
}

func (h *Handler) SearchUsers(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		h.badRequest(c, "Search query is required")
		return
	}
	page, limit := paging(c)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Users.Search(ctx, q, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, res)
}

// UploadAvatar stores the multipart "image" file as the caller's profile
// picture.
func (h *Handler) UploadAvatar(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.Media == nil {
		h.fail(c, apperr.Unavailable("Uploads are not configured"))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, media.MaxUploadSize)
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		h.badRequest(c, "Please upload an image")
		return
	}
	defer file.Close()

	ctx, cancel := withTimeout(c, uploadTimeout)
	defer cancel()

	uploaded, err := h.Media.Upload(ctx, media.KindAvatar, me.Hex(), file)
	if err != nil {
		h.fail(c, apperr.Internal("upload avatar", err))
		return
	}
	user, err := h.Users.SetAvatar(ctx, me, uploaded.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Avatar updated successfully", gin.H{"user": user})
}
