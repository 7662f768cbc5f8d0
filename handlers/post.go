package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"connectly/apperr"
	"connectly/media"
	"connectly/models"
	"connectly/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxPostImages = 4

type CreatePostRequest struct {
	Content    string            `json:"content" form:"content"`
	Visibility models.Visibility `json:"visibility" form:"visibility"`
	Tags       []string          `json:"tags" form:"tags"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

// CreatePost accepts JSON, or multipart with up to four "images" files when
// uploads are configured.
func (h *Handler) CreatePost(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var req CreatePostRequest
	multipart := strings.HasPrefix(c.ContentType(), "multipart/")
	if multipart {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPostImages*media.MaxUploadSize)
		err = c.ShouldBind(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}

	ctx, cancel := withTimeout(c, uploadTimeout)
	defer cancel()

	in := services.CreatePostInput{
		Content:    req.Content,
		Visibility: req.Visibility,
		Tags:       splitTags(req.Tags),
	}
	if multipart {
		form, err := c.MultipartForm()
		if err != nil {
			h.badRequest(c, "Invalid multipart form")
			return
		}
		files := form.File["images"]
		if len(files) > 0 && h.Media == nil {
			h.fail(c, apperr.Unavailable("Uploads are not configured"))
			return
		}
		if len(files) > maxPostImages {
			h.badRequest(c, "A post can have at most "+strconv.Itoa(maxPostImages)+" images")
			return
		}
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				h.badRequest(c, "Could not read uploaded image")
				return
			}
			uploaded, err := h.Media.Upload(ctx, media.KindPostImage, me.Hex(), f)
			f.Close()
			if err != nil {
				h.fail(c, apperr.Internal("upload post image", err))
				return
			}
			in.Images = append(in.Images, models.Image{URL: uploaded.URL, PublicID: uploaded.PublicID})
		}
	}

	post, events, err := h.Posts.Create(ctx, me, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)
	createdMessage(c, "Post created successfully", gin.H{"post": post})
}

// splitTags accepts both repeated tag fields and one comma separated value.
func splitTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		out = append(out, strings.Split(t, ",")...)
	}
	return out
}

// Feed is public; anonymous callers see public posts only.
func (h *Handler) Feed(c *gin.Context) {
	me := viewer(c)
	page, limit := paging(c)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Posts.Feed(ctx, me, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, res)
}

func (h *Handler) UserPosts(c *gin.Context) {
	me := viewer(c)
	author, err := pathID(c, "userId", "user")
	if err != nil {
		h.fail(c, err)
		return
	}
	page, limit := paging(c)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	res, err := h.Posts.ByAuthor(ctx, author, me, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, res)
}

func (h *Handler) GetPost(c *gin.Context) {
	me := viewer(c)
	id, err := pathID(c, "id", "post")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	post, err := h.Posts.Get(ctx, id, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"post": post})
}

func (h *Handler) UpdatePost(c *gin.Context) {
	me, id, ok := h.userAndPost(c)
	if !ok {
		return
	}
	var req services.UpdatePostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	post, err := h.Posts.Update(ctx, id, me, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Post updated successfully", gin.H{"post": post})
}

func (h *Handler) DeletePost(c *gin.Context) {
	me, id, ok := h.userAndPost(c)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.Posts.Delete(ctx, id, me); err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Post deleted successfully", nil)
}

func (h *Handler) ToggleLike(c *gin.Context) {
	me, id, ok := h.userAndPost(c)
	if !ok {
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	post, events, err := h.Posts.ToggleLike(ctx, id, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)
	success(c, gin.H{"post": post, "isLiked": post.IsLiked, "likesCount": post.LikesCount})
}

func (h *Handler) AddComment(c *gin.Context) {
	me, id, ok := h.userAndPost(c)
	if !ok {
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	post, events, err := h.Posts.AddComment(ctx, id, me, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)
	createdMessage(c, "Comment added successfully", gin.H{"post": post})
}

func (h *Handler) DeleteComment(c *gin.Context) {
	me, id, ok := h.userAndPost(c)
	if !ok {
		return
	}
	commentID, err := pathID(c, "commentId", "comment")
	if err != nil {
		h.fail(c, err)
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	remaining, err := h.Posts.DeleteComment(ctx, id, commentID, me)
	if err != nil {
		h.fail(c, err)
		return
	}
	successMessage(c, "Comment deleted successfully", gin.H{"commentCount": remaining})
}

func (h *Handler) AddReply(c *gin.Context) {
	me, id, ok := h.userAndPost(c)
	if !ok {
		return
	}
	commentID, err := pathID(c, "commentId", "comment")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid request body")
		return
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	post, events, err := h.Posts.AddReply(ctx, id, commentID, me, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.dispatch(ctx, events)
	createdMessage(c, "Reply added successfully", gin.H{"post": post})
}

func (h *Handler) SearchPosts(c *gin.Context) {
	me, err := currentUser(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, _ := strconv.ParseInt(c.Query("limit"), 10, 64)
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	posts, err := h.Posts.Search(ctx, me, c.Query("q"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	success(c, gin.H{"posts": posts})
}

func (h *Handler) userAndPost(c *gin.Context) (me, post primitive.ObjectID, ok bool) {
	var err error
	if me, err = currentUser(c); err != nil {
		h.fail(c, err)
		return me, post, false
	}
	if post, err = pathID(c, "id", "post"); err != nil {
		h.fail(c, err)
		return me, post, false
	}
	return me, post, true
}
