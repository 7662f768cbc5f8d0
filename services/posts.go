package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"connectly/apperr"
	"connectly/models"
	"connectly/outbox"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CreatePostInput struct {
	Content    string
	Visibility models.Visibility
	Tags       []string
	Images     []models.Image
}

type UpdatePostInput struct {
	Content    *string            `json:"content"`
	Visibility *models.Visibility `json:"visibility"`
	Tags       *[]string          `json:"tags"`
}

type PostPage struct {
	Posts      []models.PostView `json:"posts"`
	Pagination models.Pagination `json:"pagination"`
}

type PostService struct {
	posts         PostRepository
	users         UserRepository
	notifications *NotificationService

	Now func() time.Time
}

func NewPostService(posts PostRepository, users UserRepository, notifications *NotificationService) *PostService {
	return &PostService{
		posts:         posts,
		users:         users,
		notifications: notifications,
		Now:           time.Now,
	}
}

// Create publishes a post. Unless it is private, every follower of the
// author gets a "post" notification.
func (s *PostService) Create(ctx context.Context, author primitive.ObjectID, in CreatePostInput) (*models.PostView, []outbox.Event, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Images) == 0 {
		return nil, nil, apperr.Validation("Post must have content or images")
	}
	if utf8.RuneCountInString(content) > models.PostContentMaxLen {
		return nil, nil, apperr.Validation("Post content cannot exceed 2000 characters")
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if !in.Visibility.Valid() {
		return nil, nil, apperr.Validation("Invalid visibility")
	}

	user, err := s.user(ctx, author)
	if err != nil {
		return nil, nil, err
	}

	now := s.Now()
	p := &models.Post{
		ID:          primitive.NewObjectID(),
		Author:      author,
		Content:     content,
		Images:      nonNil(in.Images),
		Likes:       []models.Like{},
		Comments:    []models.Comment{},
		Tags:        normalizeTags(in.Tags),
		Visibility:  in.Visibility,
		EditHistory: []models.Edit{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.posts.Create(ctx, p); err != nil {
		return nil, nil, apperr.Internal("create post", err)
	}
	view := models.NewPostView(*p, user.Summary(), author)

	if p.Visibility == models.VisibilityPrivate || len(user.Followers) == 0 {
		return &view, nil, nil
	}
	events, err := s.notifications.NotifyMany(ctx, user.Followers, NotificationInput{
		Sender:      author,
		Type:        models.NotificationPost,
		Message:     displayName(user) + " shared a new post",
		RelatedPost: &p.ID,
	}, user.Summary())
	if err != nil {
		return nil, nil, err
	}
	return &view, events, nil
}

func (s *PostService) Get(ctx context.Context, id, viewer primitive.ObjectID) (*models.PostView, error) {
	p, err := s.visiblePost(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p, viewer)
}

// Update edits an author's own post. A content change is recorded in the
// edit history.
func (s *PostService) Update(ctx context.Context, id, editor primitive.ObjectID, in UpdatePostInput) (*models.PostView, error) {
	p, err := s.post(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Author != editor {
		return nil, apperr.Forbidden("Not authorized to update this post")
	}

	now := s.Now()
	if in.Content != nil {
		content := strings.TrimSpace(*in.Content)
		if content == "" && len(p.Images) == 0 {
			return nil, apperr.Validation("Post must have content or images")
		}
		if utf8.RuneCountInString(content) > models.PostContentMaxLen {
			return nil, apperr.Validation("Post content cannot exceed 2000 characters")
		}
		if content != p.Content {
			p.EditHistory = append(p.EditHistory, models.Edit{Content: p.Content, EditedAt: now})
			p.Content = content
			p.IsEdited = true
		}
	}
	if in.Visibility != nil {
		if !in.Visibility.Valid() {
			return nil, apperr.Validation("Invalid visibility")
		}
		p.Visibility = *in.Visibility
	}
	if in.Tags != nil {
		p.Tags = normalizeTags(*in.Tags)
	}
	p.UpdatedAt = now

	if err := s.posts.Save(ctx, p); err != nil {
		return nil, apperr.Internal("update post", err)
	}
	return s.view(ctx, p, editor)
}

// Delete removes the post document. Notifications referring to it are kept.
func (s *PostService) Delete(ctx context.Context, id, requester primitive.ObjectID) error {
	p, err := s.post(ctx, id)
	if err != nil {
		return err
	}
	if p.Author != requester {
		return apperr.Forbidden("Not authorized to delete this post")
	}
	if err := s.posts.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return apperr.Internal("delete post", err)
	}
	return nil
}

// ToggleLike likes the post, or unlikes it when the user already did. A new
// like notifies the author.
func (s *PostService) ToggleLike(ctx context.Context, id, user primitive.ObjectID) (*models.PostView, []outbox.Event, error) {
	p, err := s.visiblePost(ctx, id, user)
	if err != nil {
		return nil, nil, err
	}

	if p.LikedBy(user) {
		if _, err := s.posts.RemoveLike(ctx, id, user); err != nil {
			return nil, nil, apperr.Internal("remove like", err)
		}
		return s.reload(ctx, id, user, nil)
	}

	added, err := s.posts.AddLike(ctx, id, models.Like{User: user, CreatedAt: s.Now()})
	if err != nil {
		return nil, nil, apperr.Internal("add like", err)
	}
	if !added {
		return s.reload(ctx, id, user, nil)
	}

	liker, err := s.user(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.notifications.Notify(ctx, NotificationInput{
		Recipient:   p.Author,
		Sender:      user,
		Type:        models.NotificationLike,
		Message:     displayName(liker) + " liked your post",
		RelatedPost: &p.ID,
	}, liker.Summary())
	if err != nil {
		return nil, nil, err
	}
	return s.reload(ctx, id, user, events)
}

func (s *PostService) AddComment(ctx context.Context, id, user primitive.ObjectID, content string) (*models.PostView, []outbox.Event, error) {
	content, err := validComment(content)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.visiblePost(ctx, id, user)
	if err != nil {
		return nil, nil, err
	}

	c := models.Comment{
		ID:        primitive.NewObjectID(),
		User:      user,
		Content:   content,
		Replies:   []models.Reply{},
		CreatedAt: s.Now(),
	}
	if err := s.posts.AddComment(ctx, id, c); err != nil {
		return nil, nil, apperr.Internal("add comment", err)
	}

	commenter, err := s.user(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.notifications.Notify(ctx, NotificationInput{
		Recipient:      p.Author,
		Sender:         user,
		Type:           models.NotificationComment,
		Message:        displayName(commenter) + " commented on your post",
		RelatedPost:    &p.ID,
		RelatedComment: &c.ID,
	}, commenter.Summary())
	if err != nil {
		return nil, nil, err
	}
	return s.reload(ctx, id, user, events)
}

// DeleteComment removes a comment. The comment author and the post author
// may both do this.
func (s *PostService) DeleteComment(ctx context.Context, postID, commentID, requester primitive.ObjectID) (int, error) {
	p, err := s.post(ctx, postID)
	if err != nil {
		return 0, err
	}
	c := p.FindComment(commentID)
	if c == nil {
		return 0, apperr.NotFound("Comment not found")
	}
	if c.User != requester && p.Author != requester {
		return 0, apperr.Forbidden("Not authorized to delete this comment")
	}
	if err := s.posts.RemoveComment(ctx, postID, commentID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return 0, apperr.Internal("delete comment", err)
	}
	return len(p.Comments) - 1, nil
}

// AddReply answers a comment and notifies the comment's author.
func (s *PostService) AddReply(ctx context.Context, postID, commentID, user primitive.ObjectID, content string) (*models.PostView, []outbox.Event, error) {
	content, err := validComment(content)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.visiblePost(ctx, postID, user)
	if err != nil {
		return nil, nil, err
	}
	c := p.FindComment(commentID)
	if c == nil {
		return nil, nil, apperr.NotFound("Comment not found")
	}

	r := models.Reply{ID: primitive.NewObjectID(), User: user, Content: content, CreatedAt: s.Now()}
	if err := s.posts.AddReply(ctx, postID, commentID, r); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, apperr.NotFound("Comment not found")
		}
		return nil, nil, apperr.Internal("add reply", err)
	}

	replier, err := s.user(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.notifications.Notify(ctx, NotificationInput{
		Recipient:      c.User,
		Sender:         user,
		Type:           models.NotificationComment,
		Message:        displayName(replier) + " replied to your comment",
		RelatedPost:    &p.ID,
		RelatedComment: &c.ID,
	}, replier.Summary())
	if err != nil {
		return nil, nil, err
	}
	return s.reload(ctx, postID, user, events)
}

// Feed lists posts the viewer may see, newest first.
func (s *PostService) Feed(ctx context.Context, viewer primitive.ObjectID, page, limit int64) (*PostPage, error) {
	return s.list(ctx, viewer, nil, page, limit)
}

// ByAuthor lists one author's posts visible to viewer.
func (s *PostService) ByAuthor(ctx context.Context, author, viewer primitive.ObjectID, page, limit int64) (*PostPage, error) {
	if _, err := s.user(ctx, author); err != nil {
		return nil, err
	}
	return s.list(ctx, viewer, &author, page, limit)
}

// list treats a zero viewer as anonymous: only public posts qualify.
func (s *PostService) list(ctx context.Context, viewer primitive.ObjectID, author *primitive.ObjectID, page, limit int64) (*PostPage, error) {
	var following []primitive.ObjectID
	if !viewer.IsZero() {
		me, err := s.user(ctx, viewer)
		if err != nil {
			return nil, err
		}
		following = me.Following
	}
	page, limit, skip := models.PageParams(page, limit, 10, 50)
	posts, total, err := s.posts.Feed(ctx, models.FeedQuery{
		Viewer:    viewer,
		Following: following,
		Author:    author,
		Skip:      skip,
		Limit:     limit,
	})
	if err != nil {
		return nil, apperr.Internal("load feed", err)
	}
	views, err := s.views(ctx, posts, viewer)
	if err != nil {
		return nil, err
	}
	return &PostPage{Posts: views, Pagination: models.NewPagination(page, limit, total)}, nil
}

// Search matches public posts by content or tag.
func (s *PostService) Search(ctx context.Context, viewer primitive.ObjectID, term string, limit int64) ([]models.PostView, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, apperr.Validation("Search term is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	posts, err := s.posts.SearchPublic(ctx, term, limit)
	if err != nil {
		return nil, apperr.Internal("search posts", err)
	}
	return s.views(ctx, posts, viewer)
}

func (s *PostService) post(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	p, err := s.posts.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("Post not found")
	}
	if err != nil {
		return nil, apperr.Internal("find post", err)
	}
	return p, nil
}

func (s *PostService) visiblePost(ctx context.Context, id, viewer primitive.ObjectID) (*models.Post, error) {
	p, err := s.post(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Visibility == models.VisibilityPublic || (!viewer.IsZero() && p.Author == viewer) {
		return p, nil
	}
	if viewer.IsZero() {
		return nil, apperr.Forbidden("Access denied")
	}
	me, err := s.user(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if !p.CanView(viewer, me.Following) {
		return nil, apperr.Forbidden("Access denied")
	}
	return p, nil
}

func (s *PostService) user(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}
	return u, nil
}

func (s *PostService) reload(ctx context.Context, id, viewer primitive.ObjectID, events []outbox.Event) (*models.PostView, []outbox.Event, error) {
	p, err := s.post(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	v, err := s.view(ctx, p, viewer)
	if err != nil {
		return nil, nil, err
	}
	return v, events, nil
}

func (s *PostService) view(ctx context.Context, p *models.Post, viewer primitive.ObjectID) (*models.PostView, error) {
	views, err := s.views(ctx, []models.Post{*p}, viewer)
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *PostService) views(ctx context.Context, posts []models.Post, viewer primitive.ObjectID) ([]models.PostView, error) {
	ids := make([]primitive.ObjectID, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.Author)
	}
	authors, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("load authors", err)
	}
	out := make([]models.PostView, 0, len(posts))
	for _, p := range posts {
		out = append(out, models.NewPostView(p, authors[p.Author], viewer))
	}
	return out, nil
}

func validComment(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", apperr.Validation("Comment content is required")
	}
	if utf8.RuneCountInString(content) > models.CommentMaxLen {
		return "", apperr.Validation("Comment cannot exceed 500 characters")
	}
	return content, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func nonNil(images []models.Image) []models.Image {
	if images == nil {
		return []models.Image{}
	}
	return images
}
