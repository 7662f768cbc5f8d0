package servicetest

import (
	"context"
	"sort"
	"strings"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Posts struct{ s *Store }

func (r *Posts) Create(_ context.Context, p *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.posts[p.ID] = clonePost(*p)
	return nil
}

func (r *Posts) FindByID(_ context.Context, id primitive.ObjectID) (*models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	p = clonePost(p)
	return &p, nil
}

func (r *Posts) Save(_ context.Context, p *models.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.posts[p.ID]
	if !ok {
		return models.ErrNotFound
	}
	cur.Content = p.Content
	cur.Visibility = p.Visibility
	cur.Tags = append([]string(nil), p.Tags...)
	cur.IsEdited = p.IsEdited
	cur.EditHistory = append([]models.Edit(nil), p.EditHistory...)
	cur.UpdatedAt = p.UpdatedAt
	r.s.posts[p.ID] = cur
	return nil
}

func (r *Posts) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.s.posts, id)
	return nil
}

func (r *Posts) AddLike(_ context.Context, postID primitive.ObjectID, like models.Like) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[postID]
	if !ok {
		return false, models.ErrNotFound
	}
	if p.LikedBy(like.User) {
		return false, nil
	}
	p.Likes = append(p.Likes, like)
	r.s.posts[postID] = p
	return true, nil
}

func (r *Posts) RemoveLike(_ context.Context, postID, userID primitive.ObjectID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[postID]
	if !ok {
		return false, models.ErrNotFound
	}
	kept := p.Likes[:0:0]
	for _, l := range p.Likes {
		if l.User != userID {
			kept = append(kept, l)
		}
	}
	removed := len(kept) != len(p.Likes)
	p.Likes = kept
	r.s.posts[postID] = p
	return removed, nil
}

func (r *Posts) AddComment(_ context.Context, postID primitive.ObjectID, c models.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[postID]
	if !ok {
		return models.ErrNotFound
	}
	p.Comments = append(p.Comments, c)
	r.s.posts[postID] = p
	return nil
}

func (r *Posts) RemoveComment(_ context.Context, postID, commentID primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[postID]
	if !ok {
		return models.ErrNotFound
	}
	kept := p.Comments[:0:0]
	for _, c := range p.Comments {
		if c.ID != commentID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(p.Comments) {
		return models.ErrNotFound
	}
	p.Comments = kept
	r.s.posts[postID] = p
	return nil
}

func (r *Posts) AddReply(_ context.Context, postID, commentID primitive.ObjectID, reply models.Reply) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[postID]
	if !ok {
		return models.ErrNotFound
	}
	p = clonePost(p)
	c := p.FindComment(commentID)
	if c == nil {
		return models.ErrNotFound
	}
	c.Replies = append(c.Replies, reply)
	r.s.posts[postID] = p
	return nil
}

func (r *Posts) Feed(_ context.Context, q models.FeedQuery) ([]models.Post, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Post
	for _, p := range r.s.posts {
		if q.Author != nil && p.Author != *q.Author {
			continue
		}
		if p.CanView(q.Viewer, q.Following) {
			out = append(out, clonePost(p))
		}
	}
	sortPostsNewestFirst(out)
	return page(out, q.Skip, q.Limit), int64(len(out)), nil
}

func (r *Posts) SearchPublic(_ context.Context, term string, limit int64) ([]models.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	term = strings.ToLower(term)
	var out []models.Post
	for _, p := range r.s.posts {
		if p.Visibility != models.VisibilityPublic {
			continue
		}
		match := strings.Contains(strings.ToLower(p.Content), term)
		for _, tag := range p.Tags {
			if strings.EqualFold(tag, term) {
				match = true
			}
		}
		if match {
			out = append(out, clonePost(p))
		}
	}
	sortPostsNewestFirst(out)
	return page(out, 0, limit), nil
}

func (r *Posts) CountByAuthor(_ context.Context, author primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.posts {
		if p.Author == author {
			n++
		}
	}
	return n, nil
}

func sortPostsNewestFirst(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID.Hex() > posts[j].ID.Hex()
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

func clonePost(p models.Post) models.Post {
	p.Images = append([]models.Image(nil), p.Images...)
	p.Likes = append([]models.Like(nil), p.Likes...)
	p.Tags = append([]string(nil), p.Tags...)
	p.EditHistory = append([]models.Edit(nil), p.EditHistory...)
	comments := make([]models.Comment, len(p.Comments))
	for i, c := range p.Comments {
		c.Replies = append([]models.Reply(nil), c.Replies...)
		comments[i] = c
	}
	p.Comments = comments
	return p
}
