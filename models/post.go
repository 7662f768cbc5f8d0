package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	PostContentMaxLen = 2000
	CommentMaxLen     = 500
)

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFollowers, VisibilityPrivate:
		return true
	}
	return false
}

type Image struct {
	URL         string `bson:"url" json:"url"`
	PublicID    string `bson:"publicId,omitempty" json:"publicId,omitempty"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

type Like struct {
	User      primitive.ObjectID `bson:"user" json:"user"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Reply struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	Content   string             `bson:"content" json:"content"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Comment struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	User      primitive.ObjectID `bson:"user" json:"user"`
	Content   string             `bson:"content" json:"content"`
	Replies   []Reply            `bson:"replies" json:"replies"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Edit struct {
	Content  string    `bson:"content" json:"content"`
	EditedAt time.Time `bson:"editedAt" json:"editedAt"`
}

type Post struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Author      primitive.ObjectID `bson:"author" json:"authorId"`
	Content     string             `bson:"content" json:"content"`
	Images      []Image            `bson:"images" json:"images"`
	Likes       []Like             `bson:"likes" json:"likes"`
	Comments    []Comment          `bson:"comments" json:"comments"`
	Tags        []string           `bson:"tags" json:"tags"`
	Visibility  Visibility         `bson:"visibility" json:"visibility"`
	IsEdited    bool               `bson:"isEdited" json:"isEdited"`
	EditHistory []Edit             `bson:"editHistory" json:"editHistory"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (p *Post) LikedBy(user primitive.ObjectID) bool {
	for _, l := range p.Likes {
		if l.User == user {
			return true
		}
	}
	return false
}

func (p *Post) FindComment(id primitive.ObjectID) *Comment {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return &p.Comments[i]
		}
	}
	return nil
}

// CanView reports whether viewer may read p. viewerFollowing is the viewer's
// following set.
func (p *Post) CanView(viewer primitive.ObjectID, viewerFollowing []primitive.ObjectID) bool {
	if p.Author == viewer {
		return true
	}
	switch p.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityFollowers:
		return containsID(viewerFollowing, p.Author)
	default:
		return false
	}
}

type PostView struct {
	Post
	AuthorInfo   UserSummary `json:"author"`
	LikesCount   int         `json:"likesCount"`
	CommentCount int         `json:"commentsCount"`
	IsLiked      bool        `json:"isLiked"`
}

func NewPostView(p Post, author UserSummary, viewer primitive.ObjectID) PostView {
	return PostView{
		Post:         p,
		AuthorInfo:   author,
		LikesCount:   len(p.Likes),
		CommentCount: len(p.Comments),
		IsLiked:      p.LikedBy(viewer),
	}
}

// FeedQuery selects posts visible to Viewer. When Author is set only that
// author's posts are considered.
type FeedQuery struct {
	Viewer    primitive.ObjectID
	Following []primitive.ObjectID
	Author    *primitive.ObjectID
	Skip      int64
	Limit     int64
}
