package services

import (
	"context"
	"time"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repositories return models.ErrNotFound when a lookup matches nothing and
// models.ErrDuplicate when a unique constraint rejects a write. Callers
// assign document IDs before Create.

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
	Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID, skip, limit int64) ([]models.User, error)
	Search(ctx context.Context, term string, skip, limit int64) ([]models.User, int64, error)
	FindExcluding(ctx context.Context, exclude []primitive.ObjectID, limit int64) ([]models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate, at time.Time) (*models.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string, at time.Time) error
	TouchLastActive(ctx context.Context, id primitive.ObjectID, at time.Time) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	// SetFollowing adds or removes target from user's following set.
	SetFollowing(ctx context.Context, user, target primitive.ObjectID, follow bool) error
	// SetFollower adds or removes follower from user's followers set.
	SetFollower(ctx context.Context, user, follower primitive.ObjectID, follow bool) error
}

type PostRepository interface {
	Create(ctx context.Context, p *models.Post) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
	// Save persists the author-editable fields of p.
	Save(ctx context.Context, p *models.Post) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	// AddLike reports false when the user had already liked the post.
	AddLike(ctx context.Context, postID primitive.ObjectID, like models.Like) (bool, error)
	RemoveLike(ctx context.Context, postID, userID primitive.ObjectID) (bool, error)
	AddComment(ctx context.Context, postID primitive.ObjectID, c models.Comment) error
	RemoveComment(ctx context.Context, postID, commentID primitive.ObjectID) error
	AddReply(ctx context.Context, postID, commentID primitive.ObjectID, r models.Reply) error
	Feed(ctx context.Context, q models.FeedQuery) ([]models.Post, int64, error)
	SearchPublic(ctx context.Context, term string, limit int64) ([]models.Post, error)
	CountByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, c *models.Conversation) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	// FindDirect returns the non-group conversation between a and b.
	FindDirect(ctx context.Context, a, b primitive.ObjectID) (*models.Conversation, error)
	// ListForUser returns the user's conversations, most recent activity first.
	ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Conversation, error)
	SetLastMessage(ctx context.Context, id, messageID primitive.ObjectID, at time.Time) error
	IncrementUnread(ctx context.Context, id, user primitive.ObjectID) error
	ResetUnread(ctx context.Context, id, user primitive.ObjectID) error
	UnreadTotal(ctx context.Context, user primitive.ObjectID) (int, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Message, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) error
	// ListPage returns non-deleted messages newest first, plus their total.
	ListPage(ctx context.Context, conversation primitive.ObjectID, skip, limit int64) ([]models.Message, int64, error)
	// MarkRead flags every unread message not sent by reader as read.
	MarkRead(ctx context.Context, conversation, reader primitive.ObjectID, at time.Time) (int64, error)
}

type NotificationRepository interface {
	// FindRecent returns the newest notification matching key created after since.
	FindRecent(ctx context.Context, key models.DedupKey, since time.Time) (*models.Notification, error)
	Create(ctx context.Context, n *models.Notification) error
	CreateMany(ctx context.Context, ns []*models.Notification) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error)
	MarkRead(ctx context.Context, id primitive.ObjectID, at time.Time) error
	ListForRecipient(ctx context.Context, recipient primitive.ObjectID, skip, limit int64) ([]models.Notification, int64, error)
	CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error)
}
