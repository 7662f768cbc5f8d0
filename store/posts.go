package store

import (
	"context"
	"regexp"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type PostsStore struct {
	coll *mongo.Collection
}

func NewPostsStore(coll *mongo.Collection) *PostsStore {
	return &PostsStore{coll: coll}
}

func (s *PostsStore) Create(ctx context.Context, p *models.Post) error {
	_, err := s.coll.InsertOne(ctx, p)
	return translate("insert post", err)
}

func (s *PostsStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	var p models.Post
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, translate("find post", err)
	}
	return &p, nil
}

func (s *PostsStore) Save(ctx context.Context, p *models.Post) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": bson.M{
		"content":     p.Content,
		"visibility":  p.Visibility,
		"tags":        p.Tags,
		"isEdited":    p.IsEdited,
		"editHistory": p.EditHistory,
		"updatedAt":   p.UpdatedAt,
	}})
	if err != nil {
		return translate("save post", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostsStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate("delete post", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// AddLike pushes the like only if the user has none on the post yet.
func (s *PostsStore) AddLike(ctx context.Context, postID primitive.ObjectID, like models.Like) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": postID, "likes.user": bson.M{"$ne": like.User}},
		bson.M{"$push": bson.M{"likes": like}},
	)
	if err != nil {
		return false, translate("add like", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.FindByID(ctx, postID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *PostsStore) RemoveLike(ctx context.Context, postID, userID primitive.ObjectID) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$pull": bson.M{"likes": bson.M{"user": userID}}},
	)
	if err != nil {
		return false, translate("remove like", err)
	}
	if res.MatchedCount == 0 {
		return false, models.ErrNotFound
	}
	return res.ModifiedCount > 0, nil
}

func (s *PostsStore) AddComment(ctx context.Context, postID primitive.ObjectID, c models.Comment) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": postID}, bson.M{"$push": bson.M{"comments": c}})
	if err != nil {
		return translate("add comment", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostsStore) RemoveComment(ctx context.Context, postID, commentID primitive.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": postID, "comments._id": commentID},
		bson.M{"$pull": bson.M{"comments": bson.M{"_id": commentID}}},
	)
	if err != nil {
		return translate("remove comment", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *PostsStore) AddReply(ctx context.Context, postID, commentID primitive.ObjectID, r models.Reply) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": postID, "comments._id": commentID},
		bson.M{"$push": bson.M{"comments.$.replies": r}},
	)
	if err != nil {
		return translate("add reply", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// visibleTo builds the filter for posts viewer may read: public ones,
// followers-only ones from followed authors, and the viewer's own.
func visibleTo(viewer primitive.ObjectID, following []primitive.ObjectID) bson.M {
	if following == nil {
		following = []primitive.ObjectID{}
	}
	return bson.M{"$or": bson.A{
		bson.M{"visibility": models.VisibilityPublic},
		bson.M{"visibility": models.VisibilityFollowers, "author": bson.M{"$in": following}},
		bson.M{"author": viewer},
	}}
}

func (s *PostsStore) Feed(ctx context.Context, q models.FeedQuery) ([]models.Post, int64, error) {
	filter := visibleTo(q.Viewer, q.Following)
	if q.Author != nil {
		filter = bson.M{"$and": bson.A{bson.M{"author": *q.Author}, filter}}
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate("count posts", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(q.Skip).
		SetLimit(q.Limit)
	posts, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

func (s *PostsStore) SearchPublic(ctx context.Context, term string, limit int64) ([]models.Post, error) {
	filter := bson.M{
		"visibility": models.VisibilityPublic,
		"$or": bson.A{
			bson.M{"content": primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}},
			bson.M{"tags": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(term) + "$", Options: "i"}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	return s.find(ctx, filter, opts)
}

func (s *PostsStore) CountByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"author": author})
	if err != nil {
		return 0, translate("count posts", err)
	}
	return n, nil
}

func (s *PostsStore) find(ctx context.Context, filter any, opts *options.FindOptions) ([]models.Post, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate("find posts", err)
	}
	posts := []models.Post{}
	if err := cur.All(ctx, &posts); err != nil {
		return nil, translate("decode posts", err)
	}
	return posts, nil
}
