package store

import (
	"context"
	"time"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessagesStore struct {
	coll *mongo.Collection
}

func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

func (s *MessagesStore) Create(ctx context.Context, m *models.Message) error {
	_, err := s.coll.InsertOne(ctx, m)
	return translate("insert message", err)
}

func (s *MessagesStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error) {
	var m models.Message
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, translate("find message", err)
	}
	return &m, nil
}

func (s *MessagesStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Message, error) {
	out := make(map[primitive.ObjectID]models.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translate("find messages", err)
	}
	var list []models.Message
	if err := cur.All(ctx, &list); err != nil {
		return nil, translate("decode messages", err)
	}
	for _, m := range list {
		out[m.ID] = m
	}
	return out, nil
}

func (s *MessagesStore) SoftDelete(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isDeleted": true, "deletedAt": at}},
	)
	if err != nil {
		return translate("soft delete message", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListPage returns one offset page, newest first. Deleted messages are never
// returned.
func (s *MessagesStore) ListPage(ctx context.Context, conversation primitive.ObjectID, skip, limit int64) ([]models.Message, int64, error) {
	filter := bson.M{"conversation": conversation, "isDeleted": false}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate("count messages", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, translate("find messages", err)
	}
	msgs := []models.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, 0, translate("decode messages", err)
	}
	return msgs, total, nil
}

func (s *MessagesStore) MarkRead(ctx context.Context, conversation, reader primitive.ObjectID, at time.Time) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"conversation": conversation, "sender": bson.M{"$ne": reader}, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "readAt": at}},
	)
	if err != nil {
		return 0, translate("mark messages read", err)
	}
	return res.ModifiedCount, nil
}
