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

type ConversationsStore struct {
	coll *mongo.Collection
}

func NewConversationsStore(coll *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{coll: coll}
}

func (s *ConversationsStore) Create(ctx context.Context, c *models.Conversation) error {
	_, err := s.coll.InsertOne(ctx, c)
	return translate("insert conversation", err)
}

func (s *ConversationsStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate("find conversation", err)
	}
	return &c, nil
}

// FindDirect matches the exact unordered pair. With duplicates present the
// oldest conversation wins.
func (s *ConversationsStore) FindDirect(ctx context.Context, a, b primitive.ObjectID) (*models.Conversation, error) {
	filter := bson.M{
		"isGroup":      false,
		"participants": bson.M{"$all": bson.A{a, b}, "$size": 2},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})

	var c models.Conversation
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&c); err != nil {
		return nil, translate("find direct conversation", err)
	}
	return &c, nil
}

func (s *ConversationsStore) ListForUser(ctx context.Context, user primitive.ObjectID) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"participants": user}, opts)
	if err != nil {
		return nil, translate("list conversations", err)
	}
	convs := []models.Conversation{}
	if err := cur.All(ctx, &convs); err != nil {
		return nil, translate("decode conversations", err)
	}
	return convs, nil
}

func (s *ConversationsStore) SetLastMessage(ctx context.Context, id, messageID primitive.ObjectID, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"lastMessage":   messageID,
		"lastMessageAt": at,
		"updatedAt":     at,
	}})
	if err != nil {
		return translate("set last message", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementUnread bumps one participant's counter, adding the counter entry
// when the participant has none yet.
func (s *ConversationsStore) IncrementUnread(ctx context.Context, id, user primitive.ObjectID) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "unreadCount.user": user},
		bson.M{"$inc": bson.M{"unreadCount.$.count": 1}},
	)
	if err != nil {
		return translate("increment unread", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	res, err = s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "unreadCount.user": bson.M{"$ne": user}},
		bson.M{"$push": bson.M{"unreadCount": models.UnreadCounter{User: user, Count: 1}}},
	)
	if err != nil {
		return translate("push unread counter", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *ConversationsStore) ResetUnread(ctx context.Context, id, user primitive.ObjectID) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "unreadCount.user": user},
		bson.M{"$set": bson.M{"unreadCount.$.count": 0}},
	)
	return translate("reset unread", err)
}

// UnreadTotal sums the user's counter over every conversation they are in.
func (s *ConversationsStore) UnreadTotal(ctx context.Context, user primitive.ObjectID) (int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"participants": user}}},
		{{Key: "$unwind", Value: "$unreadCount"}},
		{{Key: "$match", Value: bson.M{"unreadCount.user": user}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$unreadCount.count"}}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, translate("aggregate unread", err)
	}
	var rows []struct {
		Total int `bson:"total"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, translate("decode unread", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}
