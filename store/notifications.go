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

type NotificationsStore struct {
	coll *mongo.Collection
}

func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

func (s *NotificationsStore) FindRecent(ctx context.Context, key models.DedupKey, since time.Time) (*models.Notification, error) {
	filter := bson.M{
		"recipient": key.Recipient,
		"sender":    key.Sender,
		"type":      key.Type,
		"createdAt": bson.M{"$gt": since},
	}
	if key.RelatedPost != nil {
		filter["relatedPost"] = *key.RelatedPost
	} else {
		filter["relatedPost"] = bson.M{"$exists": false}
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var n models.Notification
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&n); err != nil {
		return nil, translate("find recent notification", err)
	}
	return &n, nil
}

func (s *NotificationsStore) Create(ctx context.Context, n *models.Notification) error {
	_, err := s.coll.InsertOne(ctx, n)
	return translate("insert notification", err)
}

func (s *NotificationsStore) CreateMany(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	docs := make([]any, 0, len(ns))
	for _, n := range ns {
		docs = append(docs, n)
	}
	_, err := s.coll.InsertMany(ctx, docs)
	return translate("insert notifications", err)
}

func (s *NotificationsStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error) {
	var n models.Notification
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		return nil, translate("find notification", err)
	}
	return &n, nil
}

func (s *NotificationsStore) MarkRead(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isRead": true, "readAt": at}},
	)
	if err != nil {
		return translate("mark notification read", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *NotificationsStore) ListForRecipient(ctx context.Context, recipient primitive.ObjectID, skip, limit int64) ([]models.Notification, int64, error) {
	filter := bson.M{"recipient": recipient}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate("count notifications", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, translate("find notifications", err)
	}
	list := []models.Notification{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, 0, translate("decode notifications", err)
	}
	return list, total, nil
}

func (s *NotificationsStore) CountUnread(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"recipient": recipient, "isRead": false})
	if err != nil {
		return 0, translate("count unread notifications", err)
	}
	return n, nil
}
