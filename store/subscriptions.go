package store

import (
	"context"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SubscriptionsStore struct {
	coll *mongo.Collection
}

func NewSubscriptionsStore(coll *mongo.Collection) *SubscriptionsStore {
	return &SubscriptionsStore{coll: coll}
}

// Upsert binds a browser push endpoint to user, replacing any earlier owner.
func (s *SubscriptionsStore) Upsert(ctx context.Context, sub *models.PushSubscription) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"endpoint": sub.Endpoint},
		bson.M{
			"$set":         bson.M{"userId": sub.UserID, "keys": sub.Keys},
			"$setOnInsert": bson.M{"createdAt": sub.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return translate("upsert push subscription", err)
}

func (s *SubscriptionsStore) ForUser(ctx context.Context, user primitive.ObjectID) ([]models.PushSubscription, error) {
	cur, err := s.coll.Find(ctx, bson.M{"userId": user})
	if err != nil {
		return nil, translate("find push subscriptions", err)
	}
	subs := []models.PushSubscription{}
	if err := cur.All(ctx, &subs); err != nil {
		return nil, translate("decode push subscriptions", err)
	}
	return subs, nil
}

func (s *SubscriptionsStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"endpoint": endpoint})
	return translate("delete push subscription", err)
}
