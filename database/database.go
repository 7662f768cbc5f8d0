package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	UsersCollection             = "users"
	PostsCollection             = "posts"
	ConversationsCollection     = "conversations"
	MessagesCollection          = "messages"
	NotificationsCollection     = "notifications"
	PushSubscriptionsCollection = "push_subscriptions"
)

// DB owns the mongo client and hands out collections.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

func Connect(ctx context.Context, uri, name string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	slog.Info("connected to MongoDB", "database", name)
	return &DB{client: client, db: client.Database(name)}, nil
}

// ConnectWithRetry tries Connect up to attempts times, pausing between tries.
func ConnectWithRetry(ctx context.Context, uri, name string, attempts int, pause time.Duration) (*DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := Connect(ctx, uri, name)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Warn("MongoDB connection attempt failed", "attempt", i, "of", attempts, "error", err)
		if i < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return nil, lastErr
}

func (d *DB) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

func (d *DB) Users() *mongo.Collection { return d.Collection(UsersCollection) }
func (d *DB) Posts() *mongo.Collection { return d.Collection(PostsCollection) }
func (d *DB) Conversations() *mongo.Collection { return d.Collection(ConversationsCollection) }
func (d *DB) Messages() *mongo.Collection { return d.Collection(MessagesCollection) }
func (d *DB) Notifications() *mongo.Collection { return d.Collection(NotificationsCollection) }
func (d *DB) PushSubscriptions() *mongo.Collection {
	return d.Collection(PushSubscriptionsCollection)
}

// Drop removes the whole database. Used by integration tests.
func (d *DB) Drop(ctx context.Context) error {
	return d.db.Drop(ctx)
}

func (d *DB) Disconnect(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}
	if err := d.client.Disconnect(ctx); err != nil {
		return err
	}
	slog.Info("disconnected from MongoDB")
	return nil
}

// EnsureIndexes creates the unique account indexes and the lookup indexes the
// queries rely on. uniquePairs adds a unique constraint on direct
// conversation pair keys.
func (d *DB) EnsureIndexes(ctx context.Context, uniquePairs bool) error {
	_, err := d.Users().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}

	convIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
	}
	if uniquePairs {
		convIndexes = append(convIndexes, mongo.IndexModel{
			Keys: bson.D{{Key: "pairKey", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"pairKey": bson.M{"$exists": true}}),
		})
	}
	if _, err := d.Conversations().Indexes().CreateMany(ctx, convIndexes); err != nil {
		return fmt.Errorf("create conversations indexes: %w", err)
	}

	_, err = d.Messages().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}

	_, err = d.Notifications().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create notifications index: %w", err)
	}

	_, err = d.PushSubscriptions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "endpoint", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create push subscriptions index: %w", err)
	}
	return nil
}
