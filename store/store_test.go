package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"connectly/database"
	"connectly/models"
	"connectly/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	_ services.UserRepository         = (*UsersStore)(nil)
	_ services.PostRepository         = (*PostsStore)(nil)
	_ services.ConversationRepository = (*ConversationsStore)(nil)
	_ services.MessageRepository      = (*MessagesStore)(nil)
	_ services.NotificationRepository = (*NotificationsStore)(nil)
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}
	ctx := context.Background()
	name := "connectly_test_" + primitive.NewObjectID().Hex()
	db, err := database.Connect(ctx, uri, name)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.EnsureIndexes(ctx, true); err != nil {
		t.Fatalf("indexes: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Disconnect(context.Background())
	})
	return db
}

func newUser(t *testing.T, users *UsersStore, name string) primitive.ObjectID {
	t.Helper()
	u := &models.User{
		ID:        primitive.NewObjectID(),
		Username:  name,
		Email:     name + "@example.com",
		FirstName: name,
		Followers: []primitive.ObjectID{},
		Following: []primitive.ObjectID{},
		CreatedAt: time.Now(),
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestUsersUniqueAndFollow(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	users := NewUsersStore(db.Users())

	a := newUser(t, users, "alice")
	b := newUser(t, users, "bob")

	dup := &models.User{ID: primitive.NewObjectID(), Username: "alice", Email: "other@example.com"}
	if err := users.Create(ctx, dup); !errors.Is(err, models.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if err := users.SetFollowing(ctx, a, b, true); err != nil {
		t.Fatalf("SetFollowing: %v", err)
	}
	if err := users.SetFollower(ctx, b, a, true); err != nil {
		t.Fatalf("SetFollower: %v", err)
	}
	alice, _ := users.FindByID(ctx, a)
	if !alice.IsFollowing(b) {
		t.Fatal("following edge missing")
	}

	suggestions, err := users.FindExcluding(ctx, []primitive.ObjectID{a}, 5)
	if err != nil || len(suggestions) != 1 || suggestions[0].ID != b {
		t.Fatalf("FindExcluding: %+v %v", suggestions, err)
	}

	if _, err := users.FindByID(ctx, primitive.NewObjectID()); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := users.Delete(ctx, b); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := users.Delete(ctx, b); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestConversationCountersAndUniquePair(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	convs := NewConversationsStore(db.Conversations())
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	c := &models.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: []primitive.ObjectID{a, b},
		PairKey:      models.PairKey(a, b),
		UnreadCount:  []models.UnreadCounter{{User: a}},
		CreatedAt:    time.Now(),
	}
	if err := convs.Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := *c
	dup.ID = primitive.NewObjectID()
	dup.PairKey = models.PairKey(b, a)
	if err := convs.Create(ctx, &dup); !errors.Is(err, models.ErrDuplicate) {
		t.Fatalf("expected duplicate pair to be rejected, got %v", err)
	}

	found, err := convs.FindDirect(ctx, b, a)
	if err != nil || found.ID != c.ID {
		t.Fatalf("FindDirect: %+v %v", found, err)
	}

	for i := 0; i < 2; i++ {
		if err := convs.IncrementUnread(ctx, c.ID, b); err != nil {
			t.Fatalf("IncrementUnread: %v", err)
		}
	}
	if err := convs.IncrementUnread(ctx, c.ID, a); err != nil {
		t.Fatalf("IncrementUnread: %v", err)
	}
	total, err := convs.UnreadTotal(ctx, b)
	if err != nil || total != 2 {
		t.Fatalf("UnreadTotal(b) = %d %v, want 2", total, err)
	}

	if err := convs.ResetUnread(ctx, c.ID, b); err != nil {
		t.Fatalf("ResetUnread: %v", err)
	}
	total, _ = convs.UnreadTotal(ctx, b)
	if total != 0 {
		t.Fatalf("UnreadTotal after reset = %d", total)
	}
	total, _ = convs.UnreadTotal(ctx, a)
	if total != 1 {
		t.Fatalf("UnreadTotal(a) = %d, want 1", total)
	}
}

func TestMessagesListExcludesDeleted(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	msgs := NewMessagesStore(db.Messages())
	conv, a, b := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	base := time.Now().Truncate(time.Millisecond)
	var ids []primitive.ObjectID
	for i, sender := range []primitive.ObjectID{a, a, b} {
		m := &models.Message{
			ID:           primitive.NewObjectID(),
			Conversation: conv,
			SenderID:     sender,
			Content:      string(rune('x' + i)),
			MessageType:  models.MessageText,
			CreatedAt:    base.Add(time.Duration(i) * time.Second),
		}
		if err := msgs.Create(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if err := msgs.SoftDelete(ctx, ids[1], time.Now()); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	page, total, err := msgs.ListPage(ctx, conv, 0, 10)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 2 || len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[0] {
		t.Fatalf("unexpected page %+v (total %d)", page, total)
	}

	n, err := msgs.MarkRead(ctx, conv, b, time.Now())
	if err != nil || n != 2 {
		t.Fatalf("MarkRead = %d %v, want 2 (deleted included)", n, err)
	}
}

func TestNotificationsFindRecent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	store := NewNotificationsStore(db.Notifications())
	a, b, post := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	now := time.Now().Truncate(time.Millisecond)
	n := &models.Notification{
		ID: primitive.NewObjectID(), Recipient: b, Sender: a,
		Type: models.NotificationFollow, Message: "started following you", CreatedAt: now,
	}
	if err := store.Create(ctx, n); err != nil {
		t.Fatalf("create: %v", err)
	}

	key := models.DedupKey{Recipient: b, Sender: a, Type: models.NotificationFollow}
	got, err := store.FindRecent(ctx, key, now.Add(-time.Hour))
	if err != nil || got.ID != n.ID {
		t.Fatalf("FindRecent: %+v %v", got, err)
	}

	key.RelatedPost = &post
	if _, err := store.FindRecent(ctx, key, now.Add(-time.Hour)); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("post-scoped key must not match, got %v", err)
	}
	key.RelatedPost = nil
	if _, err := store.FindRecent(ctx, key, now.Add(time.Minute)); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected nothing after the window, got %v", err)
	}
}

func TestPostsFeedAndLikes(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	posts := NewPostsStore(db.Posts())
	author, viewer, stranger := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()

	base := time.Now().Truncate(time.Millisecond)
	for i, vis := range []models.Visibility{models.VisibilityPublic, models.VisibilityFollowers, models.VisibilityPrivate} {
		p := &models.Post{
			ID: primitive.NewObjectID(), Author: author, Content: string(vis),
			Visibility: vis, Likes: []models.Like{}, Comments: []models.Comment{},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := posts.Create(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, total, err := posts.Feed(ctx, models.FeedQuery{Viewer: viewer, Following: []primitive.ObjectID{author}, Limit: 10})
	if err != nil || total != 2 || got[0].Visibility != models.VisibilityFollowers {
		t.Fatalf("follower feed: %+v %d %v", got, total, err)
	}
	_, total, _ = posts.Feed(ctx, models.FeedQuery{Viewer: stranger, Limit: 10})
	if total != 1 {
		t.Fatalf("stranger feed total = %d, want 1", total)
	}
	_, total, _ = posts.Feed(ctx, models.FeedQuery{Viewer: author, Author: &author, Limit: 10})
	if total != 3 {
		t.Fatalf("own timeline total = %d, want 3", total)
	}

	public := got[1]
	added, err := posts.AddLike(ctx, public.ID, models.Like{User: viewer, CreatedAt: time.Now()})
	if err != nil || !added {
		t.Fatalf("AddLike: %v %v", added, err)
	}
	added, _ = posts.AddLike(ctx, public.ID, models.Like{User: viewer, CreatedAt: time.Now()})
	if added {
		t.Fatal("second like by the same user must be rejected")
	}
	removed, err := posts.RemoveLike(ctx, public.ID, viewer)
	if err != nil || !removed {
		t.Fatalf("RemoveLike: %v %v", removed, err)
	}
}
