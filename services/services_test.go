package services_test

import (
	"context"
	"testing"
	"time"

	"connectly/apperr"
	"connectly/models"
	"connectly/services"
	"connectly/services/servicetest"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	_ services.UserRepository         = (*servicetest.Users)(nil)
	_ services.PostRepository         = (*servicetest.Posts)(nil)
	_ services.ConversationRepository = (*servicetest.Conversations)(nil)
	_ services.MessageRepository      = (*servicetest.Messages)(nil)
	_ services.NotificationRepository = (*servicetest.Notifications)(nil)
)

type fixture struct {
	store         *servicetest.Store
	chat          *services.ChatService
	notifications *services.NotificationService
	users         *services.UserService
	posts         *services.PostService
	clock         *clock
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := servicetest.NewStore()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	notifications := services.NewNotificationService(store.Notifications(), store.Users())
	notifications.Now = clk.Now

	chat := services.NewChatService(store.Conversations(), store.Messages(), store.Users(), services.ChatOptions{PageSize: 50})
	chat.Now = clk.Now

	users := services.NewUserService(store.Users(), store.Posts(), notifications)
	users.Now = clk.Now
	users.HashCost = bcrypt.MinCost

	posts := services.NewPostService(store.Posts(), store.Users(), notifications)
	posts.Now = clk.Now

	return &fixture{
		store:         store,
		chat:          chat,
		notifications: notifications,
		users:         users,
		posts:         posts,
		clock:         clk,
	}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error of kind %d, got nil", kind)
	}
	if !apperr.IsKind(err, kind) {
		t.Fatalf("expected error of kind %d, got %v", kind, err)
	}
}

func ctx() context.Context { return context.Background() }

func oid() primitive.ObjectID { return primitive.NewObjectID() }

func unreadFor(t *testing.T, f *fixture, conv, user primitive.ObjectID) int {
	t.Helper()
	c, err := f.store.Conversations().FindByID(ctx(), conv)
	if err != nil {
		t.Fatalf("find conversation: %v", err)
	}
	return c.UnreadFor(user)
}

func mustConversation(t *testing.T, f *fixture, a, b primitive.ObjectID) primitive.ObjectID {
	t.Helper()
	conv, err := f.chat.FindOrCreate(ctx(), a, b)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	return conv.ID
}

func mustSend(t *testing.T, f *fixture, conv, sender primitive.ObjectID, content string) *models.MessageView {
	t.Helper()
	msg, _, err := f.chat.Send(ctx(), services.SendInput{ConversationID: conv, SenderID: sender, Content: content})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	return msg
}
