package services_test

import (
	"context"
	"testing"
	"time"

	"connectly/apperr"
	"connectly/models"
	"connectly/outbox"
	"connectly/services"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestFindOrCreateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")

	first := mustConversation(t, f, a, b)
	second := mustConversation(t, f, b, a)
	if first != second {
		t.Fatalf("expected the same conversation, got %s and %s", first.Hex(), second.Hex())
	}
	if n := f.store.ConversationCount(); n != 1 {
		t.Fatalf("expected 1 stored conversation, got %d", n)
	}
}

func TestFindOrCreateValidation(t *testing.T) {
	f := newFixture(t)
	a := f.store.AddUser("alice")

	_, err := f.chat.FindOrCreate(ctx(), a, a)
	requireKind(t, err, apperr.KindValidation)

	_, err = f.chat.FindOrCreate(ctx(), a, oid())
	requireKind(t, err, apperr.KindNotFound)
}

func TestFindOrCreatePopulatesParticipants(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")

	conv, err := f.chat.FindOrCreate(ctx(), a, b)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if len(conv.Participants) != 2 || conv.IsGroup {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if conv.Participants[0].Username != "alice" || conv.Participants[1].Username != "bob" {
		t.Fatalf("participants not resolved: %+v", conv.Participants)
	}
}

// racyConversations hides existing conversations from the first lookup, the
// way a concurrent creator would.
type racyConversations struct {
	services.ConversationRepository
	misses int
}

func (r *racyConversations) FindDirect(ctx context.Context, a, b primitive.ObjectID) (*models.Conversation, error) {
	if r.misses > 0 {
		r.misses--
		return nil, models.ErrNotFound
	}
	return r.ConversationRepository.FindDirect(ctx, a, b)
}

func TestFindOrCreateRaceWithoutUniquePairs(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")
	mustConversation(t, f, a, b)

	racy := &racyConversations{ConversationRepository: f.store.Conversations(), misses: 1}
	chat := services.NewChatService(racy, f.store.Messages(), f.store.Users(), services.ChatOptions{})
	if _, err := chat.FindOrCreate(ctx(), a, b); err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if n := f.store.ConversationCount(); n != 2 {
		t.Fatalf("expected the race to produce a duplicate, got %d conversations", n)
	}
}

func TestFindOrCreateRaceWithUniquePairs(t *testing.T) {
	f := newFixture(t)
	f.store.UniquePairs = true
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")

	chat := services.NewChatService(f.store.Conversations(), f.store.Messages(), f.store.Users(), services.ChatOptions{UniquePairs: true})
	first, err := chat.FindOrCreate(ctx(), a, b)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}

	racy := &racyConversations{ConversationRepository: f.store.Conversations(), misses: 1}
	chat = services.NewChatService(racy, f.store.Messages(), f.store.Users(), services.ChatOptions{UniquePairs: true})
	second, err := chat.FindOrCreate(ctx(), b, a)
	if err != nil {
		t.Fatalf("FindOrCreate: %v", err)
	}
	if first.ID != second.ID || f.store.ConversationCount() != 1 {
		t.Fatalf("expected the existing conversation to be reused")
	}
}

func TestSendIncrementsOtherParticipants(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")
	conv := mustConversation(t, f, a, b)

	f.clock.Advance(time.Minute)
	msg, events, err := f.chat.Send(ctx(), services.SendInput{ConversationID: conv, SenderID: a, Content: " hi "})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Content != "hi" || msg.MessageType != models.MessageText || msg.Sender.Username != "alice" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got := unreadFor(t, f, conv, b); got != 1 {
		t.Fatalf("recipient unread = %d, want 1", got)
	}
	if got := unreadFor(t, f, conv, a); got != 0 {
		t.Fatalf("sender unread = %d, want 0", got)
	}

	stored, _ := f.store.Conversations().FindByID(ctx(), conv)
	if stored.LastMessage == nil || *stored.LastMessage != msg.ID || !stored.LastMessageAt.Equal(f.clock.now) {
		t.Fatalf("last message not updated: %+v", stored)
	}

	if len(events) != 1 || events[0].Recipient != b.Hex() || events[0].Type != outbox.TypeNewMessage {
		t.Fatalf("unexpected events %+v", events)
	}
	payload := events[0].Payload.(outbox.NewMessagePayload)
	if payload.ConversationID != conv.Hex() || payload.Message.ID != msg.ID {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestSendRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.store.AddUser("alice"), f.store.AddUser("bob"), f.store.AddUser("carol")
	conv := mustConversation(t, f, a, b)

	_, _, err := f.chat.Send(ctx(), services.SendInput{ConversationID: conv, SenderID: c, Content: "hi"})
	requireKind(t, err, apperr.KindForbidden)

	_, _, err = f.chat.Send(ctx(), services.SendInput{ConversationID: oid(), SenderID: a, Content: "hi"})
	requireKind(t, err, apperr.KindNotFound)

	_, _, err = f.chat.Send(ctx(), services.SendInput{ConversationID: conv, SenderID: a, Content: "  "})
	requireKind(t, err, apperr.KindValidation)

	_, _, err = f.chat.Send(ctx(), services.SendInput{ConversationID: conv, SenderID: a, Content: "x", Type: "voice"})
	requireKind(t, err, apperr.KindValidation)
}

func TestSendAttachmentWithoutContent(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")
	conv := mustConversation(t, f, a, b)

	msg, _, err := f.chat.Send(ctx(), services.SendInput{
		ConversationID: conv,
		SenderID:       a,
		Type:           models.MessageImage,
		Attachment:     &models.Attachment{URL: "https://cdn.test/x.png", FileName: "x.png"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Attachment == nil || msg.MessageType != models.MessageImage {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestGroupSendIncrementsEveryOtherMember(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.store.AddUser("alice"), f.store.AddUser("bob"), f.store.AddUser("carol")

	group, err := f.chat.CreateGroup(ctx(), a, []primitive.ObjectID{b, c, b}, "Trip")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if !group.IsGroup || len(group.Participants) != 3 {
		t.Fatalf("unexpected group %+v", group)
	}

	_, events, err := f.chat.Send(ctx(), services.SendInput{ConversationID: group.ID, SenderID: b, Content: "hello all"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if unreadFor(t, f, group.ID, a) != 1 || unreadFor(t, f, group.ID, c) != 1 || unreadFor(t, f, group.ID, b) != 0 {
		t.Fatal("unexpected unread counters")
	}

	_, err = f.chat.CreateGroup(ctx(), a, nil, "Solo")
	requireKind(t, err, apperr.KindValidation)
	_, err = f.chat.CreateGroup(ctx(), a, []primitive.ObjectID{b}, " ")
	requireKind(t, err, apperr.KindValidation)
}

func TestListAndMarkRead(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")
	conv := mustConversation(t, f, a, b)

	for _, text := range []string{"hi", "how are you", "?"} {
		f.clock.Advance(time.Second)
		mustSend(t, f, conv, a, text)
	}
	f.clock.Advance(time.Second)
	mustSend(t, f, conv, b, "fine")

	if got := unreadFor(t, f, conv, b); got != 3 {
		t.Fatalf("bob unread = %d, want 3", got)
	}

	page, err := f.chat.ListAndMarkRead(ctx(), conv, b, 1, 50)
	if err != nil {
		t.Fatalf("ListAndMarkRead: %v", err)
	}
	var got []string
	for _, m := range page.Messages {
		got = append(got, m.Content)
	}
	want := []string{"hi", "how are you", "?", "fine"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if page.Pagination.Total != 4 || page.Pagination.Pages != 1 {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}

	if got := unreadFor(t, f, conv, b); got != 0 {
		t.Fatalf("bob unread after list = %d, want 0", got)
	}
	if got := unreadFor(t, f, conv, a); got != 1 {
		t.Fatalf("alice unread must be untouched, got %d", got)
	}

	msgs, _, _ := f.store.Messages().ListPage(ctx(), conv, 0, 10)
	for _, m := range msgs {
		if m.SenderID == a && !m.IsRead {
			t.Fatalf("message %q from alice not marked read", m.Content)
		}
		if m.SenderID == b && m.IsRead {
			t.Fatalf("bob's own message %q marked read", m.Content)
		}
	}
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")
	conv := mustConversation(t, f, a, b)
	for _, text := range []string{"1", "2", "3", "4", "5"} {
		f.clock.Advance(time.Second)
		mustSend(t, f, conv, a, text)
	}

	page, err := f.chat.ListAndMarkRead(ctx(), conv, b, 1, 2)
	if err != nil {
		t.Fatalf("ListAndMarkRead: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].Content != "4" || page.Messages[1].Content != "5" {
		t.Fatalf("unexpected first page %+v", page.Messages)
	}
	page, _ = f.chat.ListAndMarkRead(ctx(), conv, b, 3, 2)
	if len(page.Messages) != 1 || page.Messages[0].Content != "1" || page.Pagination.Pages != 3 {
		t.Fatalf("unexpected last page %+v", page)
	}
}

func TestListRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.store.AddUser("alice"), f.store.AddUser("bob"), f.store.AddUser("carol")
	conv := mustConversation(t, f, a, b)

	_, err := f.chat.ListAndMarkRead(ctx(), conv, c, 1, 10)
	requireKind(t, err, apperr.KindForbidden)
	requireKind(t, f.chat.MarkRead(ctx(), conv, c), apperr.KindForbidden)
}

func TestDeleteIsSenderOnlyAndHidesMessage(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")
	conv := mustConversation(t, f, a, b)
	keep := mustSend(t, f, conv, a, "keep")
	gone := mustSend(t, f, conv, a, "oops")

	_, err := f.chat.Delete(ctx(), gone.ID, b)
	requireKind(t, err, apperr.KindForbidden)

	events, err := f.chat.Delete(ctx(), gone.ID, a)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected both participants to be told, got %d events", len(events))
	}
	for _, ev := range events {
		p := ev.Payload.(outbox.MessageDeletedPayload)
		if ev.Type != outbox.TypeMessageDeleted || p.MessageID != gone.ID.Hex() || p.ConversationID != conv.Hex() {
			t.Fatalf("unexpected event %+v", ev)
		}
	}

	for _, reader := range []primitive.ObjectID{a, b} {
		page, err := f.chat.ListAndMarkRead(ctx(), conv, reader, 1, 50)
		if err != nil {
			t.Fatalf("ListAndMarkRead: %v", err)
		}
		if len(page.Messages) != 1 || page.Messages[0].ID != keep.ID {
			t.Fatalf("deleted message visible to %s: %+v", reader.Hex(), page.Messages)
		}
	}

	stored, err := f.store.Messages().FindByID(ctx(), gone.ID)
	if err != nil || !stored.IsDeleted || stored.DeletedAt == nil {
		t.Fatalf("message should be flagged, not removed: %+v %v", stored, err)
	}

	events, err = f.chat.Delete(ctx(), gone.ID, a)
	if err != nil || len(events) != 2 {
		t.Fatalf("repeat delete: %d events, err %v", len(events), err)
	}
	_, err = f.chat.Delete(ctx(), gone.ID, b)
	requireKind(t, err, apperr.KindForbidden)

	_, err = f.chat.Delete(ctx(), primitive.NewObjectID(), a)
	requireKind(t, err, apperr.KindNotFound)
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.store.AddUser("alice"), f.store.AddUser("bob"), f.store.AddUser("carol")
	ab := mustConversation(t, f, a, b)
	f.clock.Advance(time.Minute)
	ac := mustConversation(t, f, a, c)

	f.clock.Advance(time.Minute)
	mustSend(t, f, ab, b, "newest")

	convs, err := f.chat.ListConversations(ctx(), a)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 || convs[0].ID != ab || convs[1].ID != ac {
		t.Fatalf("unexpected order %+v", convs)
	}
	if convs[0].UnreadCount != 1 || convs[0].LastMessage == nil || convs[0].LastMessage.Content != "newest" {
		t.Fatalf("unexpected first conversation %+v", convs[0])
	}
	if convs[0].LastMessage.Sender.Username != "bob" {
		t.Fatalf("last message sender not resolved: %+v", convs[0].LastMessage.Sender)
	}
	if convs[1].LastMessage != nil || convs[1].UnreadCount != 0 {
		t.Fatalf("unexpected second conversation %+v", convs[1])
	}
}

func TestUnreadTotalAcrossConversations(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.store.AddUser("alice"), f.store.AddUser("bob"), f.store.AddUser("carol")
	ab := mustConversation(t, f, a, b)
	ac := mustConversation(t, f, a, c)

	mustSend(t, f, ab, b, "1")
	mustSend(t, f, ab, b, "2")
	mustSend(t, f, ac, c, "3")

	total, err := f.chat.UnreadTotal(ctx(), a)
	if err != nil {
		t.Fatalf("UnreadTotal: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}

	if err := f.chat.MarkRead(ctx(), ab, a); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	total, _ = f.chat.UnreadTotal(ctx(), a)
	if total != 1 {
		t.Fatalf("total after mark read = %d, want 1", total)
	}
}

func TestScenarioFirstConversation(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")

	conv, err := f.chat.FindOrCreate(ctx(), a, b)
	if err != nil || len(conv.Participants) != 2 {
		t.Fatalf("FindOrCreate: %+v %v", conv, err)
	}
	created := conv.LastMessageAt

	f.clock.Advance(time.Minute)
	mustSend(t, f, conv.ID, a, "hi")
	stored, _ := f.store.Conversations().FindByID(ctx(), conv.ID)
	if unreadFor(t, f, conv.ID, b) != 1 || !stored.LastMessageAt.After(created) {
		t.Fatal("send did not update the conversation")
	}

	page, err := f.chat.ListAndMarkRead(ctx(), conv.ID, b, 1, 50)
	if err != nil {
		t.Fatalf("ListAndMarkRead: %v", err)
	}
	if unreadFor(t, f, conv.ID, b) != 0 || len(page.Messages) != 1 || page.Messages[0].Content != "hi" {
		t.Fatalf("unexpected page %+v", page.Messages)
	}
}
