package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"connectly/apperr"
	"connectly/models"
	"connectly/outbox"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const maxMessagePageSize = 100

type ChatOptions struct {
	// UniquePairs stores a canonical pair key on direct conversations so a
	// unique index can reject concurrent duplicates.
	UniquePairs bool
	PageSize    int
}

type SendInput struct {
	ConversationID primitive.ObjectID
	SenderID       primitive.ObjectID
	Content        string
	Type           models.MessageType
	Attachment     *models.Attachment
}

type MessagePage struct {
	Messages   []models.MessageView `json:"messages"`
	Pagination models.Pagination    `json:"pagination"`
}

type ChatService struct {
	conversations ConversationRepository
	messages      MessageRepository
	users         UserRepository
	opts          ChatOptions

	Now func() time.Time
}

func NewChatService(conversations ConversationRepository, messages MessageRepository, users UserRepository, opts ChatOptions) *ChatService {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		opts:          opts,
		Now:           time.Now,
	}
}

// FindOrCreate returns the direct conversation between requester and other,
// creating it when none exists. Two concurrent callers can both create one
// unless UniquePairs is enabled.
func (s *ChatService) FindOrCreate(ctx context.Context, requester, other primitive.ObjectID) (*models.ConversationView, error) {
	if requester == other {
		return nil, apperr.Validation("Cannot create conversation with yourself")
	}
	if _, err := s.users.FindByID(ctx, other); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, apperr.Internal("find user", err)
	}

	conv, err := s.conversations.FindDirect(ctx, requester, other)
	if err == nil {
		return s.view(ctx, conv, requester)
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, apperr.Internal("find conversation", err)
	}

	now := s.Now()
	conv = &models.Conversation{
		ID:           primitive.NewObjectID(),
		Participants: []primitive.ObjectID{requester, other},
		UnreadCount: []models.UnreadCounter{
			{User: requester}, {User: other},
		},
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if s.opts.UniquePairs {
		conv.PairKey = models.PairKey(requester, other)
	}
	if err := conv.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	err = s.conversations.Create(ctx, conv)
	if errors.Is(err, models.ErrDuplicate) && s.opts.UniquePairs {
		// Lost the race against a concurrent creator; use theirs.
		conv, err = s.conversations.FindDirect(ctx, requester, other)
	}
	if err != nil {
		return nil, apperr.Internal("create conversation", err)
	}
	return s.view(ctx, conv, requester)
}

// CreateGroup starts a group conversation administered by creator.
func (s *ChatService) CreateGroup(ctx context.Context, creator primitive.ObjectID, members []primitive.ObjectID, name string) (*models.ConversationView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Group name is required")
	}

	participants := []primitive.ObjectID{creator}
	seen := map[primitive.ObjectID]bool{creator: true}
	for _, m := range members {
		if !seen[m] {
			seen[m] = true
			participants = append(participants, m)
		}
	}

	found, err := s.users.Summaries(ctx, participants)
	if err != nil {
		return nil, apperr.Internal("load participants", err)
	}
	if len(found) != len(participants) {
		return nil, apperr.NotFound("User not found")
	}

	now := s.Now()
	conv := &models.Conversation{
		ID:            primitive.NewObjectID(),
		Participants:  participants,
		IsGroup:       true,
		GroupName:     name,
		GroupAdmin:    &creator,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, p := range participants {
		conv.UnreadCount = append(conv.UnreadCount, models.UnreadCounter{User: p})
	}
	if err := conv.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, apperr.Internal("create group conversation", err)
	}
	return s.view(ctx, conv, creator)
}

// ListConversations returns the user's conversations with participants,
// last message and the user's own unread count resolved.
func (s *ChatService) ListConversations(ctx context.Context, user primitive.ObjectID) ([]models.ConversationView, error) {
	convs, err := s.conversations.ListForUser(ctx, user)
	if err != nil {
		return nil, apperr.Internal("list conversations", err)
	}

	var userIDs, messageIDs []primitive.ObjectID
	for _, c := range convs {
		userIDs = append(userIDs, c.Participants...)
		if c.LastMessage != nil {
			messageIDs = append(messageIDs, *c.LastMessage)
		}
	}
	last, err := s.messages.FindByIDs(ctx, messageIDs)
	if err != nil {
		return nil, apperr.Internal("load last messages", err)
	}
	for _, m := range last {
		userIDs = append(userIDs, m.SenderID)
	}
	users, err := s.users.Summaries(ctx, userIDs)
	if err != nil {
		return nil, apperr.Internal("load participants", err)
	}

	views := make([]models.ConversationView, 0, len(convs))
	for i := range convs {
		views = append(views, buildConversationView(&convs[i], user, users, last))
	}
	return views, nil
}

// Send stores a message from a participant, moves the conversation's last
// message pointer and bumps every other participant's unread counter one at
// a time. A failure part way leaves earlier increments in place.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*models.MessageView, []outbox.Event, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && in.Attachment == nil {
		return nil, nil, apperr.Validation("Conversation ID and content are required")
	}
	if in.Type == "" {
		in.Type = models.MessageText
	}
	if !in.Type.Valid() {
		return nil, nil, apperr.Validation("Invalid message type")
	}

	conv, err := s.participantConversation(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, nil, err
	}

	now := s.Now()
	msg := &models.Message{
		ID:           primitive.NewObjectID(),
		Conversation: conv.ID,
		SenderID:     in.SenderID,
		Content:      content,
		MessageType:  in.Type,
		Attachment:   in.Attachment,
		CreatedAt:    now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, apperr.Internal("create message", err)
	}
	if err := s.conversations.SetLastMessage(ctx, conv.ID, msg.ID, now); err != nil {
		return nil, nil, apperr.Internal("update last message", err)
	}
	for _, p := range conv.Participants {
		if p == in.SenderID {
			continue
		}
		if err := s.conversations.IncrementUnread(ctx, conv.ID, p); err != nil {
			return nil, nil, apperr.Internal("increment unread count", err)
		}
	}

	senders, err := s.users.Summaries(ctx, []primitive.ObjectID{in.SenderID})
	if err != nil {
		return nil, nil, apperr.Internal("load sender", err)
	}
	view := &models.MessageView{Message: *msg, Sender: senders[in.SenderID]}

	events := make([]outbox.Event, 0, len(conv.Participants)-1)
	for _, p := range conv.Participants {
		if p != in.SenderID {
			events = append(events, outbox.NewMessage(p.Hex(), *view))
		}
	}
	return view, events, nil
}

// Delete soft deletes a message. Only its sender may delete it; every
// participant, the sender included, is told about the deletion. Deleting an
// already deleted message succeeds and announces it again.
func (s *ChatService) Delete(ctx context.Context, messageID, requester primitive.ObjectID) ([]outbox.Event, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("Message not found")
	}
	if err != nil {
		return nil, apperr.Internal("find message", err)
	}
	if msg.SenderID != requester {
		return nil, apperr.Forbidden("Not authorized to delete this message")
	}
	if err := s.messages.SoftDelete(ctx, messageID, s.Now()); err != nil {
		return nil, apperr.Internal("delete message", err)
	}

	conv, err := s.conversations.FindByID(ctx, msg.Conversation)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal("find conversation", err)
	}
	events := make([]outbox.Event, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		events = append(events, outbox.MessageDeleted(p.Hex(), messageID.Hex(), conv.ID.Hex()))
	}
	return events, nil
}

// ListAndMarkRead returns one page of a conversation oldest first. Reading
// also marks every message the requester did not send as read and resets
// the requester's unread counter. The returned page reflects read state
// from before the call.
func (s *ChatService) ListAndMarkRead(ctx context.Context, conversationID, requester primitive.ObjectID, page, limit int64) (*MessagePage, error) {
	conv, err := s.participantConversation(ctx, conversationID, requester)
	if err != nil {
		return nil, err
	}

	page, limit, skip := models.PageParams(page, limit, int64(s.opts.PageSize), maxMessagePageSize)
	msgs, total, err := s.messages.ListPage(ctx, conv.ID, skip, limit)
	if err != nil {
		return nil, apperr.Internal("list messages", err)
	}

	senderIDs := make([]primitive.ObjectID, 0, len(msgs))
	for _, m := range msgs {
		senderIDs = append(senderIDs, m.SenderID)
	}
	senders, err := s.users.Summaries(ctx, senderIDs)
	if err != nil {
		return nil, apperr.Internal("load senders", err)
	}

	views := make([]models.MessageView, len(msgs))
	for i, m := range msgs {
		// Stored order is newest first; clients want oldest first.
		views[len(msgs)-1-i] = models.MessageView{Message: m, Sender: senders[m.SenderID]}
	}

	if err := s.markRead(ctx, conv.ID, requester); err != nil {
		return nil, err
	}
	return &MessagePage{
		Messages:   views,
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

// MarkRead is the explicit form of the read side effect of ListAndMarkRead.
func (s *ChatService) MarkRead(ctx context.Context, conversationID, requester primitive.ObjectID) error {
	conv, err := s.participantConversation(ctx, conversationID, requester)
	if err != nil {
		return err
	}
	return s.markRead(ctx, conv.ID, requester)
}

// UnreadTotal sums the user's unread counters across all conversations.
func (s *ChatService) UnreadTotal(ctx context.Context, user primitive.ObjectID) (int, error) {
	total, err := s.conversations.UnreadTotal(ctx, user)
	if err != nil {
		return 0, apperr.Internal("count unread messages", err)
	}
	return total, nil
}

func (s *ChatService) markRead(ctx context.Context, conversationID, reader primitive.ObjectID) error {
	if _, err := s.messages.MarkRead(ctx, conversationID, reader, s.Now()); err != nil {
		return apperr.Internal("mark messages read", err)
	}
	if err := s.conversations.ResetUnread(ctx, conversationID, reader); err != nil {
		return apperr.Internal("reset unread count", err)
	}
	return nil
}

func (s *ChatService) participantConversation(ctx context.Context, id, user primitive.ObjectID) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("Conversation not found")
	}
	if err != nil {
		return nil, apperr.Internal("find conversation", err)
	}
	if !conv.HasParticipant(user) {
		return nil, apperr.Forbidden("Not a participant of this conversation")
	}
	return conv, nil
}

func (s *ChatService) view(ctx context.Context, conv *models.Conversation, viewer primitive.ObjectID) (*models.ConversationView, error) {
	ids := append([]primitive.ObjectID(nil), conv.Participants...)
	last := map[primitive.ObjectID]models.Message{}
	if conv.LastMessage != nil {
		var err error
		last, err = s.messages.FindByIDs(ctx, []primitive.ObjectID{*conv.LastMessage})
		if err != nil {
			return nil, apperr.Internal("load last message", err)
		}
	}
	users, err := s.users.Summaries(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("load participants", err)
	}
	v := buildConversationView(conv, viewer, users, last)
	return &v, nil
}

func buildConversationView(c *models.Conversation, viewer primitive.ObjectID, users map[primitive.ObjectID]models.UserSummary, last map[primitive.ObjectID]models.Message) models.ConversationView {
	v := models.ConversationView{
		ID:            c.ID,
		Participants:  make([]models.UserSummary, 0, len(c.Participants)),
		LastMessageAt: c.LastMessageAt,
		IsGroup:       c.IsGroup,
		GroupName:     c.GroupName,
		UnreadCount:   c.UnreadFor(viewer),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, p := range c.Participants {
		if u, ok := users[p]; ok {
			v.Participants = append(v.Participants, u)
		}
	}
	if c.LastMessage != nil {
		if m, ok := last[*c.LastMessage]; ok && !m.IsDeleted {
			v.LastMessage = &models.MessageView{Message: m, Sender: users[m.SenderID]}
		}
	}
	return v
}
