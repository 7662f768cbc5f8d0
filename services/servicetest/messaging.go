package servicetest

import (
	"context"
	"sort"
	"time"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Conversations struct{ s *Store }

func (r *Conversations) Create(_ context.Context, c *models.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.UniquePairs && c.PairKey != "" {
		for _, v := range r.s.conversations {
			if v.PairKey == c.PairKey {
				return models.ErrDuplicate
			}
		}
	}
	r.s.conversations[c.ID] = cloneConversation(*c)
	return nil
}

func (r *Conversations) FindByID(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c = cloneConversation(c)
	return &c, nil
}

func (r *Conversations) FindDirect(_ context.Context, a, b primitive.ObjectID) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found []models.Conversation
	for _, c := range r.s.conversations {
		if !c.IsGroup && len(c.Participants) == 2 && contains(c.Participants, a) && contains(c.Participants, b) {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return nil, models.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	c := cloneConversation(found[0])
	return &c, nil
}

func (r *Conversations) ListForUser(_ context.Context, user primitive.ObjectID) ([]models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Conversation
	for _, c := range r.s.conversations {
		if contains(c.Participants, user) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *Conversations) SetLastMessage(_ context.Context, id, messageID primitive.ObjectID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return models.ErrNotFound
	}
	c.LastMessage = &messageID
	c.LastMessageAt = at
	c.UpdatedAt = at
	r.s.conversations[id] = c
	return nil
}

func (r *Conversations) IncrementUnread(_ context.Context, id, user primitive.ObjectID) error {
	return r.adjust(id, user, func(n int) int { return n + 1 })
}

func (r *Conversations) ResetUnread(_ context.Context, id, user primitive.ObjectID) error {
	return r.adjust(id, user, func(int) int { return 0 })
}

func (r *Conversations) adjust(id, user primitive.ObjectID, f func(int) int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return models.ErrNotFound
	}
	c = cloneConversation(c)
	for i := range c.UnreadCount {
		if c.UnreadCount[i].User == user {
			c.UnreadCount[i].Count = f(c.UnreadCount[i].Count)
			r.s.conversations[id] = c
			return nil
		}
	}
	c.UnreadCount = append(c.UnreadCount, models.UnreadCounter{User: user, Count: f(0)})
	r.s.conversations[id] = c
	return nil
}

func (r *Conversations) UnreadTotal(_ context.Context, user primitive.ObjectID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := 0
	for _, c := range r.s.conversations {
		if contains(c.Participants, user) {
			total += c.UnreadFor(user)
		}
	}
	return total, nil
}

func cloneConversation(c models.Conversation) models.Conversation {
	c.Participants = append([]primitive.ObjectID(nil), c.Participants...)
	c.UnreadCount = append([]models.UnreadCounter(nil), c.UnreadCount...)
	return c
}

type Messages struct{ s *Store }

func (r *Messages) Create(_ context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.messages[m.ID] = *m
	return nil
}

func (r *Messages) FindByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &m, nil
}

func (r *Messages) FindByIDs(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[primitive.ObjectID]models.Message, len(ids))
	for _, id := range ids {
		if m, ok := r.s.messages[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (r *Messages) SoftDelete(_ context.Context, id primitive.ObjectID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return models.ErrNotFound
	}
	m.IsDeleted = true
	m.DeletedAt = &at
	r.s.messages[id] = m
	return nil
}

func (r *Messages) ListPage(_ context.Context, conversation primitive.ObjectID, skip, limit int64) ([]models.Message, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.Conversation == conversation && !m.IsDeleted {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, skip, limit), int64(len(out)), nil
}

func (r *Messages) MarkRead(_ context.Context, conversation, reader primitive.ObjectID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.messages {
		if m.Conversation == conversation && m.SenderID != reader && !m.IsRead {
			m.IsRead = true
			readAt := at
			m.ReadAt = &readAt
			r.s.messages[id] = m
			n++
		}
	}
	return n, nil
}

type Notifications struct{ s *Store }

func (r *Notifications) FindRecent(_ context.Context, key models.DedupKey, since time.Time) (*models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.Notification
	for _, n := range r.s.notifications {
		if n.Recipient != key.Recipient || n.Sender != key.Sender || n.Type != key.Type {
			continue
		}
		if !samePost(n.RelatedPost, key.RelatedPost) || !n.CreatedAt.After(since) {
			continue
		}
		if best == nil || n.CreatedAt.After(best.CreatedAt) {
			n := n
			best = &n
		}
	}
	if best == nil {
		return nil, models.ErrNotFound
	}
	return best, nil
}

func samePost(a, b *primitive.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *Notifications) Create(_ context.Context, n *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications[n.ID] = *n
	return nil
}

func (r *Notifications) CreateMany(_ context.Context, ns []*models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, n := range ns {
		r.s.notifications[n.ID] = *n
	}
	return nil
}

func (r *Notifications) FindByID(_ context.Context, id primitive.ObjectID) (*models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &n, nil
}

func (r *Notifications) MarkRead(_ context.Context, id primitive.ObjectID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return models.ErrNotFound
	}
	n.IsRead = true
	n.ReadAt = &at
	r.s.notifications[id] = n
	return nil
}

func (r *Notifications) ListForRecipient(_ context.Context, recipient primitive.ObjectID, skip, limit int64) ([]models.Notification, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Notification
	for _, n := range r.s.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, skip, limit), int64(len(out)), nil
}

func (r *Notifications) CountUnread(_ context.Context, recipient primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, v := range r.s.notifications {
		if v.Recipient == recipient && !v.IsRead {
			n++
		}
	}
	return n, nil
}
