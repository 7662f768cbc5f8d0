// Package servicetest provides in-memory repositories for exercising the
// services without a database.
package servicetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store backs every repository with maps guarded by one mutex.
type Store struct {
	mu            sync.Mutex
	users         map[primitive.ObjectID]models.User
	posts         map[primitive.ObjectID]models.Post
	conversations map[primitive.ObjectID]models.Conversation
	messages      map[primitive.ObjectID]models.Message
	notifications map[primitive.ObjectID]models.Notification

	// UniquePairs makes conversation creation reject a second direct
	// conversation with the same pair key.
	UniquePairs bool
}

func NewStore() *Store {
	return &Store{
		users:         make(map[primitive.ObjectID]models.User),
		posts:         make(map[primitive.ObjectID]models.Post),
		conversations: make(map[primitive.ObjectID]models.Conversation),
		messages:      make(map[primitive.ObjectID]models.Message),
		notifications: make(map[primitive.ObjectID]models.Notification),
	}
}

func (s *Store) Users() *Users { return &Users{s} }
func (s *Store) Posts() *Posts { return &Posts{s} }
func (s *Store) Conversations() *Conversations { return &Conversations{s} }
func (s *Store) Messages() *Messages { return &Messages{s} }
func (s *Store) Notifications() *Notifications { return &Notifications{s} }

// AddUser stores a user directly and returns its ID.
func (s *Store) AddUser(username string) primitive.ObjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := models.User{
		ID:        primitive.NewObjectID(),
		Username:  username,
		Email:     username + "@example.com",
		FirstName: strings.ToUpper(username[:1]) + username[1:],
		LastName:  "Test",
		CreatedAt: time.Now(),
	}
	s.users[u.ID] = u
	return u.ID
}

// NotificationCount returns how many notifications are stored for recipient.
func (s *Store) NotificationCount(recipient primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.notifications {
		if v.Recipient == recipient {
			n++
		}
	}
	return n
}

// ConversationCount returns how many conversations are stored.
func (s *Store) ConversationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

func contains(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func page[T any](items []T, skip, limit int64) []T {
	if skip >= int64(len(items)) {
		return []T{}
	}
	end := int64(len(items))
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return items[skip:end]
}

type Users struct{ s *Store }

func (r *Users) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.users {
		if v.Email == u.Email || v.Username == u.Username {
			return models.ErrDuplicate
		}
	}
	r.s.users[u.ID] = cloneUser(*u)
	return nil
}

func (r *Users) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	u = cloneUser(u)
	return &u, nil
}

func (r *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *Users) FindByEmailOrUsername(_ context.Context, email, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email || u.Username == username {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *Users) Summaries(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

func (r *Users) FindByIDs(_ context.Context, ids []primitive.ObjectID, skip, limit int64) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return page(out, skip, limit), nil
}

func (r *Users) Search(_ context.Context, term string, skip, limit int64) ([]models.User, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	term = strings.ToLower(term)
	var out []models.User
	for _, u := range r.s.users {
		if term == "" ||
			strings.Contains(strings.ToLower(u.Username), term) ||
			strings.Contains(strings.ToLower(u.FirstName), term) ||
			strings.Contains(strings.ToLower(u.LastName), term) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return page(out, skip, limit), int64(len(out)), nil
}

func (r *Users) FindExcluding(_ context.Context, exclude []primitive.ObjectID, limit int64) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, u := range r.s.users {
		if !contains(exclude, u.ID) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i].Followers) > len(out[j].Followers) })
	return page(out, 0, limit), nil
}

func (r *Users) UpdateProfile(_ context.Context, id primitive.ObjectID, upd models.ProfileUpdate, at time.Time) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.FirstName, upd.FirstName)
	set(&u.LastName, upd.LastName)
	set(&u.Bio, upd.Bio)
	set(&u.Location, upd.Location)
	set(&u.Website, upd.Website)
	set(&u.ProfilePicture, upd.ProfilePicture)
	set(&u.CoverPicture, upd.CoverPicture)
	if upd.IsPrivate != nil {
		u.IsPrivate = *upd.IsPrivate
	}
	u.UpdatedAt = at
	r.s.users[id] = u
	u = cloneUser(u)
	return &u, nil
}

func (r *Users) UpdatePassword(_ context.Context, id primitive.ObjectID, hash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	r.s.users[id] = u
	return nil
}

func (r *Users) TouchLastActive(_ context.Context, id primitive.ObjectID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.LastActive = at
	r.s.users[id] = u
	return nil
}

func (r *Users) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.s.users, id)
	return nil
}

func (r *Users) SetFollowing(_ context.Context, user, target primitive.ObjectID, follow bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[user]
	if !ok {
		return models.ErrNotFound
	}
	u.Following = without(u.Following, target)
	if follow {
		u.Following = append(u.Following, target)
	}
	r.s.users[user] = u
	return nil
}

func (r *Users) SetFollower(_ context.Context, user, follower primitive.ObjectID, follow bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[user]
	if !ok {
		return models.ErrNotFound
	}
	u.Followers = without(u.Followers, follower)
	if follow {
		u.Followers = append(u.Followers, follower)
	}
	r.s.users[user] = u
	return nil
}

func cloneUser(u models.User) models.User {
	u.Followers = append([]primitive.ObjectID(nil), u.Followers...)
	u.Following = append([]primitive.ObjectID(nil), u.Following...)
	return u
}
