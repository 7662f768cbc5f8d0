package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"connectly/apperr"
	"connectly/models"
	"connectly/outbox"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

type RegisterInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type FollowResult struct {
	UserID        primitive.ObjectID `json:"userId"`
	IsFollowing   bool               `json:"isFollowing"`
	FollowerCount int                `json:"followerCount"`
}

type UserPage struct {
	Users      []models.UserSummary `json:"users"`
	Pagination models.Pagination    `json:"pagination"`
}

type UserService struct {
	users         UserRepository
	posts         PostRepository
	notifications *NotificationService

	HashCost int
	Now      func() time.Time
}

func NewUserService(users UserRepository, posts PostRepository, notifications *NotificationService) *UserService {
	return &UserService{
		users:         users,
		posts:         posts,
		notifications: notifications,
		HashCost:      bcrypt.DefaultCost,
		Now:           time.Now,
	}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := validateRegistration(in); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmailOrUsername(ctx, in.Email, in.Username)
	if err == nil {
		return nil, apperr.Conflict("User with this email or username already exists")
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, apperr.Internal("check existing user", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.HashCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	now := s.Now()
	u := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Followers:    []primitive.ObjectID{},
		Following:    []primitive.ObjectID{},
		LastActive:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, apperr.Conflict("User with this email or username already exists")
		}
		return nil, apperr.Internal("create user", err)
	}
	return u, nil
}

func validateRegistration(in RegisterInput) error {
	n := utf8.RuneCountInString(in.Username)
	switch {
	case n < models.UsernameMinLen || n > models.UsernameMaxLen:
		return apperr.Validation("Username must be between 3 and 20 characters")
	case !usernamePattern.MatchString(in.Username):
		return apperr.Validation("Username can only contain letters, numbers, and underscores")
	case !emailPattern.MatchString(in.Email):
		return apperr.Validation("Please provide a valid email")
	case len(in.Password) < models.PasswordMinLen:
		return apperr.Validation("Password must be at least 6 characters long")
	case in.FirstName == "" || in.LastName == "":
		return apperr.Validation("First name and last name are required")
	case utf8.RuneCountInString(in.FirstName) > models.NameMaxLen || utf8.RuneCountInString(in.LastName) > models.NameMaxLen:
		return apperr.Validation("Names cannot exceed 30 characters")
	}
	return nil
}

// Authenticate checks credentials and records activity.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.Unauthorized("Invalid credentials")
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	now := s.Now()
	if err := s.users.TouchLastActive(ctx, u.ID, now); err != nil {
		return nil, apperr.Internal("touch last active", err)
	}
	u.LastActive = now
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}
	return u, nil
}

func (s *UserService) Profile(ctx context.Context, id, viewer primitive.ObjectID) (*models.PublicProfile, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.CountByAuthor(ctx, id)
	if err != nil {
		return nil, apperr.Internal("count posts", err)
	}
	return &models.PublicProfile{
		User:           *u,
		FollowersCount: len(u.Followers),
		FollowingCount: len(u.Following),
		PostsCount:     posts,
		IsFollowedBy:   containsID(u.Followers, viewer),
	}, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error) {
	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(upd.FirstName)
	trim(upd.LastName)
	trim(upd.Bio)

	if upd.FirstName != nil && (*upd.FirstName == "" || utf8.RuneCountInString(*upd.FirstName) > models.NameMaxLen) {
		return nil, apperr.Validation("First name must be between 1 and 30 characters")
	}
	if upd.LastName != nil && (*upd.LastName == "" || utf8.RuneCountInString(*upd.LastName) > models.NameMaxLen) {
		return nil, apperr.Validation("Last name must be between 1 and 30 characters")
	}
	if upd.Bio != nil && utf8.RuneCountInString(*upd.Bio) > models.BioMaxLen {
		return nil, apperr.Validation("Bio cannot exceed 500 characters")
	}

	u, err := s.users.UpdateProfile(ctx, id, upd, s.Now())
	if errors.Is(err, models.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal("update profile", err)
	}
	return u, nil
}

func (s *UserService) ChangePassword(ctx context.Context, id primitive.ObjectID, current, next string) error {
	if current == "" || next == "" {
		return apperr.Validation("Current password and new password are required")
	}
	if len(next) < models.PasswordMinLen {
		return apperr.Validation("New password must be at least 6 characters long")
	}

	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return apperr.Validation("Current password is incorrect")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.HashCost)
	if err != nil {
		return apperr.Internal("hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, id, string(hash), s.Now()); err != nil {
		return apperr.Internal("update password", err)
	}
	return nil
}

// DeleteAccount removes the user after confirming the password. Posts,
// messages and follow references to the user are left in place.
func (s *UserService) DeleteAccount(ctx context.Context, id primitive.ObjectID, password string) error {
	if password == "" {
		return apperr.Validation("Please provide your password to confirm deletion")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return apperr.Validation("Password is incorrect")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("delete user", err)
	}
	return nil
}

// ToggleFollow follows target, or unfollows when already following. The two
// user records are written one after the other without a transaction. A new
// follow notifies the target.
func (s *UserService) ToggleFollow(ctx context.Context, follower, target primitive.ObjectID) (*FollowResult, []outbox.Event, error) {
	if follower == target {
		return nil, nil, apperr.Validation("You cannot follow yourself")
	}
	targetUser, err := s.Get(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	me, err := s.Get(ctx, follower)
	if err != nil {
		return nil, nil, err
	}

	follow := !me.IsFollowing(target)
	if err := s.users.SetFollowing(ctx, follower, target, follow); err != nil {
		return nil, nil, apperr.Internal("update following", err)
	}
	if err := s.users.SetFollower(ctx, target, follower, follow); err != nil {
		return nil, nil, apperr.Internal("update followers", err)
	}

	count := len(targetUser.Followers)
	switch {
	case follow && !containsID(targetUser.Followers, follower):
		count++
	case !follow && containsID(targetUser.Followers, follower):
		count--
	}
	res := &FollowResult{UserID: target, IsFollowing: follow, FollowerCount: count}
	if !follow {
		return res, nil, nil
	}

	events, err := s.notifications.Notify(ctx, NotificationInput{
		Recipient: target,
		Sender:    follower,
		Type:      models.NotificationFollow,
		Message:   displayName(me) + " started following you",
	}, me.Summary())
	if err != nil {
		return nil, nil, err
	}
	return res, events, nil
}

func (s *UserService) Followers(ctx context.Context, id primitive.ObjectID, page, limit int64) (*UserPage, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.pageOf(ctx, u.Followers, page, limit)
}

func (s *UserService) Following(ctx context.Context, id primitive.ObjectID, page, limit int64) (*UserPage, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.pageOf(ctx, u.Following, page, limit)
}

func (s *UserService) pageOf(ctx context.Context, ids []primitive.ObjectID, page, limit int64) (*UserPage, error) {
	page, limit, skip := models.PageParams(page, limit, 20, 100)
	users, err := s.users.FindByIDs(ctx, ids, skip, limit)
	if err != nil {
		return nil, apperr.Internal("load users", err)
	}
	return &UserPage{
		Users:      summaries(users),
		Pagination: models.NewPagination(page, limit, int64(len(ids))),
	}, nil
}

// Suggestions lists users the requester neither is nor follows.
func (s *UserService) Suggestions(ctx context.Context, id primitive.ObjectID, limit int64) ([]models.UserSummary, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	exclude := append([]primitive.ObjectID{id}, u.Following...)
	users, err := s.users.FindExcluding(ctx, exclude, limit)
	if err != nil {
		return nil, apperr.Internal("load suggestions", err)
	}
	return summaries(users), nil
}

func (s *UserService) Search(ctx context.Context, term string, page, limit int64) (*UserPage, error) {
	page, limit, skip := models.PageParams(page, limit, 10, 50)
	users, total, err := s.users.Search(ctx, strings.TrimSpace(term), skip, limit)
	if err != nil {
		return nil, apperr.Internal("search users", err)
	}
	return &UserPage{
		Users:      summaries(users),
		Pagination: models.NewPagination(page, limit, total),
	}, nil
}

// SetAvatar stores an already uploaded profile picture URL.
func (s *UserService) SetAvatar(ctx context.Context, id primitive.ObjectID, url string) (*models.User, error) {
	return s.UpdateProfile(ctx, id, models.ProfileUpdate{ProfilePicture: &url})
}

func summaries(users []models.User) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
