package services_test

import (
	"testing"
	"time"

	"connectly/apperr"
	"connectly/models"
	"connectly/outbox"
	"connectly/services"
)

func register(t *testing.T, f *fixture, username string) *models.User {
	t.Helper()
	u, err := f.users.Register(ctx(), services.RegisterInput{
		Username:  username,
		Email:     username + "@Example.com",
		Password:  "secret123",
		FirstName: "First",
		LastName:  "Last",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return u
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := register(t, f, "alice")
	if u.Email != "alice@example.com" || u.PasswordHash == "" || u.PasswordHash == "secret123" {
		t.Fatalf("unexpected stored user %+v", u)
	}

	got, err := f.users.Authenticate(ctx(), "ALICE@example.com", "secret123")
	if err != nil || got.ID != u.ID {
		t.Fatalf("Authenticate: %+v %v", got, err)
	}

	_, err = f.users.Authenticate(ctx(), "alice@example.com", "wrong")
	requireKind(t, err, apperr.KindUnauthorized)
	_, err = f.users.Authenticate(ctx(), "nobody@example.com", "secret123")
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice")

	cases := []struct {
		name string
		in   services.RegisterInput
		kind apperr.Kind
	}{
		{"short username", services.RegisterInput{Username: "al", Email: "x@y.io", Password: "secret1", FirstName: "A", LastName: "B"}, apperr.KindValidation},
		{"bad chars", services.RegisterInput{Username: "al ice", Email: "x@y.io", Password: "secret1", FirstName: "A", LastName: "B"}, apperr.KindValidation},
		{"bad email", services.RegisterInput{Username: "bobby", Email: "nope", Password: "secret1", FirstName: "A", LastName: "B"}, apperr.KindValidation},
		{"short password", services.RegisterInput{Username: "bobby", Email: "x@y.io", Password: "123", FirstName: "A", LastName: "B"}, apperr.KindValidation},
		{"missing names", services.RegisterInput{Username: "bobby", Email: "x@y.io", Password: "secret1"}, apperr.KindValidation},
		{"taken username", services.RegisterInput{Username: "alice", Email: "x@y.io", Password: "secret1", FirstName: "A", LastName: "B"}, apperr.KindConflict},
		{"taken email", services.RegisterInput{Username: "bobby", Email: "alice@example.com", Password: "secret1", FirstName: "A", LastName: "B"}, apperr.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.users.Register(ctx(), tc.in)
			requireKind(t, err, tc.kind)
		})
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	u := register(t, f, "alice")

	requireKind(t, f.users.ChangePassword(ctx(), u.ID, "wrong", "newsecret"), apperr.KindValidation)
	if err := f.users.ChangePassword(ctx(), u.ID, "secret123", "newsecret"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.users.Authenticate(ctx(), "alice@example.com", "newsecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	u := register(t, f, "alice")

	requireKind(t, f.users.DeleteAccount(ctx(), u.ID, ""), apperr.KindValidation)
	requireKind(t, f.users.DeleteAccount(ctx(), u.ID, "wrong"), apperr.KindValidation)
	if err := f.users.DeleteAccount(ctx(), u.ID, "secret123"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	_, err := f.users.Get(ctx(), u.ID)
	requireKind(t, err, apperr.KindNotFound)
	_, err = f.users.Authenticate(ctx(), "alice@example.com", "secret123")
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	u := register(t, f, "alice")

	bio := " hello "
	got, err := f.users.UpdateProfile(ctx(), u.ID, models.ProfileUpdate{Bio: &bio})
	if err != nil || got.Bio != "hello" || got.FirstName != "First" {
		t.Fatalf("UpdateProfile: %+v %v", got, err)
	}

	long := string(make([]byte, 501))
	_, err = f.users.UpdateProfile(ctx(), u.ID, models.ProfileUpdate{Bio: &long})
	requireKind(t, err, apperr.KindValidation)
}

func TestToggleFollow(t *testing.T) {
	f := newFixture(t)
	a, b := f.store.AddUser("alice"), f.store.AddUser("bob")

	res, events, err := f.users.ToggleFollow(ctx(), a, b)
	if err != nil {
		t.Fatalf("ToggleFollow: %v", err)
	}
	if !res.IsFollowing || res.FollowerCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(events) != 1 || events[0].Type != outbox.TypeNotification || events[0].Recipient != b.Hex() {
		t.Fatalf("unexpected events %+v", events)
	}
	alice, _ := f.store.Users().FindByID(ctx(), a)
	bob, _ := f.store.Users().FindByID(ctx(), b)
	if !alice.IsFollowing(b) || len(bob.Followers) != 1 || bob.Followers[0] != a {
		t.Fatal("follow edges not written")
	}

	res, events, err = f.users.ToggleFollow(ctx(), a, b)
	if err != nil || res.IsFollowing || res.FollowerCount != 0 || len(events) != 0 {
		t.Fatalf("unfollow: %+v %v %v", res, events, err)
	}

	// Following again the same day collapses into the earlier notification.
	f.clock.Advance(time.Hour)
	_, events, _ = f.users.ToggleFollow(ctx(), a, b)
	if len(events) != 0 || f.store.NotificationCount(b) != 1 {
		t.Fatalf("expected dedup of follow notification, got %d events, %d stored", len(events), f.store.NotificationCount(b))
	}

	_, _, err = f.users.ToggleFollow(ctx(), a, a)
	requireKind(t, err, apperr.KindValidation)
	_, _, err = f.users.ToggleFollow(ctx(), a, oid())
	requireKind(t, err, apperr.KindNotFound)
}

func TestFollowListsAndSuggestions(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.store.AddUser("alice"), f.store.AddUser("bob"), f.store.AddUser("carol")
	f.users.ToggleFollow(ctx(), a, b)
	f.users.ToggleFollow(ctx(), c, b)

	followers, err := f.users.Followers(ctx(), b, 1, 10)
	if err != nil || followers.Pagination.Total != 2 || len(followers.Users) != 2 {
		t.Fatalf("Followers: %+v %v", followers, err)
	}
	following, err := f.users.Following(ctx(), a, 1, 10)
	if err != nil || len(following.Users) != 1 || following.Users[0].ID != b {
		t.Fatalf("Following: %+v %v", following, err)
	}

	suggestions, err := f.users.Suggestions(ctx(), a, 5)
	if err != nil {
		t.Fatalf("Suggestions: %v", err)
	}
	if len(suggestions) != 1 || suggestions[0].ID != c {
		t.Fatalf("expected only carol, got %+v", suggestions)
	}

	found, err := f.users.Search(ctx(), "CAR", 1, 10)
	if err != nil || len(found.Users) != 1 || found.Users[0].Username != "carol" {
		t.Fatalf("Search: %+v %v", found, err)
	}

	profile, err := f.users.Profile(ctx(), b, a)
	if err != nil || profile.FollowersCount != 2 || !profile.IsFollowedBy {
		t.Fatalf("Profile: %+v %v", profile, err)
	}
}
