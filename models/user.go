package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	UsernameMinLen = 3
	UsernameMaxLen = 20
	NameMaxLen     = 30
	BioMaxLen      = 500
	PasswordMinLen = 6
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`

	FirstName      string `bson:"firstName" json:"firstName"`
	LastName       string `bson:"lastName" json:"lastName"`
	Bio            string `bson:"bio" json:"bio"`
	ProfilePicture string `bson:"profilePicture" json:"profilePicture"`
	CoverPicture   string `bson:"coverPicture" json:"coverPicture"`
	Location       string `bson:"location" json:"location"`
	Website        string `bson:"website" json:"website"`
	IsVerified     bool   `bson:"isVerified" json:"isVerified"`
	IsPrivate      bool   `bson:"isPrivate" json:"isPrivate"`

	// Never contains the user's own ID.
	Followers []primitive.ObjectID `bson:"followers" json:"followers"`
	Following []primitive.ObjectID `bson:"following" json:"following"`

	LastActive time.Time `bson:"lastActive" json:"lastActive"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		ProfilePicture: u.ProfilePicture,
		IsVerified:     u.IsVerified,
	}
}

func (u *User) IsFollowing(id primitive.ObjectID) bool {
	return containsID(u.Following, id)
}

// UserSummary is the display subset embedded wherever a user is referenced.
type UserSummary struct {
	ID             primitive.ObjectID `bson:"_id" json:"id"`
	Username       string             `bson:"username" json:"username"`
	FirstName      string             `bson:"firstName" json:"firstName"`
	LastName       string             `bson:"lastName" json:"lastName"`
	ProfilePicture string             `bson:"profilePicture" json:"profilePicture"`
	IsVerified     bool               `bson:"isVerified" json:"isVerified"`
}

type ProfileUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Bio       *string `json:"bio"`
	Location  *string `json:"location"`
	Website   *string `json:"website"`
	IsPrivate *bool   `json:"isPrivate"`

	ProfilePicture *string `json:"-"`
	CoverPicture   *string `json:"-"`
}

type PublicProfile struct {
	User
	FollowersCount int   `json:"followersCount"`
	FollowingCount int   `json:"followingCount"`
	PostsCount     int64 `json:"postsCount"`
	IsFollowedBy   bool  `json:"isFollowing"`
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
