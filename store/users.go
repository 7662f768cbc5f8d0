package store

import (
	"context"
	"regexp"
	"time"

	"connectly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var summaryProjection = bson.M{
	"username":       1,
	"firstName":      1,
	"lastName":       1,
	"profilePicture": 1,
	"isVerified":     1,
}

type UsersStore struct {
	coll *mongo.Collection
}

func NewUsersStore(coll *mongo.Collection) *UsersStore {
	return &UsersStore{coll: coll}
}

func (s *UsersStore) Create(ctx context.Context, u *models.User) error {
	_, err := s.coll.InsertOne(ctx, u)
	return translate("insert user", err)
}

func (s *UsersStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *UsersStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *UsersStore) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"email": email},
		bson.M{"username": username},
	}})
}

func (s *UsersStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := s.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, translate("find user", err)
	}
	return &u, nil
}

func (s *UsersStore) Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(summaryProjection),
	)
	if err != nil {
		return nil, translate("find user summaries", err)
	}
	var list []models.UserSummary
	if err := cur.All(ctx, &list); err != nil {
		return nil, translate("decode user summaries", err)
	}
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}

func (s *UsersStore) FindByIDs(ctx context.Context, ids []primitive.ObjectID, skip, limit int64) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	opts := options.Find().SetSkip(skip).SetLimit(limit).SetSort(bson.D{{Key: "username", Value: 1}})
	return s.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
}

func (s *UsersStore) Search(ctx context.Context, term string, skip, limit int64) ([]models.User, int64, error) {
	filter := bson.M{}
	if term != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"username": re},
			bson.M{"firstName": re},
			bson.M{"lastName": re},
		}
	}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, translate("count users", err)
	}
	opts := options.Find().SetSkip(skip).SetLimit(limit).SetSort(bson.D{{Key: "createdAt", Value: -1}})
	users, err := s.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// FindExcluding returns users not in exclude, most followed first.
func (s *UsersStore) FindExcluding(ctx context.Context, exclude []primitive.ObjectID, limit int64) ([]models.User, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$nin": exclude}}}},
		{{Key: "$addFields", Value: bson.M{"followerCount": bson.M{"$size": bson.M{"$ifNull": bson.A{"$followers", bson.A{}}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "followerCount", Value: -1}, {Key: "createdAt", Value: -1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, translate("aggregate suggestions", err)
	}
	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, translate("decode suggestions", err)
	}
	return users, nil
}

func (s *UsersStore) find(ctx context.Context, filter any, opts *options.FindOptions) ([]models.User, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, translate("find users", err)
	}
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, translate("decode users", err)
	}
	return users, nil
}

func (s *UsersStore) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate, at time.Time) (*models.User, error) {
	set := bson.M{"updatedAt": at}
	put := func(field string, v *string) {
		if v != nil {
			set[field] = *v
		}
	}
	put("firstName", upd.FirstName)
	put("lastName", upd.LastName)
	put("bio", upd.Bio)
	put("location", upd.Location)
	put("website", upd.Website)
	put("profilePicture", upd.ProfilePicture)
	put("coverPicture", upd.CoverPicture)
	if upd.IsPrivate != nil {
		set["isPrivate"] = *upd.IsPrivate
	}

	var u models.User
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, translate("update profile", err)
	}
	return &u, nil
}

func (s *UsersStore) UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string, at time.Time) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"passwordHash": hash, "updatedAt": at}})
}

func (s *UsersStore) TouchLastActive(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return s.updateOne(ctx, id, bson.M{"$set": bson.M{"lastActive": at}})
}

func (s *UsersStore) SetFollowing(ctx context.Context, user, target primitive.ObjectID, follow bool) error {
	return s.updateOne(ctx, user, setMembership("following", target, follow))
}

func (s *UsersStore) SetFollower(ctx context.Context, user, follower primitive.ObjectID, follow bool) error {
	return s.updateOne(ctx, user, setMembership("followers", follower, follow))
}

func setMembership(field string, id primitive.ObjectID, add bool) bson.M {
	if add {
		return bson.M{"$addToSet": bson.M{field: id}}
	}
	return bson.M{"$pull": bson.M{field: id}}
}

func (s *UsersStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate("delete user", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *UsersStore) updateOne(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return translate("update user", err)
	}
	if res.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}
