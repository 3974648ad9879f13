package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"plantops/portal/internal/ids"
	"plantops/portal/internal/models"
)

const usersCollection = "users"

// mongoUser adds lowercase shadow fields so identifier lookups and the unique
// indexes ignore case.
type mongoUser struct {
	ID            string          `bson:"_id"`
	Username      string          `bson:"username"`
	UsernameLower string          `bson:"username_lower"`
	NIK           string          `bson:"nik"`
	NIKLower      string          `bson:"nik_lower"`
	PasswordHash  []byte          `bson:"password_hash"`
	Role          models.Role     `bson:"role"`
	Location      models.Location `bson:"location,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
}

func newMongoUser(user models.User) mongoUser {
	return mongoUser{
		ID:            user.ID,
		Username:      user.Username,
		UsernameLower: strings.ToLower(user.Username),
		NIK:           user.NIK,
		NIKLower:      strings.ToLower(user.NIK),
		PasswordHash:  user.PasswordHash,
		Role:          user.Role,
		Location:      user.Location,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}
}

func (m mongoUser) user() models.User {
	return models.User{
		ID:           m.ID,
		Username:     m.Username,
		NIK:          m.NIK,
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		Location:     m.Location,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type MongoUserRepository struct {
	users *mongo.Collection
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{users: db.Collection(usersCollection)}
}

func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "nik_lower", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	return nil
}

func identifierFilter(excludeID string, identifiers ...string) bson.M {
	lowered := make([]string, 0, len(identifiers))
	for _, identifier := range identifiers {
		if identifier = strings.TrimSpace(identifier); identifier != "" {
			lowered = append(lowered, strings.ToLower(identifier))
		}
	}
	filter := bson.M{
		"$or": bson.A{
			bson.M{"username_lower": bson.M{"$in": lowered}},
			bson.M{"nik_lower": bson.M{"$in": lowered}},
		},
	}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var doc mongoUser
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return doc.user(), nil
}

func (r *MongoUserRepository) List(ctx context.Context) ([]models.User, error) {
	cursor, err := r.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "username_lower", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []models.User{}
	for cursor.Next(ctx) {
		var doc mongoUser
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, doc.user())
	}
	return users, cursor.Err()
}

func (r *MongoUserRepository) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	if strings.TrimSpace(identifier) == "" {
		return models.User{}, ErrUserNotFound
	}
	return r.findOne(ctx, identifierFilter("", identifier))
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) collides(ctx context.Context, user models.User) (bool, error) {
	count, err := r.users.CountDocuments(ctx, identifierFilter(user.ID, user.Username, user.NIK), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MongoUserRepository) Add(ctx context.Context, user models.User) (models.User, error) {
	now := time.Now().UTC()
	user.ID = ids.New()
	user.CreatedAt = now
	user.UpdatedAt = now

	exists, err := r.collides(ctx, user)
	if err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, ErrDuplicateIdentifier
	}

	if _, err := r.users.InsertOne(ctx, newMongoUser(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrDuplicateIdentifier
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoUserRepository) Update(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	merged := patch.Apply(current)
	exists, err := r.collides(ctx, merged)
	if err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, ErrDuplicateIdentifier
	}
	merged.UpdatedAt = time.Now().UTC()

	result, err := r.users.ReplaceOne(ctx, bson.M{"_id": id}, newMongoUser(merged))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrDuplicateIdentifier
		}
		return models.User{}, err
	}
	if result.MatchedCount == 0 {
		return models.User{}, ErrUserNotFound
	}
	return merged, nil
}

func (r *MongoUserRepository) Delete(ctx context.Context, id string) error {
	_, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
