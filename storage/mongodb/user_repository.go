// Package mongodb implements the user persistence surface on MongoDB.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"go.aldar.dev/ariagate/domain"
)

const usersCollection = "users"

// UserRepository stores users in a MongoDB collection. Refresh-token
// rotation is serialized per user with a compare-and-swap on the stored
// ciphertext rather than a lock, so concurrent rotations resolve without
// blocking each other.
type UserRepository struct {
	users *mongo.Collection
}

// Connect dials MongoDB with OpenTelemetry command monitoring and
// verifies the connection with a primary ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}
	return client, nil
}

func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	repo := &UserRepository{users: db.Collection(usersCollection)}

	_, err := repo.users.Indexes().CreateOne(ctx, emailIndexModel())
	if err != nil {
		return nil, fmt.Errorf("failed to create email index: %w", err)
	}
	return repo, nil
}

// emailIndexModel enforces email uniqueness only for records that carry
// one. Tokens without an email claim are valid, so those records must
// not collide on the index.
func emailIndexModel() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}}),
	}
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", id, err)
	}
	return &user, nil
}

// UpsertUser creates or refreshes the user record at login time, keyed by
// the provider subject id.
func (r *UserRepository) UpsertUser(ctx context.Context, user *domain.User) error {
	update := upsertUserUpdate(user, time.Now().UTC())
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": user.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.ID, err)
	}
	return nil
}

// upsertUserUpdate leaves the stored email untouched when the incoming
// record has none, so a later login without an email claim cannot blank
// a known address.
func upsertUserUpdate(user *domain.User, now time.Time) bson.M {
	set := bson.M{
		"display_name": user.DisplayName,
		"updated_at":   now,
	}
	if user.Email != "" {
		set["email"] = user.Email
	}
	return bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
}

// RotateRefreshToken swaps the stored ciphertext only when it still equals
// oldCiphertext. Returning false means a concurrent rotation already put a
// newer token on file and this one must be discarded.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, userID, oldCiphertext, newCiphertext string) (bool, error) {
	filter := bson.M{
		"_id":                     userID,
		"encrypted_refresh_token": oldCiphertext,
	}
	update := bson.M{
		"$set": bson.M{
			"encrypted_refresh_token": newCiphertext,
			"updated_at":              time.Now().UTC(),
		},
	}

	res := r.users.FindOneAndUpdate(ctx, filter, update)
	if res.Err() == mongo.ErrNoDocuments {
		return false, nil
	}
	if res.Err() != nil {
		return false, fmt.Errorf("failed to rotate refresh token for user %s: %w", userID, res.Err())
	}
	return true, nil
}

func (r *UserRepository) SetRefreshToken(ctx context.Context, userID, ciphertext string) error {
	update := bson.M{
		"$set": bson.M{
			"encrypted_refresh_token": ciphertext,
			"updated_at":              time.Now().UTC(),
		},
	}
	_, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to store refresh token for user %s: %w", userID, err)
	}
	return nil
}
