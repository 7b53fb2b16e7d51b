package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"hospital-portal/models"
)

const colUsers = "users"

type userDoc struct {
	Token           string `bson:"token"`
	models.Identity `bson:",inline"`
}

// Mongo resolves tokens against the portal's users collection.
type Mongo struct {
	users   *mongo.Collection
	timeout time.Duration
}

// NewMongo returns a resolver over db's users collection.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{users: db.Collection(colUsers), timeout: 5 * time.Second}
}

// Migrate creates the unique token index.
func (m *Mongo) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"token": 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("auth: create users token index: %w", err)
	}
	return nil
}

// Resolve looks up the user owning token.
func (m *Mongo) Resolve(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, ErrUnauthenticated
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var doc userDoc
	err := m.users.FindOne(ctx, bson.M{"token": token}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Identity{}, ErrUnauthenticated
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("auth: find user: %w", err)
	}
	if _, err := parseRole(string(doc.Role)); err != nil {
		return models.Identity{}, ErrUnauthenticated
	}
	return doc.Identity, nil
}
