package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectToDB connects to the database named in the URI path, e.g.
// mongodb://localhost:27017/gate. Disconnect the returned client on shutdown.
func ConnectToDB(ctx context.Context, mongoURI string) (*mongo.Client, *mongo.Database, error) {
	uri, err := url.Parse(mongoURI)
	if err != nil {
		return nil, nil, fmt.Errorf("parse MongoDB URI: %w", err)
	}

	dbName := strings.TrimPrefix(uri.Path, "/")
	if dbName == "" {
		dbName = "gate"
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return client, client.Database(dbName), nil
}

// CreateTTLIndexForCollection expires documents at their expires_at value.
func CreateTTLIndexForCollection(ctx context.Context, db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	indexModel := mongo.IndexModel{
		Keys:    bson.M{"expires_at": 1},
		Options: options.Index().SetExpireAfterSeconds(0), // expire at the stored time
	}

	if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("create TTL index on %s: %w", collectionName, err)
	}
	return nil
}

// CreateCardIndex supports per-card lookups of recent decisions.
func CreateCardIndex(ctx context.Context, db *mongo.Database, collectionName string) error {
	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "card_id", Value: 1}, {Key: "decided_at", Value: -1}},
	}
	if _, err := db.Collection(collectionName).Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("create card index on %s: %w", collectionName, err)
	}
	return nil
}
