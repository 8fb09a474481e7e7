package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/avvvet/gate-services/internal/gatesvc/models"
)

// AuditStore appends gate decisions to a MongoDB collection. Documents expire
// through the TTL index on expires_at.
type AuditStore struct {
	coll      *mongo.Collection
	retention time.Duration
}

func NewAuditStore(db *mongo.Database, collection string, retention time.Duration) *AuditStore {
	return &AuditStore{coll: db.Collection(collection), retention: retention}
}

func (s *AuditStore) Record(ctx context.Context, ev models.AccessEvent) error {
	if ev.DecidedAt.IsZero() {
		ev.DecidedAt = time.Now().UTC()
	}
	if ev.ExpiresAt.IsZero() && s.retention > 0 {
		ev.ExpiresAt = ev.DecidedAt.Add(s.retention)
	}

	if _, err := s.coll.InsertOne(ctx, ev); err != nil {
		return Wrap("audit record", err)
	}
	return nil
}

// Recent returns the newest events first. An empty cardID means all cards.
func (s *AuditStore) Recent(ctx context.Context, cardID string, limit int) ([]models.AccessEvent, error) {
	filter := bson.M{}
	if cardID != "" {
		filter["card_id"] = cardID
	}

	opts := options.Find().SetSort(bson.D{{Key: "decided_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, Wrap("audit recent", err)
	}
	defer cur.Close(ctx)

	var events []models.AccessEvent
	if err := cur.All(ctx, &events); err != nil {
		return nil, Wrap("audit recent", err)
	}
	return events, nil
}
