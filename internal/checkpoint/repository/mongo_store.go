package repository

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStore struct {
	db     *mongo.Database
	clock  clock.Clock
	holder *config.SyncConfigHolder
}

// NewMongoStore keeps checkpoints as {_id: feed, last_run, updated_at}.
func NewMongoStore(db *mongo.Database, clk clock.Clock, holder *config.SyncConfigHolder) domain.Store {
	return &mongoStore{db: db, clock: clk, holder: holder}
}

func (s *mongoStore) coll() *mongo.Collection {
	return s.db.Collection(s.holder.Get().Tables.Checkpoints)
}

func (s *mongoStore) Get(ctx context.Context, feed string) (*time.Time, error) {
	if feed == "" {
		return nil, domain.ErrInvalidFeed
	}
	raw, err := s.coll().FindOne(ctx, bson.D{{Key: "_id", Value: feed}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return mongodb.Time(mongodb.Lookup(raw, "last_run")), nil
}

func (s *mongoStore) Set(ctx context.Context, feed string, at time.Time) error {
	if feed == "" {
		return domain.ErrInvalidFeed
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "last_run", Value: at.UTC()},
		{Key: "updated_at", Value: s.clock.Now().UTC()},
	}}}
	_, err := s.coll().UpdateOne(ctx, bson.D{{Key: "_id", Value: feed}}, update, options.Update().SetUpsert(true))
	return err
}

func (s *mongoStore) Reset(ctx context.Context, feed string) error {
	if feed == "" {
		return domain.ErrInvalidFeed
	}
	_, err := s.coll().DeleteOne(ctx, bson.D{{Key: "_id", Value: feed}})
	return err
}
