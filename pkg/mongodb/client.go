package mongodb

import (
	"context"
	"time"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/pkg/retry"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewClient connects when MONGO_URI is set and returns nil otherwise, so
// SQL-only deployments never dial a document store.
func NewClient(p Params) (*mongo.Client, error) {
	if p.Config.MongoURI == "" {
		return nil, nil
	}
	log := p.Log.Named("mongodb")

	opts := options.Client().
		ApplyURI(p.Config.MongoURI).
		SetAppName(p.Config.AppName).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cfg := retry.DefaultConfig()
			cfg.MaxAttempts = p.Config.MongoConnectRetry
			return retry.WithBackoff(ctx, cfg, log, "mongodb.ping", func(ctx context.Context) error {
				return client.Ping(ctx, readpref.Primary())
			})
		},
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})

	log.Info("mongodb client configured",
		zap.String("source_db", p.Config.MongoSourceDB),
		zap.String("reporting_db", p.Config.MongoReportingDB),
	)
	return client, nil
}

var Module = fx.Module("mongodb",
	fx.Provide(NewClient),
)
