package checkpoint

import (
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/smallbiznis/purchasesync/internal/checkpoint/repository"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	ErrMongoNotConfigured = errors.New("mongo_not_configured")
	ErrRedisNotConfigured = errors.New("redis_not_configured")
)

type StoreParams struct {
	fx.In

	Config config.Config
	Holder *config.SyncConfigHolder
	Clock  clock.Clock
	DB     *gorm.DB      `optional:"true"`
	Mongo  *mongo.Client `optional:"true"`
	Redis  *redis.Client `optional:"true"`
}

func provideStore(p StoreParams) (domain.Store, error) {
	switch p.Config.CheckpointStore {
	case config.StoreRedis:
		if p.Redis == nil {
			return nil, ErrRedisNotConfigured
		}
		return repository.NewRedisStore(p.Redis), nil
	case config.StoreMongo:
		if p.Mongo == nil {
			return nil, ErrMongoNotConfigured
		}
		return repository.NewMongoStore(p.Mongo.Database(p.Config.MongoReportingDB), p.Clock, p.Holder), nil
	default:
		return repository.NewSQLStore(p.DB, p.Clock, p.Holder), nil
	}
}

var Module = fx.Module("checkpoint.repository",
	fx.Provide(provideStore),
)
