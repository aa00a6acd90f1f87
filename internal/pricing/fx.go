package pricing

import (
	"errors"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	"github.com/smallbiznis/purchasesync/internal/pricing/repository"
	"github.com/smallbiznis/purchasesync/internal/pricing/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var ErrMongoNotConfigured = errors.New("mongo_not_configured")

type RepositoryParams struct {
	fx.In

	Config config.Config
	Holder *config.SyncConfigHolder
	DB     *gorm.DB      `optional:"true"`
	Mongo  *mongo.Client `optional:"true"`
}

func provideRepository(p RepositoryParams) (domain.RuleRepository, error) {
	if p.Config.SourceStore == config.StoreMongo {
		if p.Mongo == nil {
			return nil, ErrMongoNotConfigured
		}
		return repository.NewMongoRepository(p.Mongo.Database(p.Config.MongoSourceDB), p.Holder), nil
	}
	return repository.NewSQLRepository(p.DB, p.Holder), nil
}

var Module = fx.Module("pricing.service",
	fx.Provide(provideRepository),
	fx.Provide(service.New),
)
