package dimension

import (
	"errors"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/dimension/domain"
	"github.com/smallbiznis/purchasesync/internal/dimension/repository"
	"github.com/smallbiznis/purchasesync/internal/dimension/service"
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

// Reference tables live next to the purchases, so they follow SOURCE_STORE.
func provideRepository(p RepositoryParams) (domain.Repository, error) {
	if p.Config.SourceStore == config.StoreMongo {
		if p.Mongo == nil {
			return nil, ErrMongoNotConfigured
		}
		return repository.NewMongoRepository(p.Mongo.Database(p.Config.MongoSourceDB), p.Holder), nil
	}
	return repository.NewSQLRepository(p.DB, p.Holder), nil
}

var Module = fx.Module("dimension.service",
	fx.Provide(provideRepository),
	fx.Provide(service.New),
)
