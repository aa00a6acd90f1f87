package purchase

import (
	"errors"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/smallbiznis/purchasesync/internal/purchase/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var ErrMongoNotConfigured = errors.New("mongo_not_configured")

type SourceParams struct {
	fx.In

	Config config.Config
	DB     *gorm.DB      `optional:"true"`
	Mongo  *mongo.Client `optional:"true"`
}

func provideSource(p SourceParams) (domain.Source, error) {
	if p.Config.SourceStore == config.StoreMongo {
		if p.Mongo == nil {
			return nil, ErrMongoNotConfigured
		}
		return repository.NewMongoSource(p.Mongo.Database(p.Config.MongoSourceDB)), nil
	}
	return repository.NewSQLSource(p.DB), nil
}

var Module = fx.Module("purchase.repository",
	fx.Provide(provideSource),
)
