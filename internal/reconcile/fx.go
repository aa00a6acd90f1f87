package reconcile

import (
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/reconcile/domain"
	"github.com/smallbiznis/purchasesync/internal/reconcile/repository"
	"github.com/smallbiznis/purchasesync/internal/reconcile/service"
	"github.com/smallbiznis/purchasesync/internal/reporting"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type RepositoryParams struct {
	fx.In

	Config config.Config
	Holder *config.SyncConfigHolder
	DB     *gorm.DB      `optional:"true"`
	Mongo  *mongo.Client `optional:"true"`
}

// provideRepository reads from wherever the loader writes facts.
func provideRepository(p RepositoryParams) (domain.Repository, error) {
	if p.Config.ReportingStore == config.StoreMongo {
		if p.Mongo == nil {
			return nil, reporting.ErrMongoNotConfigured
		}
		return repository.NewMongoRepository(
			p.Mongo.Database(p.Config.MongoReportingDB),
			p.Mongo.Database(p.Config.MongoSourceDB),
			p.Holder,
		), nil
	}
	return repository.NewSQLRepository(p.DB, p.Holder), nil
}

var Module = fx.Module("reconcile.service",
	fx.Provide(provideRepository),
	fx.Provide(service.New),
)
