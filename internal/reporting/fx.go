package reporting

import (
	"errors"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/reporting/domain"
	"github.com/smallbiznis/purchasesync/internal/reporting/repository"
	"github.com/smallbiznis/purchasesync/internal/reporting/service"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrMongoNotConfigured = errors.New("mongo_not_configured")

type SinkParams struct {
	fx.In

	Config config.Config
	Holder *config.SyncConfigHolder
	Log    *zap.Logger
	DB     *gorm.DB      `optional:"true"`
	Mongo  *mongo.Client `optional:"true"`
}

func provideSink(p SinkParams) (domain.Sink, error) {
	if p.Config.ReportingStore == config.StoreMongo {
		if p.Mongo == nil {
			return nil, ErrMongoNotConfigured
		}
		return repository.NewMongoSink(p.Mongo.Database(p.Config.MongoReportingDB), p.Log, p.Holder), nil
	}
	return repository.NewSQLSink(p.DB, p.Log, p.Holder), nil
}

var Module = fx.Module("reporting.service",
	fx.Provide(provideSink),
	fx.Provide(service.New),
)
