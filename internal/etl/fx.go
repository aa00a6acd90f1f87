package etl

import (
	"github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/internal/etl/repository"
	"github.com/smallbiznis/purchasesync/internal/etl/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type RunRepositoryParams struct {
	fx.In

	DB *gorm.DB `optional:"true"`
}

// provideRunRepository returns nil without a SQL database; the runner then
// skips the ledger.
func provideRunRepository(p RunRepositoryParams) domain.RunRepository {
	if p.DB == nil {
		return nil
	}
	return repository.NewRunRepository(p.DB)
}

var Module = fx.Module("etl.service",
	fx.Provide(provideRunRepository),
	fx.Provide(service.New),
)
