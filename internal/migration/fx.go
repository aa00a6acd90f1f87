package migration

import (
	"github.com/smallbiznis/purchasesync/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB `optional:"true"`
	Holder *config.SyncConfigHolder
}

var Module = fx.Module("migrations",
	fx.Invoke(func(p Params) error {
		if p.DB == nil {
			return nil
		}
		return Migrate(p.DB, p.Holder.Get().Tables.Checkpoints)
	}),
)
