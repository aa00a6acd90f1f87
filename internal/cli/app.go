package cli

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/purchasesync/internal/checkpoint"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/dimension"
	"github.com/smallbiznis/purchasesync/internal/enrich"
	"github.com/smallbiznis/purchasesync/internal/etl"
	"github.com/smallbiznis/purchasesync/internal/extract"
	"github.com/smallbiznis/purchasesync/internal/migration"
	"github.com/smallbiznis/purchasesync/internal/observability"
	"github.com/smallbiznis/purchasesync/internal/pricing"
	"github.com/smallbiznis/purchasesync/internal/purchase"
	"github.com/smallbiznis/purchasesync/internal/reconcile"
	"github.com/smallbiznis/purchasesync/internal/reporting"
	"github.com/smallbiznis/purchasesync/internal/runlock"
	"github.com/smallbiznis/purchasesync/pkg/db"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"github.com/smallbiznis/purchasesync/pkg/redis"
	"go.uber.org/fx"
)

const startTimeout = time.Minute

// Modules is the full sync engine without the scheduler or ops server.
func Modules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		mongodb.Module,
		redis.Module,
		clock.Module,
		migration.Module,
		runlock.Module,

		purchase.Module,
		dimension.Module,
		pricing.Module,
		extract.Module,
		enrich.Module,
		reporting.Module,
		checkpoint.Module,
		etl.Module,
		reconcile.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// withApp starts a short-lived app, populates targets, runs fn and stops
// the app again.
func withApp(ctx context.Context, fn func(context.Context) error, targets ...any) error {
	app := fx.New(
		Modules(),
		fx.NopLogger,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), startTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx)
}
