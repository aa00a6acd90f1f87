package redis

import (
	"context"

	goredis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/purchasesync/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewClient returns nil when REDIS_ADDR is unset. Consumers treat a nil
// client as "feature off".
func NewClient(p Params) *goredis.Client {
	if p.Config.RedisAddr == "" {
		return nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     p.Config.RedisAddr,
		Password: p.Config.RedisPassword,
		DB:       p.Config.RedisDB,
	})

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	p.Log.Named("redis").Info("redis client configured", zap.String("addr", p.Config.RedisAddr), zap.Int("db", p.Config.RedisDB))
	return client
}

var Module = fx.Module("redis",
	fx.Provide(NewClient),
)
