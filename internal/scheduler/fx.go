package scheduler

import (
	"context"
	"strings"

	"github.com/smallbiznis/purchasesync/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(StartScheduler),
)

// StartScheduler runs the loop for the lifetime of the app. An empty
// schedule leaves runs to the CLI.
func StartScheduler(lc fx.Lifecycle, holder *config.SyncConfigHolder, sched *Scheduler) {
	if strings.TrimSpace(holder.Get().Schedule) == "" {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if _, err := sched.Next(sched.clock.Now()); err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return nil
				},
			})

			return nil
		},
	})
}
