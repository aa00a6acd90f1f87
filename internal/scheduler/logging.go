package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/purchasesync/internal/observability/logger"
	"go.uber.org/zap"
)

type tick struct {
	id        string
	startedAt time.Time
}

func newTick(id string, at time.Time) *tick {
	return &tick{id: id, startedAt: at}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.log)
}

func (s *Scheduler) logTickStart(ctx context.Context, t *tick) {
	s.logger(ctx).Info("scheduler.tick.start",
		zap.String("tick_id", t.id),
		zap.Strings("feeds", s.holder.Get().Feeds),
	)
}

func (s *Scheduler) logTickFinish(ctx context.Context, t *tick, err error) {
	fields := []zap.Field{
		zap.String("tick_id", t.id),
		zap.Int64("duration_ms", s.clock.Now().Sub(t.startedAt).Milliseconds()),
	}
	log := s.logger(ctx)
	if err != nil {
		log.Warn("scheduler.tick.finish", append(fields, zap.Error(err))...)
		return
	}
	log.Info("scheduler.tick.finish", fields...)
}
