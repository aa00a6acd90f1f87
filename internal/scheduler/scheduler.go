package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/etl/service"
	"github.com/smallbiznis/purchasesync/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoSchedule = errors.New("no_schedule")

// Runner syncs every configured feed once.
type Runner interface {
	RunAll(ctx context.Context) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Holder  *config.SyncConfigHolder
	Runner  *service.Runner
	Clock   clock.Clock
	Metrics *metrics.SyncMetrics `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	holder  *config.SyncConfigHolder
	runner  Runner
	clock   clock.Clock
	metrics *metrics.SyncMetrics
}

func New(p Params) *Scheduler {
	return NewScheduler(p.Log, p.Holder, p.Runner, p.Clock, p.Metrics)
}

func NewScheduler(log *zap.Logger, holder *config.SyncConfigHolder, runner Runner, clk clock.Clock, m *metrics.SyncMetrics) *Scheduler {
	if clk == nil {
		clk = clock.System()
	}
	return &Scheduler{
		log:     log.Named("scheduler").With(zap.String("component", "scheduler")),
		holder:  holder,
		runner:  runner,
		clock:   clk,
		metrics: m,
	}
}

// Next returns the first tick strictly after t for the configured schedule.
// The schedule is read on every call so a reloaded sync config takes effect
// from the following tick.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	spec := strings.TrimSpace(s.holder.Get().Schedule)
	if spec == "" {
		return time.Time{}, ErrNoSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return schedule.Next(t), nil
}

// RunOnce performs a single pass over all feeds.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	tick := newTick(uuid.NewString(), s.clock.Now())
	s.logTickStart(ctx, tick)
	err := s.runner.RunAll(ctx)
	s.logTickFinish(ctx, tick, err)
	return err
}

// RunForever fires RunOnce on every schedule tick until ctx is done. Ticks
// missed while a pass is still running are skipped, not queued.
func (s *Scheduler) RunForever(ctx context.Context) {
	for {
		now := s.clock.Now()
		next, err := s.Next(now)
		if err != nil {
			s.log.Error("scheduler.schedule_invalid", zap.Error(err))
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.metrics.ObserveRunLoopLag(s.clock.Now().Sub(next))
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}
