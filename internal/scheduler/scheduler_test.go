package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/observability/metrics"
	"go.uber.org/zap"
)

type countingRunner struct {
	calls  atomic.Int32
	err    error
	onCall func()
}

func (r *countingRunner) RunAll(context.Context) error {
	r.calls.Add(1)
	if r.onCall != nil {
		r.onCall()
	}
	return r.err
}

func newScheduler(t *testing.T, schedule string, runner Runner, clk clock.Clock) *Scheduler {
	t.Helper()
	cfg := config.DefaultSyncConfig()
	cfg.Schedule = schedule
	m := metrics.NewForRegistry(prometheus.NewRegistry(), metrics.Config{})
	return NewScheduler(zap.NewNop(), config.NewStaticSyncConfigHolder(cfg), runner, clk, m)
}

func TestNextFollowsSchedule(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)

	cases := []struct {
		schedule string
		want     time.Time
	}{
		{schedule: "*/15 * * * *", want: time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)},
		{schedule: "0 2 * * *", want: time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)},
		{schedule: "@every 1h", want: base.Add(time.Hour)},
	}

	for _, tc := range cases {
		t.Run(tc.schedule, func(t *testing.T) {
			s := newScheduler(t, tc.schedule, &countingRunner{}, nil)
			got, err := s.Next(base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestNextRejectsBadSchedule(t *testing.T) {
	s := newScheduler(t, "every now and then", &countingRunner{}, nil)
	if _, err := s.Next(time.Now()); err == nil {
		t.Fatalf("expected parse error")
	}

	s = newScheduler(t, "", &countingRunner{}, nil)
	if _, err := s.Next(time.Now()); !errors.Is(err, ErrNoSchedule) {
		t.Fatalf("expected ErrNoSchedule, got %v", err)
	}
}

func TestRunOncePropagatesRunnerError(t *testing.T) {
	boom := errors.New("boom")
	runner := &countingRunner{err: boom}
	s := newScheduler(t, "@every 1m", runner, clock.NewFakeClock(time.Now()))

	if err := s.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected runner error, got %v", err)
	}
	if runner.calls.Load() != 1 {
		t.Fatalf("expected one pass, got %d", runner.calls.Load())
	}
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &countingRunner{onCall: cancel}
	s := newScheduler(t, "@every 1s", runner, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("scheduler did not stop")
	}
	if runner.calls.Load() != 1 {
		t.Fatalf("expected one pass before cancel, got %d", runner.calls.Load())
	}
}

func TestRunForeverReturnsOnInvalidSchedule(t *testing.T) {
	runner := &countingRunner{}
	s := newScheduler(t, "not a schedule", runner, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunForever(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected loop to exit")
	}
	if runner.calls.Load() != 0 {
		t.Fatalf("expected no passes, got %d", runner.calls.Load())
	}
}
