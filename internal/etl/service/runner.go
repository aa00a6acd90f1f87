package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"
	checkpointdomain "github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/smallbiznis/purchasesync/internal/clock"
	"github.com/smallbiznis/purchasesync/internal/config"
	dimensiondomain "github.com/smallbiznis/purchasesync/internal/dimension/domain"
	dimensionservice "github.com/smallbiznis/purchasesync/internal/dimension/service"
	"github.com/smallbiznis/purchasesync/internal/enrich"
	"github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/internal/extract"
	"github.com/smallbiznis/purchasesync/internal/observability/logger"
	"github.com/smallbiznis/purchasesync/internal/observability/metrics"
	"github.com/smallbiznis/purchasesync/internal/observability/tracing"
	pricingdomain "github.com/smallbiznis/purchasesync/internal/pricing/domain"
	pricingservice "github.com/smallbiznis/purchasesync/internal/pricing/service"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	reportingdomain "github.com/smallbiznis/purchasesync/internal/reporting/domain"
	reportingservice "github.com/smallbiznis/purchasesync/internal/reporting/service"
	"github.com/smallbiznis/purchasesync/internal/runlock"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrRunInProgress means another process holds the feed lock.
var ErrRunInProgress = errors.New("run_in_progress")

type Extractor interface {
	Extract(ctx context.Context, feed string, checkpoint *time.Time) (extract.Batch, error)
}

type SnapshotLoader interface {
	Load(ctx context.Context) (*dimensiondomain.Snapshot, error)
}

type Enricher interface {
	Enrich(feed string, snapshot *dimensiondomain.Snapshot, purchases []purchasedomain.Purchase) ([]*purchasedomain.EnrichedPurchase, enrich.Stats)
}

type Pricer interface {
	LoadBook(ctx context.Context) (*pricingservice.Book, error)
	Attach(ctx context.Context, book *pricingservice.Book, records []*purchasedomain.EnrichedPurchase) (pricingservice.Summary, error)
}

type Loader interface {
	Load(ctx context.Context, feed string, records []*purchasedomain.EnrichedPurchase) (reportingdomain.Result, error)
}

type Locker interface {
	Acquire(ctx context.Context, feed string) (func(context.Context) error, bool, error)
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Holder      *config.SyncConfigHolder
	Clock       clock.Clock
	GenID       *snowflake.Node
	Metrics     *metrics.SyncMetrics `optional:"true"`
	Extractor   *extract.Extractor
	Dimensions  *dimensionservice.Service
	Enricher    *enrich.Enricher
	Pricing     *pricingservice.Service
	Loader      *reportingservice.Loader
	Checkpoints checkpointdomain.Store
	Runs        domain.RunRepository `optional:"true"`
	Locker      *runlock.Locker
}

// Deps are the collaborators of a Runner.
type Deps struct {
	Log         *zap.Logger
	Holder      *config.SyncConfigHolder
	Clock       clock.Clock
	GenID       *snowflake.Node
	Metrics     *metrics.SyncMetrics
	Extractor   Extractor
	Dimensions  SnapshotLoader
	Enricher    Enricher
	Pricing     Pricer
	Loader      Loader
	Checkpoints checkpointdomain.Store
	Runs        domain.RunRepository
	Locker      Locker
}

type Runner struct {
	Deps
}

func New(p Params) *Runner {
	return NewRunner(Deps{
		Log:         p.Log,
		Holder:      p.Holder,
		Clock:       p.Clock,
		GenID:       p.GenID,
		Metrics:     p.Metrics,
		Extractor:   p.Extractor,
		Dimensions:  p.Dimensions,
		Enricher:    p.Enricher,
		Pricing:     p.Pricing,
		Loader:      p.Loader,
		Checkpoints: p.Checkpoints,
		Runs:        p.Runs,
		Locker:      p.Locker,
	})
}

func NewRunner(d Deps) *Runner {
	d.Log = d.Log.Named("etl.runner")
	if d.Clock == nil {
		d.Clock = clock.System()
	}
	return &Runner{Deps: d}
}

// RunAll syncs every configured feed in order. A feed locked by another
// process is skipped; other failures are collected.
func (r *Runner) RunAll(ctx context.Context) error {
	var errs error
	for _, feed := range r.Holder.Get().Feeds {
		if ctx.Err() != nil {
			return errors.Join(errs, ctx.Err())
		}
		if _, err := r.Run(ctx, feed); err != nil && !errors.Is(err, ErrRunInProgress) {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", feed, err))
		}
	}
	return errs
}

// Run performs one pass of extract, enrich, price and load for feed. The
// checkpoint only moves after every record has been written, and never
// moves backwards.
func (r *Runner) Run(parent context.Context, feed string) (*domain.Run, error) {
	if feed == "" {
		return nil, domain.ErrInvalidFeed
	}
	cfg := r.Holder.Get()
	if !cfg.HasFeed(feed) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFeed, feed)
	}

	release, ok, err := r.Locker.Acquire(parent, feed)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		r.Metrics.IncRunDeferred(feed, metrics.RunDeferredReasonLockHeld)
		r.Log.Info("etl.run.deferred", zap.String("feed", feed), zap.String("reason", metrics.RunDeferredReasonLockHeld))
		return nil, ErrRunInProgress
	}
	defer func() {
		if err := release(context.WithoutCancel(parent)); err != nil {
			r.Log.Warn("etl.run.lock_release_failed", zap.String("feed", feed), zap.Error(err))
		}
	}()

	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := &domain.Run{
		ID:        r.GenID.Generate(),
		Feed:      feed,
		Status:    domain.RunStatusRunning,
		StartedAt: r.Clock.Now(),
	}
	ctx = logger.WithRun(ctx, feed, run.ID.String())
	ctx, span := tracing.Start(ctx, "etl.run", attribute.String("feed", feed), attribute.String("run_id", run.ID.String()))
	log := logger.WithContext(ctx, r.Log)

	r.record(ctx, log, run, true)
	log.Info("etl.run.start")
	started := time.Now()

	err = r.execute(ctx, log, run)
	r.finish(ctx, log, run, err, time.Since(started))
	tracing.End(span, err)
	return run, err
}

func (r *Runner) execute(ctx context.Context, log *zap.Logger, run *domain.Run) error {
	feed := run.Feed
	details := domain.RunDetails{}

	checkpoint, err := r.Checkpoints.Get(ctx, feed)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	run.CheckpointBefore = checkpoint

	var batch extract.Batch
	err = r.stage(ctx, feed, metrics.StageExtract, func(ctx context.Context) (err error) {
		batch, err = r.Extractor.Extract(ctx, feed, checkpoint)
		return err
	})
	if err != nil {
		return err
	}
	run.WindowStart = batch.Since
	run.Extracted = len(batch.Records)
	r.Metrics.AddRecords(feed, metrics.StageExtract, len(batch.Records))
	if len(batch.Records) == 0 {
		run.Status = domain.RunStatusEmpty
		return nil
	}

	var records []*purchasedomain.EnrichedPurchase
	err = r.stage(ctx, feed, metrics.StageEnrich, func(ctx context.Context) error {
		snapshot, err := r.Dimensions.Load(ctx)
		if err != nil {
			return err
		}
		var stats enrich.Stats
		records, stats = r.Enricher.Enrich(feed, snapshot, batch.Records)
		details.InvalidIdentifiers = stats.InvalidIdentifiers
		return nil
	})
	if err != nil {
		return err
	}
	r.Metrics.AddRecords(feed, metrics.StageEnrich, len(records))

	var summary pricingservice.Summary
	err = r.stage(ctx, feed, metrics.StagePrice, func(ctx context.Context) error {
		book, err := r.Pricing.LoadBook(ctx)
		if err != nil {
			return err
		}
		summary, err = r.Pricing.Attach(ctx, book, records)
		return err
	})
	if err != nil {
		return err
	}
	r.recordPricing(run, &details, summary)
	r.Metrics.AddRecords(feed, metrics.StagePrice, len(records))

	var result reportingdomain.Result
	loadErr := r.stage(ctx, feed, metrics.StageLoad, func(ctx context.Context) (err error) {
		result, err = r.Loader.Load(ctx, feed, records)
		return err
	})
	r.recordLoad(run, &details, result)
	run.Details = encodeDetails(log, details)
	if loadErr != nil {
		if errors.Is(loadErr, reportingdomain.ErrPartialLoad) {
			run.Status = domain.RunStatusPartial
		}
		return loadErr
	}

	run.Status = domain.RunStatusSuccess
	if result.Loaded() == 0 {
		log.Warn("etl.run.checkpoint_kept", zap.String("reason", "nothing_loaded"), zap.Int("dropped", result.Dropped))
		return nil
	}
	return r.advanceCheckpoint(ctx, feed, run, batch.MaxCreatedAt)
}

// advanceCheckpoint re-reads the stored checkpoint so that a run which
// started from an older value cannot overwrite a newer one.
func (r *Runner) advanceCheckpoint(ctx context.Context, feed string, run *domain.Run, next *time.Time) error {
	latest, err := r.Checkpoints.Get(ctx, feed)
	if err != nil {
		return fmt.Errorf("read checkpoint: %w", err)
	}
	if !advance(latest, next) {
		return nil
	}
	if err := r.Checkpoints.Set(ctx, feed, *next); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	run.CheckpointAfter = next
	r.Metrics.SetCheckpoint(feed, *next)
	return nil
}

// advance reports whether next moves the checkpoint forward.
func advance(current, next *time.Time) bool {
	if next == nil {
		return false
	}
	return current == nil || next.After(*current)
}

func (r *Runner) stage(ctx context.Context, feed, name string, fn func(context.Context) error) error {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "etl."+name, attribute.String("feed", feed))
	err := fn(ctx)
	tracing.End(span, err)
	r.Metrics.ObserveStage(feed, name, time.Since(started))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (r *Runner) recordPricing(run *domain.Run, details *domain.RunDetails, summary pricingservice.Summary) {
	run.PriceExisting = summary.Existing
	run.PriceCurrent = summary.Current
	run.PriceArchived = summary.Archived
	run.Unresolved = summary.UnresolvedTotal()

	r.Metrics.AddPriceOutcome(run.Feed, string(pricingdomain.SourceExisting), "", summary.Existing)
	r.Metrics.AddPriceOutcome(run.Feed, string(pricingdomain.SourceCurrent), "", summary.Current)
	r.Metrics.AddPriceOutcome(run.Feed, string(pricingdomain.SourceArchived), "", summary.Archived)
	if len(summary.Unresolved) > 0 {
		details.UnresolvedByReason = make(map[string]int, len(summary.Unresolved))
	}
	for reason, n := range summary.Unresolved {
		details.UnresolvedByReason[string(reason)] = n
		r.Metrics.AddPriceOutcome(run.Feed, "", string(reason), n)
	}
}

func (r *Runner) recordLoad(run *domain.Run, details *domain.RunDetails, res reportingdomain.Result) {
	run.Matched = res.Matched
	run.Inserted = res.Inserted
	run.Updated = res.Updated
	run.Unchanged = res.Unchanged
	run.Failed = res.Failed
	run.Dropped = res.Dropped
	for _, e := range res.Errors {
		details.FailedIDs = append(details.FailedIDs, e.ID)
	}
	slices.Sort(details.FailedIDs)

	r.Metrics.AddRecords(run.Feed, metrics.StageLoad, res.Loaded())
	r.Metrics.AddLoadOutcome(run.Feed, "inserted", res.Inserted)
	r.Metrics.AddLoadOutcome(run.Feed, "updated", res.Updated)
	r.Metrics.AddLoadOutcome(run.Feed, "unchanged", res.Unchanged)
	r.Metrics.AddLoadOutcome(run.Feed, "failed", res.Failed)
	r.Metrics.AddLoadOutcome(run.Feed, "dropped", res.Dropped)
}

func (r *Runner) finish(ctx context.Context, log *zap.Logger, run *domain.Run, err error, elapsed time.Duration) {
	finished := r.Clock.Now()
	run.FinishedAt = &finished
	if err != nil {
		if run.Status == domain.RunStatusRunning {
			run.Status = domain.RunStatusFailed
		}
		msg := err.Error()
		run.Error = &msg
		r.Metrics.IncRunError(run.Feed, err)
	}

	r.Metrics.IncRun(run.Feed, string(run.Status))
	r.Metrics.ObserveRunDuration(run.Feed, elapsed)
	r.record(ctx, log, run, false)

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("extracted", run.Extracted),
		zap.Int("inserted", run.Inserted),
		zap.Int("updated", run.Updated),
		zap.Int("unchanged", run.Unchanged),
		zap.Int("failed", run.Failed),
		zap.Int("unresolved", run.Unresolved),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if run.CheckpointAfter != nil {
		fields = append(fields, zap.Time("checkpoint", *run.CheckpointAfter))
	}
	if err != nil {
		fields = append(fields,
			zap.String("error_type", metrics.ClassifyRunReason(err)),
			zap.Bool("retryable", metrics.IsRetryable(err)),
			zap.Error(err),
		)
		log.Warn("etl.run.finish", fields...)
		return
	}
	log.Info("etl.run.finish", fields...)
}

// record writes the run to the ledger. Ledger failures are logged and never
// fail the sync itself.
func (r *Runner) record(ctx context.Context, log *zap.Logger, run *domain.Run, create bool) {
	if r.Runs == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var err error
	if create {
		err = r.Runs.Create(writeCtx, run)
	} else {
		err = r.Runs.Finish(writeCtx, run)
	}
	if err != nil {
		log.Warn("etl.run.ledger_write_failed", zap.Bool("create", create), zap.Error(err))
	}
}

func encodeDetails(log *zap.Logger, details domain.RunDetails) []byte {
	payload, err := json.Marshal(details)
	if err != nil {
		log.Warn("etl.run.details_encode_failed", zap.Error(err))
		return nil
	}
	return payload
}
