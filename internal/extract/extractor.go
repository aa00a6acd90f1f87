// Package extract pulls the incremental slice of a purchase feed.
package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/purchasesync/internal/config"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Source purchasedomain.Source
	Holder *config.SyncConfigHolder
}

type Extractor struct {
	log    *zap.Logger
	source purchasedomain.Source
	holder *config.SyncConfigHolder
}

func New(p Params) *Extractor {
	return &Extractor{
		log:    p.Log.Named("extract.extractor"),
		source: p.Source,
		holder: p.Holder,
	}
}

// Batch is one extraction. Since is nil for a full load.
type Batch struct {
	Feed         string
	Since        *time.Time
	Records      []purchasedomain.Purchase
	MaxCreatedAt *time.Time
}

// WindowStart is the lower created_at bound for a run: the checkpoint moved
// back by the reprocessing window, or nil when there is no checkpoint.
func WindowStart(checkpoint *time.Time, window time.Duration) *time.Time {
	if checkpoint == nil {
		return nil
	}
	start := checkpoint.UTC().Add(-window)
	return &start
}

// Extract reads non-deleted purchases created at or after the window start.
func (e *Extractor) Extract(ctx context.Context, feed string, checkpoint *time.Time) (Batch, error) {
	cfg := e.holder.Get()
	since := WindowStart(checkpoint, cfg.ReprocessWindow)

	records, err := e.source.Find(ctx, feed, purchasedomain.Filter{
		CreatedSince: since,
		BatchSize:    cfg.ExtractBatchSize,
	})
	if err != nil {
		return Batch{}, fmt.Errorf("extract %s: %w", feed, err)
	}

	batch := Batch{Feed: feed, Since: since, Records: records[:0]}
	for _, rec := range records {
		if rec.DeletedAt != nil {
			continue
		}
		batch.Records = append(batch.Records, rec)
		if rec.CreatedAt != nil && (batch.MaxCreatedAt == nil || rec.CreatedAt.After(*batch.MaxCreatedAt)) {
			created := rec.CreatedAt.UTC()
			batch.MaxCreatedAt = &created
		}
	}

	fields := []zap.Field{zap.String("feed", feed), zap.Int("records", len(batch.Records))}
	if since != nil {
		fields = append(fields, zap.Time("since", *since))
	} else {
		fields = append(fields, zap.Bool("full_load", true))
	}
	e.log.Info("extract.batch", fields...)
	return batch, nil
}
