package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/clock"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/smallbiznis/purchasesync/internal/reporting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	Sink  domain.Sink
	Clock clock.Clock
}

type Loader struct {
	log   *zap.Logger
	sink  domain.Sink
	clock clock.Clock
}

func New(p Params) *Loader {
	return &Loader{
		log:   p.Log.Named("reporting.loader"),
		sink:  p.Sink,
		clock: p.Clock,
	}
}

// Load prepares records for the reporting store and upserts them. When any
// record fails to persist the result is returned together with
// ErrPartialLoad so the caller keeps its checkpoint.
func (l *Loader) Load(ctx context.Context, feed string, records []*purchasedomain.EnrichedPurchase) (domain.Result, error) {
	if feed == "" {
		return domain.Result{}, domain.ErrInvalidFeed
	}

	prepared, dropped, err := Prepare(records, l.clock.Now())
	if err != nil {
		return domain.Result{}, err
	}
	if dropped > 0 {
		l.log.Warn("reporting.load.dropped_records", zap.String("feed", feed), zap.Int("count", dropped))
	}
	if len(prepared) == 0 {
		return domain.Result{Dropped: dropped}, nil
	}

	res, err := l.sink.Upsert(ctx, feed, prepared)
	res.Dropped += dropped
	if err != nil {
		return res, fmt.Errorf("upsert %s: %w", feed, err)
	}

	if res.Failed > 0 {
		for i, recErr := range res.Errors {
			if i == 10 {
				l.log.Warn("reporting.load.more_failures", zap.Int("remaining", len(res.Errors)-i))
				break
			}
			l.log.Warn("reporting.load.record_failed", zap.String("feed", feed), zap.String("id", recErr.ID), zap.Error(recErr.Err))
		}
		return res, fmt.Errorf("%w: %d of %d records failed: %w", domain.ErrPartialLoad, res.Failed, len(prepared), errors.Join(errsOf(res.Errors, 3)...))
	}
	return res, nil
}

func errsOf(recErrs []domain.RecordError, limit int) []error {
	out := make([]error, 0, min(limit, len(recErrs)))
	for _, e := range recErrs {
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out
}

// Prepare canonicalizes records for loading: timestamps are converted to UTC,
// prices are rounded to the stored scale,
// records without identity are dropped, and duplicates collapse to their last
// occurrence. Each surviving record gets its row checksum and sync time.
func Prepare(records []*purchasedomain.EnrichedPurchase, now time.Time) ([]*purchasedomain.EnrichedPurchase, int, error) {
	dropped := 0
	position := make(map[string]int, len(records))
	out := make([]*purchasedomain.EnrichedPurchase, 0, len(records))

	for _, rec := range records {
		if !rec.HasID() {
			dropped++
			continue
		}
		canonicalTimes(rec)
		roundPrices(rec)
		key := rec.ID.Hex()
		if i, ok := position[key]; ok {
			out[i] = rec
			continue
		}
		position[key] = len(out)
		out = append(out, rec)
	}

	syncedAt := now.UTC()
	for _, rec := range out {
		sum, err := Checksum(rec)
		if err != nil {
			return nil, 0, fmt.Errorf("checksum %s: %w", rec.ID.Hex(), err)
		}
		rec.RowChecksum = sum
		rec.SyncedAt = syncedAt
	}
	return out, dropped, nil
}

// Checksum hashes the reportable content of a record. Bookkeeping fields are
// excluded from the JSON form and so do not affect it.
func Checksum(rec *purchasedomain.EnrichedPurchase) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

func roundPrices(rec *purchasedomain.EnrichedPurchase) {
	for _, p := range []**decimal.Decimal{&rec.Price, &rec.PriceBeforeAttach} {
		if *p == nil {
			continue
		}
		rounded := (*p).Round(purchasedomain.PriceScale)
		*p = &rounded
	}
}

func canonicalTimes(rec *purchasedomain.EnrichedPurchase) {
	for _, t := range []**time.Time{&rec.CreatedAt, &rec.BookedAt, &rec.UpdatedAt, &rec.PriceRuleWEF} {
		if *t == nil {
			continue
		}
		utc := (*t).UTC()
		*t = &utc
	}
}
