package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/smallbiznis/purchasesync/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log  *zap.Logger
	Repo domain.Repository
}

type Reconciler struct {
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) *Reconciler {
	return &Reconciler{log: p.Log.Named("reconcile.service"), repo: p.Repo}
}

// Compare joins the feed's facts with the legacy prices on purchase id and
// reports every pair whose difference exceeds domain.Tolerance. Pairs with a
// missing price on either side are counted as incomparable.
func (r *Reconciler) Compare(ctx context.Context, feed string) (domain.Report, error) {
	feed = strings.TrimSpace(feed)
	if feed == "" {
		return domain.Report{}, domain.ErrInvalidFeed
	}

	facts, err := r.repo.FactPrices(ctx, feed)
	if err != nil {
		return domain.Report{}, fmt.Errorf("read facts: %w", err)
	}
	legacy, err := r.repo.LegacyPrices(ctx)
	if err != nil {
		return domain.Report{}, fmt.Errorf("read legacy prices: %w", err)
	}

	report := compare(facts, legacy)
	report.Feed = feed
	r.log.Info("reconcile.compare",
		zap.String("feed", feed),
		zap.Int("fact_rows", report.FactRows),
		zap.Int("legacy_rows", report.LegacyRows),
		zap.Int("matched", report.Matched),
		zap.Int("incomparable", report.Incomparable),
		zap.Int("mismatches", len(report.Mismatches)),
	)
	return report, nil
}

func compare(facts []domain.FactPrice, legacy []domain.LegacyPrice) domain.Report {
	report := domain.Report{FactRows: len(facts), LegacyRows: len(legacy)}

	byID := make(map[string][]domain.LegacyPrice, len(legacy))
	for _, l := range legacy {
		if l.PurchaseID == "" {
			continue
		}
		key := strings.ToLower(l.PurchaseID)
		byID[key] = append(byID[key], l)
	}

	for _, f := range facts {
		for _, l := range byID[strings.ToLower(f.ID)] {
			report.Matched++
			if f.Price == nil || l.BasePrice == nil {
				report.Incomparable++
				continue
			}
			diff := l.BasePrice.Sub(*f.Price)
			if diff.Abs().GreaterThan(domain.Tolerance) {
				report.Mismatches = append(report.Mismatches, domain.Mismatch{
					ID:        f.ID,
					Type:      f.Type,
					BookedAt:  f.BookedAt,
					Price:     *f.Price,
					BasePrice: *l.BasePrice,
					Diff:      diff,
				})
			}
		}
	}

	slices.SortStableFunc(report.Mismatches, func(a, b domain.Mismatch) int {
		return strings.Compare(a.ID, b.ID)
	})
	return report
}

var csvHeader = []string{"purchase_id", "type", "booked_at", "price", "base_price", "price_diff"}

// WriteCSV writes mismatches with a header row.
func WriteCSV(w io.Writer, mismatches []domain.Mismatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, m := range mismatches {
		typ := ""
		if m.Type != nil {
			typ = *m.Type
		}
		booked := ""
		if m.BookedAt != nil {
			booked = m.BookedAt.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{m.ID, typ, booked, m.Price.String(), m.BasePrice.String(), m.Diff.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
