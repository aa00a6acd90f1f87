package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/reconcile/domain"
	"gorm.io/gorm"
)

type factRow struct {
	ID       string
	Type     *string
	BookedAt *time.Time
	Price    *decimal.Decimal
}

type legacyRow struct {
	PurchaseID string
	BasePrice  *decimal.Decimal
}

type sqlRepository struct {
	db     *gorm.DB
	holder *config.SyncConfigHolder
}

func NewSQLRepository(db *gorm.DB, holder *config.SyncConfigHolder) domain.Repository {
	return &sqlRepository{db: db, holder: holder}
}

func (r *sqlRepository) FactPrices(ctx context.Context, feed string) ([]domain.FactPrice, error) {
	var rows []factRow
	err := r.db.WithContext(ctx).
		Table(config.FactTable(feed)).
		Select("id", "type", "booked_at", "price").
		Order("id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.FactPrice, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.FactPrice(row))
	}
	return out, nil
}

func (r *sqlRepository) LegacyPrices(ctx context.Context) ([]domain.LegacyPrice, error) {
	var rows []legacyRow
	err := r.db.WithContext(ctx).
		Table(r.holder.Get().Tables.LegacyFacts).
		Select("purchase_id", "base_price").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.LegacyPrice, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LegacyPrice(row))
	}
	return out, nil
}
