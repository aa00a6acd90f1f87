package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	"gorm.io/gorm"
)

type ruleRow struct {
	ID              string           `gorm:"column:id;primaryKey"`
	SourceType      *string          `gorm:"column:source_type"`
	AreaOffice      *string          `gorm:"column:area_office"`
	Supplier        *string          `gorm:"column:supplier"`
	CollectionPoint *string          `gorm:"column:collection_point"`
	Plant           *string          `gorm:"column:plant"`
	WEF             *time.Time       `gorm:"column:wef"`
	Price           *decimal.Decimal `gorm:"column:price"`
	Status          int              `gorm:"column:status"`
}

type sqlRepository struct {
	db     *gorm.DB
	tables func() config.TableConfig
}

func NewSQLRepository(db *gorm.DB, holder *config.SyncConfigHolder) domain.RuleRepository {
	return &sqlRepository{db: db, tables: func() config.TableConfig { return holder.Get().Tables }}
}

func (r *sqlRepository) ListActive(ctx context.Context, table domain.Table) ([]domain.RuleRecord, error) {
	name, err := tableName(r.tables(), table)
	if err != nil {
		return nil, err
	}

	var rows []ruleRow
	err = r.db.WithContext(ctx).
		Table(name).
		Where("status = ? AND wef IS NOT NULL", domain.StatusActive).
		Order("wef desc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.RuleRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RuleRecord{
			ID:              row.ID,
			SourceType:      deref(row.SourceType),
			AreaOffice:      deref(row.AreaOffice),
			Supplier:        deref(row.Supplier),
			CollectionPoint: deref(row.CollectionPoint),
			Plant:           deref(row.Plant),
			WEF:             row.WEF,
			Price:           row.Price,
			Status:          row.Status,
		})
	}
	return out, nil
}

func tableName(tables config.TableConfig, table domain.Table) (string, error) {
	switch table {
	case domain.TableCurrent:
		return tables.CurrentPrices, nil
	case domain.TableArchived:
		return tables.ArchivedPrices, nil
	default:
		return "", fmt.Errorf("unknown price table %q", table)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
