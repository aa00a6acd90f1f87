package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// purchaseRow mirrors the operational purchases table.
type purchaseRow struct {
	ID                   string           `gorm:"column:id;primaryKey"`
	SupplierID           *string          `gorm:"column:supplier_id"`
	SupplierTypeID       *string          `gorm:"column:supplier_type_id"`
	MCCID                *string          `gorm:"column:mcc_id"`
	CPID                 *string          `gorm:"column:cp_id"`
	AreaOfficeID         *string          `gorm:"column:area_office_id"`
	PlantID              *string          `gorm:"column:plant_id"`
	GrossVolume          *float64         `gorm:"column:gross_volume"`
	TSVolume             *float64         `gorm:"column:ts_volume"`
	OpeningBalance       *float64         `gorm:"column:opening_balance"`
	Type                 *string          `gorm:"column:type"`
	CreatedBy            *string          `gorm:"column:created_by"`
	SerialNumber         *int64           `gorm:"column:serial_number"`
	IsPlanned            *bool            `gorm:"column:is_planned"`
	IsExceptionalRelease *bool            `gorm:"column:is_exceptional_release"`
	Tests                datatypes.JSON   `gorm:"column:tests"`
	Price                *decimal.Decimal `gorm:"column:price"`
	CreatedAt            *time.Time       `gorm:"column:created_at;autoCreateTime:false"`
	BookedAt             *time.Time       `gorm:"column:booked_at"`
	Time                 *time.Time       `gorm:"column:time"`
	UpdatedAt            *time.Time       `gorm:"column:updated_at;autoUpdateTime:false"`
	DeletedAt            *time.Time       `gorm:"column:deleted_at"`
}

type sqlSource struct {
	db *gorm.DB
}

// NewSQLSource reads purchases from a table named after the feed.
func NewSQLSource(db *gorm.DB) domain.Source {
	return &sqlSource{db: db}
}

func (s *sqlSource) Find(ctx context.Context, feed string, filter domain.Filter) ([]domain.Purchase, error) {
	if feed == "" {
		return nil, domain.ErrInvalidFeed
	}

	stmt := s.db.WithContext(ctx).Table(feed).Where("deleted_at IS NULL")
	if filter.CreatedSince != nil {
		stmt = stmt.Where("created_at >= ?", filter.CreatedSince.UTC())
	}

	batchSize := filter.BatchSize
	if batchSize <= 0 {
		batchSize = 10000
	}

	out := make([]domain.Purchase, 0)
	var rows []purchaseRow
	err := stmt.FindInBatches(&rows, batchSize, func(_ *gorm.DB, _ int) error {
		for i := range rows {
			out = append(out, rows[i].toDomain())
		}
		return nil
	}).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r purchaseRow) toDomain() domain.Purchase {
	return domain.Purchase{
		ID:                   r.ID,
		SupplierID:           deref(r.SupplierID),
		SupplierTypeID:       deref(r.SupplierTypeID),
		MCCID:                deref(r.MCCID),
		CPID:                 deref(r.CPID),
		AreaOfficeID:         deref(r.AreaOfficeID),
		PlantID:              deref(r.PlantID),
		GrossVolume:          r.GrossVolume,
		TSVolume:             r.TSVolume,
		OpeningBalance:       r.OpeningBalance,
		Type:                 r.Type,
		CreatedBy:            r.CreatedBy,
		SerialNumber:         r.SerialNumber,
		IsPlanned:            r.IsPlanned,
		IsExceptionalRelease: r.IsExceptionalRelease,
		Tests:                r.Tests,
		Price:                r.Price,
		CreatedAt:            r.CreatedAt,
		BookedAt:             r.BookedAt,
		Time:                 r.Time,
		UpdatedAt:            r.UpdatedAt,
		DeletedAt:            r.DeletedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
