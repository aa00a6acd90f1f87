package repository

import (
	"context"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/dimension/domain"
	"gorm.io/gorm"
)

type supplierRow struct {
	ID             string  `gorm:"column:id;primaryKey"`
	Name           *string `gorm:"column:name"`
	SupplierTypeID *string `gorm:"column:supplier_type_id"`
	Source         *string `gorm:"column:source"`
	AreaOfficeID   *string `gorm:"column:area_office_id"`
	Code           *string `gorm:"column:code"`
}

type collectionPointRow struct {
	ID           string   `gorm:"column:id;primaryKey"`
	Name         *string  `gorm:"column:name"`
	AreaOfficeID *string  `gorm:"column:area_office_id"`
	PlantID      *string  `gorm:"column:plant_id"`
	IsMCC        *bool    `gorm:"column:is_mcc"`
	Latitude     *float64 `gorm:"column:latitude"`
	Longitude    *float64 `gorm:"column:longitude"`
}

type areaOfficeRow struct {
	ID   string  `gorm:"column:id;primaryKey"`
	Name *string `gorm:"column:name"`
}

type supplierTypeRow struct {
	ID          string  `gorm:"column:id;primaryKey"`
	Name        *string `gorm:"column:name"`
	Description *string `gorm:"column:description"`
}

type sqlRepository struct {
	db     *gorm.DB
	tables func() config.TableConfig
}

func NewSQLRepository(db *gorm.DB, holder *config.SyncConfigHolder) domain.Repository {
	return &sqlRepository{db: db, tables: func() config.TableConfig { return holder.Get().Tables }}
}

func (r *sqlRepository) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	var rows []supplierRow
	if err := r.db.WithContext(ctx).Table(r.tables().Suppliers).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Supplier, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Supplier{
			ID:             row.ID,
			Name:           row.Name,
			SupplierTypeID: deref(row.SupplierTypeID),
			Source:         row.Source,
			AreaOfficeID:   deref(row.AreaOfficeID),
			Code:           row.Code,
		})
	}
	return out, nil
}

func (r *sqlRepository) ListCollectionPoints(ctx context.Context) ([]domain.CollectionPoint, error) {
	var rows []collectionPointRow
	if err := r.db.WithContext(ctx).Table(r.tables().CollectionPoints).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CollectionPoint, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.CollectionPoint{
			ID:           row.ID,
			Name:         row.Name,
			AreaOfficeID: deref(row.AreaOfficeID),
			PlantID:      deref(row.PlantID),
			IsMCC:        row.IsMCC,
			Latitude:     row.Latitude,
			Longitude:    row.Longitude,
		})
	}
	return out, nil
}

func (r *sqlRepository) ListAreaOffices(ctx context.Context) ([]domain.AreaOffice, error) {
	var rows []areaOfficeRow
	if err := r.db.WithContext(ctx).Table(r.tables().AreaOffices).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AreaOffice, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AreaOffice{ID: row.ID, Name: row.Name})
	}
	return out, nil
}

func (r *sqlRepository) ListSupplierTypes(ctx context.Context) ([]domain.SupplierType, error) {
	var rows []supplierTypeRow
	if err := r.db.WithContext(ctx).Table(r.tables().SupplierTypes).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.SupplierType, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SupplierType{ID: row.ID, Name: row.Name, Description: row.Description})
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
