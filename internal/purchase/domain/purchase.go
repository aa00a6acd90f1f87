package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"gorm.io/datatypes"
)

var ErrInvalidFeed = errors.New("invalid_feed")

// Purchase is a source record as stored upstream. Identifier fields are kept
// raw; an empty string means the field was absent.
type Purchase struct {
	ID             string
	SupplierID     string
	SupplierTypeID string
	MCCID          string
	CPID           string
	AreaOfficeID   string
	PlantID        string

	GrossVolume    *float64
	TSVolume       *float64
	OpeningBalance *float64

	Type                 *string
	CreatedBy            *string
	SerialNumber         *int64
	IsPlanned            *bool
	IsExceptionalRelease *bool
	Tests                datatypes.JSON

	Price *decimal.Decimal

	CreatedAt *time.Time
	BookedAt  *time.Time
	Time      *time.Time
	UpdatedAt *time.Time
	DeletedAt *time.Time
}

// Filter narrows a source scan. A nil CreatedSince means everything.
type Filter struct {
	CreatedSince *time.Time
	BatchSize    int
}

// Source reads non-deleted purchases for a feed.
type Source interface {
	Find(ctx context.Context, feed string, filter Filter) ([]Purchase, error)
}

// EnrichedPurchase is the reporting row: the purchase, its denormalized
// dimensions and the resolved price.
type EnrichedPurchase struct {
	ID                ident.ID  `gorm:"column:id;primaryKey;size:24" json:"id"`
	SupplierID        *ident.ID `gorm:"column:supplier_id;size:24" json:"supplier_id"`
	SupplierTypeID    *ident.ID `gorm:"column:supplier_type_id;size:24" json:"supplier_type_id"`
	CollectionPointID *ident.ID `gorm:"column:collection_point_id;size:24" json:"collection_point_id"`
	AreaOfficeID      *ident.ID `gorm:"column:area_office_id;size:24" json:"area_office_id"`
	PlantID           *ident.ID `gorm:"column:plant_id;size:24" json:"plant_id"`
	// RoutedPlantID is the plant used for pricing: the purchase's own, else
	// the one its collection point belongs to.
	RoutedPlantID *ident.ID `gorm:"column:routed_plant_id;size:24" json:"routed_plant_id"`

	SupplierName            *string  `gorm:"column:supplier_name" json:"supplier_name"`
	SupplierCode            *string  `gorm:"column:supplier_code" json:"supplier_code"`
	SupplierSource          *string  `gorm:"column:supplier_source" json:"supplier_source"`
	SupplierTypeName        *string  `gorm:"column:supplier_type_name" json:"supplier_type_name"`
	SupplierTypeDescription *string  `gorm:"column:supplier_type_description" json:"supplier_type_description"`
	CollectionPointName     *string  `gorm:"column:collection_point_name" json:"collection_point_name"`
	IsMCC                   *bool    `gorm:"column:is_mcc" json:"is_mcc"`
	Latitude                *float64 `gorm:"column:latitude" json:"latitude"`
	Longitude               *float64 `gorm:"column:longitude" json:"longitude"`
	AreaOfficeName          *string  `gorm:"column:area_office_name" json:"area_office_name"`

	GrossVolume    *float64 `gorm:"column:gross_volume" json:"gross_volume"`
	TSVolume       *float64 `gorm:"column:ts_volume" json:"ts_volume"`
	OpeningBalance *float64 `gorm:"column:opening_balance" json:"opening_balance"`

	Type                 *string        `gorm:"column:type;size:64" json:"type"`
	CreatedBy            *string        `gorm:"column:created_by;size:64" json:"created_by"`
	SerialNumber         *int64         `gorm:"column:serial_number" json:"serial_number"`
	IsPlanned            *bool          `gorm:"column:is_planned" json:"is_planned"`
	IsExceptionalRelease *bool          `gorm:"column:is_exceptional_release" json:"is_exceptional_release"`
	Tests                datatypes.JSON `gorm:"column:tests" json:"tests"`

	CreatedAt *time.Time `gorm:"column:created_at;autoCreateTime:false" json:"created_at"`
	BookedAt  *time.Time `gorm:"column:booked_at" json:"booked_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`

	Price             *decimal.Decimal `gorm:"column:price;type:decimal(24,8)" json:"price"`
	PriceBeforeAttach *decimal.Decimal `gorm:"column:price_before_attach;type:decimal(24,8)" json:"price_before_attach"`
	PriceSource       string           `gorm:"column:price_source;size:16" json:"price_source"`
	PriceReason       string           `gorm:"column:price_reason;size:48" json:"price_reason"`
	PriceRuleWEF      *time.Time       `gorm:"column:price_rule_wef" json:"price_rule_wef"`

	RowChecksum string    `gorm:"column:row_checksum;size:64" json:"-"`
	SyncedAt    time.Time `gorm:"column:synced_at;autoCreateTime:false;autoUpdateTime:false" json:"-"`
}

// PriceScale is the number of decimal places stored for prices.
const PriceScale = 8

// HasID reports whether the record carries a usable identity.
func (p *EnrichedPurchase) HasID() bool {
	return p != nil && !p.ID.IsZero()
}
