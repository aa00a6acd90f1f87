// Package enrich joins raw purchases with the reference dimensions.
package enrich

import (
	"github.com/shopspring/decimal"
	dimensiondomain "github.com/smallbiznis/purchasesync/internal/dimension/domain"
	"github.com/smallbiznis/purchasesync/internal/ident"
	"github.com/smallbiznis/purchasesync/internal/observability/metrics"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	FieldID              = "id"
	FieldSupplier        = "supplier_id"
	FieldSupplierType    = "supplier_type_id"
	FieldMCC             = "mcc_id"
	FieldCollectionPoint = "cp_id"
	FieldAreaOffice      = "area_office_id"
	FieldPlant           = "plant_id"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Metrics *metrics.SyncMetrics `optional:"true"`
}

type Enricher struct {
	log     *zap.Logger
	metrics *metrics.SyncMetrics
}

func New(p Params) *Enricher {
	return &Enricher{
		log:     p.Log.Named("enrich.enricher"),
		metrics: p.Metrics,
	}
}

// Stats describes what enrichment could not join or had to repair.
type Stats struct {
	InvalidIdentifiers map[string]int
	UnknownSupplier    int
	UnknownPoint       int
	PlantRouted        int
	BookedFromTime     int
	MissingBookedAt    int
}

// Enrich builds one reporting record per purchase. Joins are left-outer: a
// reference that cannot be found leaves the dimension attributes null.
func (e *Enricher) Enrich(feed string, snapshot *dimensiondomain.Snapshot, purchases []purchasedomain.Purchase) ([]*purchasedomain.EnrichedPurchase, Stats) {
	stats := Stats{InvalidIdentifiers: make(map[string]int)}
	out := make([]*purchasedomain.EnrichedPurchase, 0, len(purchases))

	for i := range purchases {
		p := &purchases[i]
		norm := func(field, raw string) *ident.ID {
			id, err := ident.Normalize(raw)
			if err != nil {
				stats.InvalidIdentifiers[field]++
				e.metrics.IncInvalidIdentifier(feed, field)
				e.log.Warn("enrich.invalid_identifier",
					zap.String("feed", feed),
					zap.String("purchase_id", p.ID),
					zap.String("field", field),
					zap.Error(err),
				)
				return nil
			}
			return id
		}

		rec := &purchasedomain.EnrichedPurchase{
			SupplierID:           norm(FieldSupplier, p.SupplierID),
			SupplierTypeID:       norm(FieldSupplierType, p.SupplierTypeID),
			AreaOfficeID:         norm(FieldAreaOffice, p.AreaOfficeID),
			PlantID:              norm(FieldPlant, p.PlantID),
			GrossVolume:          p.GrossVolume,
			TSVolume:             p.TSVolume,
			OpeningBalance:       p.OpeningBalance,
			Type:                 p.Type,
			CreatedBy:            p.CreatedBy,
			SerialNumber:         p.SerialNumber,
			IsPlanned:            p.IsPlanned,
			IsExceptionalRelease: p.IsExceptionalRelease,
			Tests:                p.Tests,
			CreatedAt:            p.CreatedAt,
			UpdatedAt:            p.UpdatedAt,
			Price:                p.Price,
			PriceBeforeAttach:    copyDecimal(p.Price),
		}
		if id := norm(FieldID, p.ID); id != nil {
			rec.ID = *id
		}
		rec.CollectionPointID = coalesce(norm(FieldMCC, p.MCCID), norm(FieldCollectionPoint, p.CPID))

		switch {
		case p.BookedAt != nil:
			rec.BookedAt = p.BookedAt
		case p.Time != nil:
			rec.BookedAt = p.Time
			stats.BookedFromTime++
		default:
			stats.MissingBookedAt++
		}

		if rec.SupplierID != nil {
			if supplier, ok := snapshot.Supplier(rec.SupplierID); ok {
				rec.SupplierName = supplier.Name
				rec.SupplierCode = supplier.Code
				rec.SupplierSource = supplier.Source
				rec.SupplierTypeID = coalesce(rec.SupplierTypeID, supplier.SupplierTypeID)
				rec.AreaOfficeID = coalesce(rec.AreaOfficeID, supplier.AreaOfficeID)
			} else {
				stats.UnknownSupplier++
			}
		}

		rec.RoutedPlantID = rec.PlantID
		if rec.CollectionPointID != nil {
			if point, ok := snapshot.CollectionPoint(rec.CollectionPointID); ok {
				rec.CollectionPointName = point.Name
				rec.IsMCC = point.IsMCC
				rec.Latitude = point.Latitude
				rec.Longitude = point.Longitude
				rec.AreaOfficeID = coalesce(rec.AreaOfficeID, point.AreaOfficeID)
				rec.RoutedPlantID = coalesce(rec.PlantID, point.PlantID)
			} else {
				stats.UnknownPoint++
			}
		}
		if rec.RoutedPlantID != nil {
			stats.PlantRouted++
		}

		if office, ok := snapshot.AreaOffice(rec.AreaOfficeID); ok {
			rec.AreaOfficeName = office.Name
		}
		if supplierType, ok := snapshot.SupplierType(rec.SupplierTypeID); ok {
			rec.SupplierTypeName = supplierType.Name
			rec.SupplierTypeDescription = supplierType.Description
		}

		out = append(out, rec)
	}

	if n := total(stats.InvalidIdentifiers); n > 0 || stats.MissingBookedAt > 0 {
		e.log.Info("enrich.summary",
			zap.String("feed", feed),
			zap.Int("records", len(out)),
			zap.Int("invalid_identifiers", n),
			zap.Int("unknown_suppliers", stats.UnknownSupplier),
			zap.Int("unknown_collection_points", stats.UnknownPoint),
			zap.Int("missing_booked_at", stats.MissingBookedAt),
		)
	}
	return out, stats
}

// coalesce returns the first present identifier. Earlier arguments have
// priority and are never replaced by later ones.
func coalesce(ids ...*ident.ID) *ident.ID {
	for _, id := range ids {
		if id != nil {
			return id
		}
	}
	return nil
}

func copyDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func total(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
