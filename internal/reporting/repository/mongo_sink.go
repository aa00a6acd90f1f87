package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/ident"
	purchasedomain "github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/smallbiznis/purchasesync/internal/reporting/domain"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type mongoSink struct {
	db     *mongo.Database
	log    *zap.Logger
	holder *config.SyncConfigHolder
}

func NewMongoSink(db *mongo.Database, log *zap.Logger, holder *config.SyncConfigHolder) domain.Sink {
	return &mongoSink{db: db, log: log.Named("reporting.mongo_sink"), holder: holder}
}

func (s *mongoSink) Upsert(ctx context.Context, feed string, records []*purchasedomain.EnrichedPurchase) (domain.Result, error) {
	if feed == "" {
		return domain.Result{}, domain.ErrInvalidFeed
	}
	coll := s.db.Collection(config.FactTable(feed))

	batch := s.holder.Get().LoadBatchSize
	if batch < 1 {
		batch = 1
	}

	var res domain.Result
	for start := 0; start < len(records); start += batch {
		chunk := records[start:min(start+batch, len(records))]
		part, err := s.upsertChunk(ctx, coll, chunk)
		if err != nil {
			return res, err
		}
		res.Add(part)
	}
	return res, nil
}

func (s *mongoSink) upsertChunk(ctx context.Context, coll *mongo.Collection, chunk []*purchasedomain.EnrichedPurchase) (domain.Result, error) {
	ids := make(bson.A, 0, len(chunk))
	for _, rec := range chunk {
		ids = append(ids, primitive.ObjectID(rec.ID))
	}

	opts := options.Find().SetProjection(bson.D{{Key: "row_checksum", Value: 1}})
	cur, err := coll.Find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}}, opts)
	if err != nil {
		return domain.Result{}, fmt.Errorf("read checksums: %w", err)
	}
	existing := make(map[string]string, len(chunk))
	for cur.Next(ctx) {
		id := mongodb.ID(mongodb.Lookup(cur.Current, "_id"))
		sum := mongodb.String(mongodb.Lookup(cur.Current, "row_checksum"))
		if sum == nil {
			existing[id] = ""
			continue
		}
		existing[id] = *sum
	}
	if err := cur.Err(); err != nil {
		_ = cur.Close(ctx)
		return domain.Result{}, err
	}
	_ = cur.Close(ctx)

	var res domain.Result
	pending := make([]*purchasedomain.EnrichedPurchase, 0, len(chunk))
	for _, rec := range chunk {
		stored, found := existing[rec.ID.Hex()]
		if found {
			res.Matched++
			if stored == rec.RowChecksum {
				res.Unchanged++
				continue
			}
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return res, nil
	}

	models := make([]mongo.WriteModel, 0, len(pending))
	for _, rec := range pending {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: primitive.ObjectID(rec.ID)}}).
			SetUpdate(bson.D{{Key: "$set", Value: ToDocument(rec)}}).
			SetUpsert(true))
	}

	_, err = coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	failed := make(map[int]error)
	if err != nil {
		var bwe mongo.BulkWriteException
		if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
			return res, fmt.Errorf("bulk write: %w", err)
		}
		for _, we := range bwe.WriteErrors {
			failed[we.Index] = fmt.Errorf("write error %d: %s", we.Code, we.Message)
		}
		s.log.Warn("reporting.bulk_write_partial", zap.String("collection", coll.Name()), zap.Int("failed", len(failed)))
	}

	for i, rec := range pending {
		if recErr, ok := failed[i]; ok {
			res.Failed++
			res.Errors = append(res.Errors, domain.RecordError{ID: rec.ID.Hex(), Err: recErr})
			continue
		}
		if _, found := existing[rec.ID.Hex()]; found {
			res.Updated++
		} else {
			res.Inserted++
		}
	}
	return res, nil
}

// ToDocument renders a fact record with explicit field names. Prices are
// stored as Decimal128 and identifiers as ObjectIds.
func ToDocument(rec *purchasedomain.EnrichedPurchase) bson.D {
	return bson.D{
		{Key: "supplier_id", Value: objectID(rec.SupplierID)},
		{Key: "supplier_type_id", Value: objectID(rec.SupplierTypeID)},
		{Key: "collection_point_id", Value: objectID(rec.CollectionPointID)},
		{Key: "area_office_id", Value: objectID(rec.AreaOfficeID)},
		{Key: "plant_id", Value: objectID(rec.PlantID)},
		{Key: "routed_plant_id", Value: objectID(rec.RoutedPlantID)},
		{Key: "supplier_name", Value: rec.SupplierName},
		{Key: "supplier_code", Value: rec.SupplierCode},
		{Key: "supplier_source", Value: rec.SupplierSource},
		{Key: "supplier_type_name", Value: rec.SupplierTypeName},
		{Key: "supplier_type_description", Value: rec.SupplierTypeDescription},
		{Key: "collection_point_name", Value: rec.CollectionPointName},
		{Key: "is_mcc", Value: rec.IsMCC},
		{Key: "latitude", Value: rec.Latitude},
		{Key: "longitude", Value: rec.Longitude},
		{Key: "area_office_name", Value: rec.AreaOfficeName},
		{Key: "gross_volume", Value: rec.GrossVolume},
		{Key: "ts_volume", Value: rec.TSVolume},
		{Key: "opening_balance", Value: rec.OpeningBalance},
		{Key: "type", Value: rec.Type},
		{Key: "created_by", Value: rec.CreatedBy},
		{Key: "serial_number", Value: rec.SerialNumber},
		{Key: "is_planned", Value: rec.IsPlanned},
		{Key: "is_exceptional_release", Value: rec.IsExceptionalRelease},
		{Key: "tests", Value: embedded(rec.Tests)},
		{Key: "created_at", Value: timeValue(rec.CreatedAt)},
		{Key: "booked_at", Value: timeValue(rec.BookedAt)},
		{Key: "updated_at", Value: timeValue(rec.UpdatedAt)},
		{Key: "price", Value: decimal128(rec.Price)},
		{Key: "price_before_attach", Value: decimal128(rec.PriceBeforeAttach)},
		{Key: "price_source", Value: nullable(rec.PriceSource)},
		{Key: "price_reason", Value: nullable(rec.PriceReason)},
		{Key: "price_rule_wef", Value: timeValue(rec.PriceRuleWEF)},
		{Key: "row_checksum", Value: rec.RowChecksum},
		{Key: "synced_at", Value: primitive.NewDateTimeFromTime(rec.SyncedAt)},
	}
}

func objectID(id *ident.ID) any {
	if id == nil {
		return nil
	}
	return primitive.ObjectID(*id)
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return primitive.NewDateTimeFromTime(*t)
}

func decimal128(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return nil
	}
	return v
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func embedded(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := bson.UnmarshalExtJSON(raw, false, &v); err != nil {
		return string(raw)
	}
	return v
}
