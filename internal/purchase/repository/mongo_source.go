package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/purchasesync/internal/purchase/domain"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var purchaseProjection = bson.D{
	{Key: "_id", Value: 1},
	{Key: "supplier_id", Value: 1},
	{Key: "supplier_type_id", Value: 1},
	{Key: "mcc_id", Value: 1},
	{Key: "cp_id", Value: 1},
	{Key: "area_office_id", Value: 1},
	{Key: "plant_id", Value: 1},
	{Key: "gross_volume", Value: 1},
	{Key: "ts_volume", Value: 1},
	{Key: "opening_balance", Value: 1},
	{Key: "type", Value: 1},
	{Key: "created_by", Value: 1},
	{Key: "serial_number", Value: 1},
	{Key: "is_planned", Value: 1},
	{Key: "is_exceptional_release", Value: 1},
	{Key: "tests", Value: 1},
	{Key: "price", Value: 1},
	{Key: "created_at", Value: 1},
	{Key: "booked_at", Value: 1},
	{Key: "time", Value: 1},
	{Key: "updated_at", Value: 1},
}

type mongoSource struct {
	db *mongo.Database
}

// NewMongoSource reads purchases from a collection named after the feed.
func NewMongoSource(db *mongo.Database) domain.Source {
	return &mongoSource{db: db}
}

func (s *mongoSource) Find(ctx context.Context, feed string, filter domain.Filter) ([]domain.Purchase, error) {
	if feed == "" {
		return nil, domain.ErrInvalidFeed
	}

	batchSize := filter.BatchSize
	if batchSize <= 0 {
		batchSize = 10000
	}
	opts := options.Find().
		SetProjection(purchaseProjection).
		SetBatchSize(int32(batchSize))

	cur, err := s.db.Collection(feed).Find(ctx, sourceFilter(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]domain.Purchase, 0)
	for cur.Next(ctx) {
		out = append(out, decodePurchase(cur.Current))
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func sourceFilter(filter domain.Filter) bson.D {
	f := bson.D{{Key: "deleted_at", Value: bson.D{{Key: "$exists", Value: false}}}}
	if filter.CreatedSince != nil {
		f = append(f, bson.E{Key: "created_at", Value: bson.D{{Key: "$gte", Value: filter.CreatedSince.UTC()}}})
	}
	return f
}

func decodePurchase(doc bson.Raw) domain.Purchase {
	get := func(key string) bson.RawValue { return mongodb.Lookup(doc, key) }
	return domain.Purchase{
		ID:                   mongodb.ID(get("_id")),
		SupplierID:           mongodb.ID(get("supplier_id")),
		SupplierTypeID:       mongodb.ID(get("supplier_type_id")),
		MCCID:                mongodb.ID(get("mcc_id")),
		CPID:                 mongodb.ID(get("cp_id")),
		AreaOfficeID:         mongodb.ID(get("area_office_id")),
		PlantID:              mongodb.ID(get("plant_id")),
		GrossVolume:          mongodb.Float(get("gross_volume")),
		TSVolume:             mongodb.Float(get("ts_volume")),
		OpeningBalance:       mongodb.Float(get("opening_balance")),
		Type:                 mongodb.String(get("type")),
		CreatedBy:            mongodb.String(get("created_by")),
		SerialNumber:         mongodb.Int(get("serial_number")),
		IsPlanned:            mongodb.Bool(get("is_planned")),
		IsExceptionalRelease: mongodb.Bool(get("is_exceptional_release")),
		Tests:                mongodb.JSON(get("tests")),
		Price:                mongodb.Decimal(get("price")),
		CreatedAt:            mongodb.Time(get("created_at")),
		BookedAt:             mongodb.Time(get("booked_at")),
		Time:                 mongodb.Time(get("time")),
		UpdatedAt:            mongodb.Time(get("updated_at")),
		DeletedAt:            deletedAt(get("deleted_at")),
	}
}

// deletedAt treats any present deleted_at as a deletion mark, even when the
// value is not a date.
func deletedAt(v bson.RawValue) *time.Time {
	if v.Type == 0 {
		return nil
	}
	if t := mongodb.Time(v); t != nil {
		return t
	}
	t := time.Unix(0, 0).UTC()
	return &t
}
