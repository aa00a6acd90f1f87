package repository

import (
	"context"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/pricing/domain"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	db     *mongo.Database
	tables func() config.TableConfig
}

func NewMongoRepository(db *mongo.Database, holder *config.SyncConfigHolder) domain.RuleRepository {
	return &mongoRepository{db: db, tables: func() config.TableConfig { return holder.Get().Tables }}
}

func (r *mongoRepository) ListActive(ctx context.Context, table domain.Table) ([]domain.RuleRecord, error) {
	name, err := tableName(r.tables(), table)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "wef", Value: -1}})
	cur, err := r.db.Collection(name).Find(ctx, activeFilter(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.RuleRecord
	for cur.Next(ctx) {
		out = append(out, decodeRule(cur.Current))
	}
	return out, cur.Err()
}

func activeFilter() bson.D {
	return bson.D{
		{Key: "status", Value: domain.StatusActive},
		{Key: "wef", Value: bson.D{{Key: "$ne", Value: nil}}},
	}
}

func decodeRule(doc bson.Raw) domain.RuleRecord {
	get := func(key string) bson.RawValue { return mongodb.Lookup(doc, key) }
	status := 0
	if n := mongodb.Int(get("status")); n != nil {
		status = int(*n)
	}
	return domain.RuleRecord{
		ID:              mongodb.ID(get("_id")),
		SourceType:      mongodb.ID(get("source_type")),
		AreaOffice:      mongodb.ID(get("area_office")),
		Supplier:        mongodb.ID(get("supplier")),
		CollectionPoint: mongodb.ID(get("collection_point")),
		Plant:           mongodb.ID(get("plant")),
		WEF:             mongodb.Time(get("wef")),
		Price:           mongodb.Decimal(get("price")),
		Status:          status,
	}
}
