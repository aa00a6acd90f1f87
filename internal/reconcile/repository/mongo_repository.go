package repository

import (
	"context"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/reconcile/domain"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	reporting *mongo.Database
	legacy    *mongo.Database
	holder    *config.SyncConfigHolder
}

// NewMongoRepository reads facts from the reporting database and legacy
// prices from the source database, where the previous pipeline wrote them.
func NewMongoRepository(reporting, legacy *mongo.Database, holder *config.SyncConfigHolder) domain.Repository {
	return &mongoRepository{reporting: reporting, legacy: legacy, holder: holder}
}

func (r *mongoRepository) FactPrices(ctx context.Context, feed string) ([]domain.FactPrice, error) {
	opts := options.Find().SetProjection(bson.D{
		{Key: "_id", Value: 1},
		{Key: "type", Value: 1},
		{Key: "booked_at", Value: 1},
		{Key: "price", Value: 1},
	})
	cur, err := r.reporting.Collection(config.FactTable(feed)).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.FactPrice
	for cur.Next(ctx) {
		out = append(out, decodeFactPrice(cur.Current))
	}
	return out, cur.Err()
}

func (r *mongoRepository) LegacyPrices(ctx context.Context) ([]domain.LegacyPrice, error) {
	opts := options.Find().SetProjection(bson.D{
		{Key: "_id", Value: 0},
		{Key: "purchase_id", Value: 1},
		{Key: "base_price", Value: 1},
	})
	cur, err := r.legacy.Collection(r.holder.Get().Tables.LegacyFacts).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []domain.LegacyPrice
	for cur.Next(ctx) {
		out = append(out, decodeLegacyPrice(cur.Current))
	}
	return out, cur.Err()
}

func decodeFactPrice(doc bson.Raw) domain.FactPrice {
	return domain.FactPrice{
		ID:       mongodb.ID(mongodb.Lookup(doc, "_id")),
		Type:     mongodb.String(mongodb.Lookup(doc, "type")),
		BookedAt: mongodb.Time(mongodb.Lookup(doc, "booked_at")),
		Price:    mongodb.Decimal(mongodb.Lookup(doc, "price")),
	}
}

// decodeLegacyPrice accepts purchase ids stored either as ObjectIds or as
// their hex text.
func decodeLegacyPrice(doc bson.Raw) domain.LegacyPrice {
	return domain.LegacyPrice{
		PurchaseID: mongodb.ID(mongodb.Lookup(doc, "purchase_id")),
		BasePrice:  mongodb.Decimal(mongodb.Lookup(doc, "base_price")),
	}
}
