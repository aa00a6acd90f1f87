package repository

import (
	"context"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/internal/dimension/domain"
	"github.com/smallbiznis/purchasesync/pkg/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoRepository struct {
	db     *mongo.Database
	tables func() config.TableConfig
}

func NewMongoRepository(db *mongo.Database, holder *config.SyncConfigHolder) domain.Repository {
	return &mongoRepository{db: db, tables: func() config.TableConfig { return holder.Get().Tables }}
}

func (r *mongoRepository) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	var out []domain.Supplier
	err := r.scan(ctx, r.tables().Suppliers, func(doc bson.Raw) {
		out = append(out, decodeSupplier(doc))
	})
	return out, err
}

func (r *mongoRepository) ListCollectionPoints(ctx context.Context) ([]domain.CollectionPoint, error) {
	var out []domain.CollectionPoint
	err := r.scan(ctx, r.tables().CollectionPoints, func(doc bson.Raw) {
		out = append(out, decodeCollectionPoint(doc))
	})
	return out, err
}

func (r *mongoRepository) ListAreaOffices(ctx context.Context) ([]domain.AreaOffice, error) {
	var out []domain.AreaOffice
	err := r.scan(ctx, r.tables().AreaOffices, func(doc bson.Raw) {
		out = append(out, domain.AreaOffice{
			ID:   mongodb.ID(mongodb.Lookup(doc, "_id")),
			Name: mongodb.String(mongodb.Lookup(doc, "name")),
		})
	})
	return out, err
}

func (r *mongoRepository) ListSupplierTypes(ctx context.Context) ([]domain.SupplierType, error) {
	var out []domain.SupplierType
	err := r.scan(ctx, r.tables().SupplierTypes, func(doc bson.Raw) {
		out = append(out, domain.SupplierType{
			ID:          mongodb.ID(mongodb.Lookup(doc, "_id")),
			Name:        mongodb.String(mongodb.Lookup(doc, "name")),
			Description: mongodb.String(mongodb.Lookup(doc, "description")),
		})
	})
	return out, err
}

func (r *mongoRepository) scan(ctx context.Context, collection string, fn func(bson.Raw)) error {
	cur, err := r.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		fn(cur.Current)
	}
	return cur.Err()
}

// decodeSupplier reads the office from area_office_id, falling back to the
// older area_office field.
func decodeSupplier(doc bson.Raw) domain.Supplier {
	office := mongodb.ID(mongodb.Lookup(doc, "area_office_id"))
	if office == "" {
		office = mongodb.ID(mongodb.Lookup(doc, "area_office"))
	}
	return domain.Supplier{
		ID:             mongodb.ID(mongodb.Lookup(doc, "_id")),
		Name:           mongodb.String(mongodb.Lookup(doc, "name")),
		SupplierTypeID: mongodb.ID(mongodb.Lookup(doc, "supplier_type_id")),
		Source:         mongodb.String(mongodb.Lookup(doc, "source")),
		AreaOfficeID:   office,
		Code:           mongodb.String(mongodb.Lookup(doc, "code")),
	}
}

func decodeCollectionPoint(doc bson.Raw) domain.CollectionPoint {
	return domain.CollectionPoint{
		ID:           mongodb.ID(mongodb.Lookup(doc, "_id")),
		Name:         mongodb.String(mongodb.Lookup(doc, "name")),
		AreaOfficeID: mongodb.ID(mongodb.Lookup(doc, "area_office_id")),
		PlantID:      mongodb.ID(mongodb.Lookup(doc, "plant_id")),
		IsMCC:        mongodb.Bool(mongodb.Lookup(doc, "is_mcc")),
		Latitude:     mongodb.Float(mongodb.Lookup(doc, "latitude")),
		Longitude:    mongodb.Float(mongodb.Lookup(doc, "longitude")),
	}
}
