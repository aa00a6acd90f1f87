package repository

import (
	"context"
	"testing"

	"github.com/smallbiznis/purchasesync/internal/config"
	"github.com/smallbiznis/purchasesync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func strPtr(s string) *string { return &s }

func TestSQLRepositoryReadsConfiguredTables(t *testing.T) {
	ctx := context.Background()
	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)

	cfg := config.DefaultSyncConfig()
	cfg.Tables.Suppliers = "farmers"
	holder := config.NewStaticSyncConfigHolder(cfg)

	require.NoError(t, conn.Table("farmers").AutoMigrate(&supplierRow{}))
	require.NoError(t, conn.Table(cfg.Tables.CollectionPoints).AutoMigrate(&collectionPointRow{}))
	require.NoError(t, conn.Table(cfg.Tables.AreaOffices).AutoMigrate(&areaOfficeRow{}))
	require.NoError(t, conn.Table(cfg.Tables.SupplierTypes).AutoMigrate(&supplierTypeRow{}))

	require.NoError(t, conn.Table("farmers").Create(&supplierRow{ID: "s1", Name: strPtr("Ali"), AreaOfficeID: strPtr("ao1")}).Error)
	require.NoError(t, conn.Table(cfg.Tables.CollectionPoints).Create(&collectionPointRow{ID: "cp1", PlantID: strPtr("p1")}).Error)
	require.NoError(t, conn.Table(cfg.Tables.AreaOffices).Create(&areaOfficeRow{ID: "ao1", Name: strPtr("North")}).Error)

	repo := NewSQLRepository(conn, holder)

	suppliers, err := repo.ListSuppliers(ctx)
	require.NoError(t, err)
	require.Len(t, suppliers, 1)
	assert.Equal(t, "ao1", suppliers[0].AreaOfficeID)
	assert.Equal(t, "", suppliers[0].SupplierTypeID)

	points, err := repo.ListCollectionPoints(ctx)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "p1", points[0].PlantID)

	offices, err := repo.ListAreaOffices(ctx)
	require.NoError(t, err)
	assert.Len(t, offices, 1)

	types, err := repo.ListSupplierTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, types)
}

func TestDecodeSupplierFallsBackToLegacyOfficeField(t *testing.T) {
	office := primitive.NewObjectID()
	raw, err := bson.Marshal(bson.M{"_id": primitive.NewObjectID(), "area_office": office, "name": "Ali"})
	require.NoError(t, err)

	s := decodeSupplier(bson.Raw(raw))
	assert.Equal(t, office.Hex(), s.AreaOfficeID)
	require.NotNil(t, s.Name)
	assert.Equal(t, "Ali", *s.Name)
}
